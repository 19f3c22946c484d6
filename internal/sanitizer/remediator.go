package sanitizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-sanitizer/internal/constants"
	"chat-sanitizer/internal/corruption"
	"chat-sanitizer/internal/platform/logger"
	"chat-sanitizer/internal/security/audit"
	"chat-sanitizer/internal/storage/database/message"
)

// Remediator 對損壞訊息執行遮蔽或軟刪除.
type Remediator struct {
	store        message.Store
	batchSize    int
	defaultActor string
	clock        func() time.Time
	audit        *audit.AuditService
	metrics      *Metrics
}

// RemediatorOption Remediator 選項.
type RemediatorOption func(*Remediator)

// WithBatchSize 軟刪除每批數量.
func WithBatchSize(n int) RemediatorOption {
	return func(r *Remediator) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithDefaultActor 未指定操作者時使用.
func WithDefaultActor(actor string) RemediatorOption {
	return func(r *Remediator) {
		if actor != "" {
			r.defaultActor = actor
		}
	}
}

// WithClock 遮蔽時 cleaned_at 使用的時鐘.
func WithClock(clock func() time.Time) RemediatorOption {
	return func(r *Remediator) {
		r.clock = clock
	}
}

// WithAudit 設定審計服務.
func WithAudit(a *audit.AuditService) RemediatorOption {
	return func(r *Remediator) {
		r.audit = a
	}
}

// WithRemediatorMetrics 設定指標.
func WithRemediatorMetrics(m *Metrics) RemediatorOption {
	return func(r *Remediator) {
		r.metrics = m
	}
}

// NewRemediator 創建清理器.
func NewRemediator(store message.Store, opts ...RemediatorOption) *Remediator {
	r := &Remediator{
		store:        store,
		batchSize:    constants.DefaultSoftDeleteBatchSize,
		defaultActor: constants.DefaultActorID,
		clock:        func() time.Time { return time.Now().UTC() },
		audit:        audit.NewAuditService(false),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Remediate 依策略清理訊息。單筆或單批失敗只記錄日誌，不中斷其他訊息.
func (r *Remediator) Remediate(ctx context.Context, msgs []CorruptedMessage, opts RemediateOptions) (*RemediationResult, error) {
	if !opts.Strategy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, opts.Strategy)
	}

	actor := opts.ActorID
	if actor == "" {
		actor = r.defaultActor
	}

	result := &RemediationResult{AffectedIDs: make([]string, 0, len(msgs))}
	if len(msgs) == 0 {
		return result, nil
	}

	if opts.DryRun {
		for _, m := range msgs {
			result.AffectedIDs = append(result.AffectedIDs, m.ID)
		}
		result.AffectedCount = len(result.AffectedIDs)
		r.metrics.observeRemediated(opts.Strategy, true, result.AffectedCount)

		logger.Info(ctx, "dry run：未寫入任何變更",
			logger.WithConversationID(msgs[0].ConversationID),
			logger.WithActorID(actor),
			logger.WithAction(string(opts.Strategy)),
			logger.WithDetails(map[string]interface{}{
				"would_affect": result.AffectedCount,
				"message_ids":  result.AffectedIDs,
			}))
		return result, nil
	}

	switch opts.Strategy {
	case StrategyRedact:
		r.redact(ctx, msgs, actor, result)
	case StrategySoftDelete:
		r.softDelete(ctx, msgs, actor, result)
	}

	result.AffectedCount = len(result.AffectedIDs)
	r.metrics.observeRemediated(opts.Strategy, false, result.AffectedCount)
	r.metrics.observeFailures(opts.Strategy, len(result.FailedIDs))
	return result, nil
}

// redact 逐筆更新，不使用批次
func (r *Remediator) redact(ctx context.Context, msgs []CorruptedMessage, actor string, result *RemediationResult) {
	for _, m := range msgs {
		err := r.store.UpdateFields(ctx, m.ID, message.Fields{
			message.FieldText:             corruption.RedactedText,
			message.FieldIsCorrupted:      true,
			message.FieldOriginalText:     message.SetIfAbsent(m.Text),
			message.FieldCorruptionReason: m.Reason,
			message.FieldCleanedAt:        r.clock(),
		})
		r.audit.LogRedaction(ctx, actor, m.ConversationID, m.ID, m.Reason, err)

		if err != nil {
			logger.Error(ctx, "遮蔽訊息失敗",
				logger.WithConversationID(m.ConversationID),
				logger.WithMessageID(m.ID),
				logger.WithActorID(actor),
				logger.WithAction("redact"),
				logger.WithError(err))
			result.FailedIDs = append(result.FailedIDs, m.ID)
			continue
		}
		result.AffectedIDs = append(result.AffectedIDs, m.ID)
	}
}

// softDelete 依 batchSize 分批，每批一次原子提交
func (r *Remediator) softDelete(ctx context.Context, msgs []CorruptedMessage, actor string, result *RemediationResult) {
	for batch, start := 0, 0; start < len(msgs); batch, start = batch+1, start+r.batchSize {
		end := start + r.batchSize
		if end > len(msgs) {
			end = len(msgs)
		}
		chunk := msgs[start:end]

		writes := make([]message.BatchWrite, 0, len(chunk))
		ids := make([]string, 0, len(chunk))
		for _, m := range chunk {
			writes = append(writes, message.BatchWrite{
				ID: m.ID,
				Fields: message.Fields{
					message.FieldDeleted:      true,
					message.FieldDeletedAt:    message.ServerTimestamp,
					message.FieldDeletedBy:    actor,
					message.FieldDeleteReason: m.Reason,
					message.FieldOriginalText: message.SetIfAbsent(m.Text),
				},
			})
			ids = append(ids, m.ID)
		}

		err := r.store.CommitBatch(ctx, writes)
		r.audit.LogSoftDelete(ctx, actor, chunk[0].ConversationID, batch, ids, err)

		if err != nil {
			logger.Error(ctx, "軟刪除批次失敗",
				logger.WithConversationID(chunk[0].ConversationID),
				logger.WithActorID(actor),
				logger.WithAction("soft_delete"),
				logger.WithDetails(map[string]interface{}{
					"batch":       batch,
					"message_ids": ids,
				}),
				logger.WithError(err))

			// 非交易存儲可能已寫入部分訊息，計數要與存儲一致
			var partial *message.PartialCommitError
			if errors.As(err, &partial) {
				result.AffectedIDs = append(result.AffectedIDs, partial.Applied...)
				result.FailedIDs = append(result.FailedIDs, partial.Failed...)
				continue
			}
			result.FailedIDs = append(result.FailedIDs, ids...)
			continue
		}

		logger.Info(ctx, "軟刪除批次完成",
			logger.WithConversationID(chunk[0].ConversationID),
			logger.WithActorID(actor),
			logger.WithAction("soft_delete"),
			logger.WithDetails(map[string]interface{}{
				"batch": batch,
				"count": len(ids),
			}))
		result.AffectedIDs = append(result.AffectedIDs, ids...)
	}
}
