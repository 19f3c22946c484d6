package sanitizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-sanitizer/internal/constants"
	"chat-sanitizer/internal/platform/config"
	"chat-sanitizer/internal/platform/logger"
	"chat-sanitizer/internal/security/audit"
	"chat-sanitizer/internal/storage/database/message"

	"github.com/google/uuid"
)

// Options Service 選項，零值使用預設.
type Options struct {
	BatchSize    int
	SkipRedacted bool
	DefaultActor string
	HistorySize  int

	Revealer Revealer
	Audit    *audit.AuditService
	Metrics  *Metrics
	Clock    func() time.Time
}

// OptionsFromConfig 從配置建立選項.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		BatchSize:    cfg.Sanitizer.BatchSize,
		SkipRedacted: cfg.Sanitizer.SkipRedacted,
		DefaultActor: cfg.Sanitizer.DefaultActor,
		HistorySize:  cfg.Sanitizer.HistorySize,
	}
}

// Service 清理流程入口.
type Service struct {
	store        message.Store
	scanner      *Scanner
	remediator   *Remediator
	history      *History
	audit        *audit.AuditService
	metrics      *Metrics
	clock        func() time.Time
	defaultActor string
}

// NewService 創建清理服務.
func NewService(store message.Store, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.DefaultActor == "" {
		opts.DefaultActor = constants.DefaultActorID
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewAuditService(false)
	}

	scannerOpts := []ScannerOption{
		WithSkipRedacted(opts.SkipRedacted),
		WithScannerMetrics(opts.Metrics),
	}
	if opts.Revealer != nil {
		scannerOpts = append(scannerOpts, WithRevealer(opts.Revealer))
	}

	return &Service{
		store:   store,
		scanner: NewScanner(store, scannerOpts...),
		remediator: NewRemediator(store,
			WithBatchSize(opts.BatchSize),
			WithDefaultActor(opts.DefaultActor),
			WithClock(opts.Clock),
			WithAudit(opts.Audit),
			WithRemediatorMetrics(opts.Metrics),
		),
		history:      NewHistory(opts.HistorySize),
		audit:        opts.Audit,
		metrics:      opts.Metrics,
		clock:        opts.Clock,
		defaultActor: opts.DefaultActor,
	}
}

// Scan 只掃描不清理.
func (s *Service) Scan(ctx context.Context, conversationID string) ([]CorruptedMessage, error) {
	return s.scanner.Scan(ctx, conversationID)
}

// Remediate 直接清理已掃描出的訊息.
func (s *Service) Remediate(ctx context.Context, msgs []CorruptedMessage, opts RemediateOptions) (*RemediationResult, error) {
	return s.remediator.Remediate(ctx, msgs, opts)
}

// CleanupConversation 計數、掃描並清理對話.
// deleteInsteadOfClean 為 true 時軟刪除，否則遮蔽.
func (s *Service) CleanupConversation(ctx context.Context, conversationID string, deleteInsteadOfClean bool) (*Summary, error) {
	mode := ModeClean
	if deleteInsteadOfClean {
		mode = ModeDelete
	}

	res, err := s.Run(ctx, RunRequest{ConversationID: conversationID, Mode: mode})
	if err != nil {
		return nil, err
	}
	summary := res.Summary
	return &summary, nil
}

// Run 執行一次 scan、clean 或 delete.
// 計數與掃描失敗會回傳錯誤，單筆清理失敗只反映在 FailedIDs.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	started := s.clock()
	res := &RunResult{
		RunID:       uuid.NewString(),
		Mode:        req.Mode,
		DryRun:      req.DryRun,
		Messages:    []CorruptedMessage{},
		AffectedIDs: []string{},
	}

	err := s.run(ctx, req, res)
	s.finish(ctx, req, res, started, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) run(ctx context.Context, req RunRequest, res *RunResult) error {
	// 計數在掃描之前，期間的新增訊息不保證一致
	count, err := s.store.CountByField(ctx, message.FieldConversationID, req.ConversationID)
	if err != nil {
		return fmt.Errorf("%w: conversation %s: %w", ErrCountFailed, req.ConversationID, err)
	}
	res.Scanned = count

	flagged, err := s.scanner.Scan(ctx, req.ConversationID)
	if err != nil {
		return err
	}
	res.Corrupted = len(flagged)
	res.Messages = flagged

	strategy, destructive := req.Mode.Strategy()
	if !destructive || len(flagged) == 0 {
		return nil
	}

	rem, err := s.remediator.Remediate(ctx, flagged, RemediateOptions{
		Strategy: strategy,
		ActorID:  req.ActorID,
		DryRun:   req.DryRun,
	})
	if err != nil {
		return err
	}
	res.Cleaned = rem.AffectedCount
	res.AffectedIDs = rem.AffectedIDs
	res.FailedIDs = rem.FailedIDs
	return nil
}

func (s *Service) validate(req *RunRequest) error {
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	if req.ConversationID == "" {
		return ErrMissingConversationID
	}
	if len(req.ConversationID) > constants.MaxConversationIDLength {
		return ErrInvalidConversationID
	}

	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return err
	}
	req.Mode = mode

	req.ActorID = strings.TrimSpace(req.ActorID)
	if req.ActorID == "" {
		req.ActorID = s.defaultActor
	}
	if len(req.ActorID) > constants.MaxActorIDLength {
		return ErrInvalidActorID
	}
	return nil
}

func (s *Service) finish(ctx context.Context, req RunRequest, res *RunResult, started time.Time, runErr error) {
	duration := s.clock().Sub(started)

	rec := RunRecord{
		ID:             res.RunID,
		ConversationID: req.ConversationID,
		Mode:           req.Mode,
		DryRun:         req.DryRun,
		ActorID:        req.ActorID,
		Scanned:        res.Scanned,
		Corrupted:      res.Corrupted,
		Cleaned:        res.Cleaned,
		StartedAt:      started,
		Duration:       duration,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	s.history.Add(rec)
	s.metrics.observeRun(req.Mode, duration)

	s.audit.LogSanitizeRun(ctx, audit.RunEvent{
		RunID:          res.RunID,
		ConversationID: req.ConversationID,
		Mode:           string(req.Mode),
		ActorID:        req.ActorID,
		DryRun:         req.DryRun,
		Source:         req.Source,
		IPAddress:      req.ClientIP,
		Scanned:        res.Scanned,
		Corrupted:      res.Corrupted,
		Cleaned:        res.Cleaned,
		Err:            runErr,
	})

	opts := []logger.LogOption{
		logger.WithRunID(res.RunID),
		logger.WithConversationID(req.ConversationID),
		logger.WithActorID(req.ActorID),
		logger.WithAction(string(req.Mode)),
		logger.WithDetails(map[string]interface{}{
			"dry_run":   req.DryRun,
			"source":    req.Source,
			"scanned":   res.Scanned,
			"corrupted": res.Corrupted,
			"cleaned":   res.Cleaned,
			"failed":    len(res.FailedIDs),
			"duration":  duration.String(),
		}),
	}
	if runErr != nil {
		logger.Error(ctx, "清理執行失敗", append(opts, logger.WithError(runErr))...)
		return
	}
	logger.Info(ctx, "清理執行完成", opts...)
}

// History 最近的執行紀錄，新的在前.
func (s *Service) History() []RunRecord {
	return s.history.List()
}
