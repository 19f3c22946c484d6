package audit

import (
	"context"
	"time"

	"chat-sanitizer/internal/platform/logger"
)

// AuditService 審計服務
type AuditService struct {
	enabled bool
	now     func() time.Time
}

// NewAuditService 創建審計服務
func NewAuditService(enabled bool) *AuditService {
	return &AuditService{
		enabled: enabled,
		now:     time.Now,
	}
}

// AuditEvent 審計事件
type AuditEvent struct {
	Timestamp      time.Time              `json:"timestamp"`
	EventType      string                 `json:"event_type"`
	ActorID        string                 `json:"actor_id"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	MessageID      string                 `json:"message_id,omitempty"`
	Action         string                 `json:"action"`
	Result         string                 `json:"result"` // success, failure, dry_run, blocked
	Details        map[string]interface{} `json:"details,omitempty"`
	IPAddress      string                 `json:"ip_address,omitempty"`
}

// RunEvent 一次清理執行的審計資訊
type RunEvent struct {
	RunID          string
	ConversationID string
	Mode           string
	ActorID        string
	DryRun         bool
	Source         string // http, grpc, cli
	IPAddress      string
	Scanned        int64
	Corrupted      int
	Cleaned        int
	Err            error
}

// LogRedaction 記錄單筆訊息被遮蔽
func (a *AuditService) LogRedaction(ctx context.Context, actorID, conversationID, messageID, reason string, err error) {
	if !a.IsEnabled() {
		return
	}

	event := AuditEvent{
		Timestamp:      a.now(),
		EventType:      "message_redaction",
		ActorID:        actorID,
		ConversationID: conversationID,
		MessageID:      messageID,
		Action:         "redact_message",
		Result:         result(err),
		Details: map[string]interface{}{
			"reason": reason,
		},
	}
	if err != nil {
		event.Details["error"] = err.Error()
	}

	a.log(ctx, event)
}

// LogSoftDelete 記錄一個批次的軟刪除
func (a *AuditService) LogSoftDelete(ctx context.Context, actorID, conversationID string, batch int, messageIDs []string, err error) {
	if !a.IsEnabled() {
		return
	}

	event := AuditEvent{
		Timestamp:      a.now(),
		EventType:      "message_soft_delete",
		ActorID:        actorID,
		ConversationID: conversationID,
		Action:         "soft_delete_batch",
		Result:         result(err),
		Details: map[string]interface{}{
			"batch":       batch,
			"message_ids": messageIDs,
		},
	}
	if err != nil {
		event.Details["error"] = err.Error()
	}

	a.log(ctx, event)
}

// LogSanitizeRun 記錄一次清理執行
func (a *AuditService) LogSanitizeRun(ctx context.Context, run RunEvent) {
	if !a.IsEnabled() {
		return
	}

	res := result(run.Err)
	if run.Err == nil && run.DryRun {
		res = "dry_run"
	}

	event := AuditEvent{
		Timestamp:      a.now(),
		EventType:      "sanitize_run",
		ActorID:        run.ActorID,
		ConversationID: run.ConversationID,
		Action:         run.Mode,
		Result:         res,
		IPAddress:      run.IPAddress,
		Details: map[string]interface{}{
			"run_id":    run.RunID,
			"source":    run.Source,
			"dry_run":   run.DryRun,
			"scanned":   run.Scanned,
			"corrupted": run.Corrupted,
			"cleaned":   run.Cleaned,
		},
	}
	if run.Err != nil {
		event.Details["error"] = run.Err.Error()
	}

	a.log(ctx, event)
}

// LogRateLimitExceeded 記錄速率限制超過
func (a *AuditService) LogRateLimitExceeded(ctx context.Context, ipAddress, endpoint string) {
	if !a.IsEnabled() {
		return
	}

	event := AuditEvent{
		Timestamp: a.now(),
		EventType: "rate_limit",
		Action:    "api_request",
		Result:    "blocked",
		IPAddress: ipAddress,
		Details: map[string]interface{}{
			"endpoint": endpoint,
			"reason":   "rate_limit_exceeded",
		},
	}

	a.log(ctx, event)
}

// IsEnabled 檢查審計是否啟用
func (a *AuditService) IsEnabled() bool {
	return a != nil && a.enabled
}

// log 透過平台日誌輸出審計事件，以 audit 標籤區分
func (a *AuditService) log(ctx context.Context, event AuditEvent) {
	details := map[string]interface{}{
		"event_type": event.EventType,
		"result":     event.Result,
		"timestamp":  event.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if event.IPAddress != "" {
		details["ip_address"] = event.IPAddress
	}
	for k, v := range event.Details {
		details[k] = v
	}

	logger.Notice(ctx, "[AUDIT] "+event.EventType,
		logger.WithAction(event.Action),
		logger.WithActorID(event.ActorID),
		logger.WithConversationID(event.ConversationID),
		logger.WithMessageID(event.MessageID),
		logger.WithDetails(details),
		logger.WithLabels(map[string]string{"log_type": "audit"}),
	)
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
