// Package sanitizer 掃描對話中的亂碼訊息並以遮蔽或軟刪除清理.
//
// 流程：計數 → 掃描（分類器判斷）→ 清理 → 摘要。單次呼叫同步執行，
// 不做背景排程。
package sanitizer

import (
	"errors"
	"fmt"
	"strings"
)

// 錯誤定義.
var (
	ErrMissingConversationID = errors.New("conversation id is required")
	ErrInvalidConversationID = errors.New("conversation id is too long")
	ErrInvalidActorID        = errors.New("actor id is too long")
	ErrInvalidMode           = errors.New("invalid sanitize mode")
	ErrInvalidStrategy       = errors.New("invalid remediation strategy")
	ErrConfirmationRequired  = errors.New("destructive run requires confirmation")
	ErrScanFailed            = errors.New("scan failed")
	ErrCountFailed           = errors.New("count failed")
)

// Strategy 清理策略.
type Strategy string

const (
	// StrategyRedact 以佔位文字取代內容並保留原文
	StrategyRedact Strategy = "redact"
	// StrategySoftDelete 標記刪除（tombstone），不實際刪除文件
	StrategySoftDelete Strategy = "soft_delete"
)

// Valid 檢查策略是否合法.
func (s Strategy) Valid() bool {
	return s == StrategyRedact || s == StrategySoftDelete
}

// Mode 執行模式.
type Mode string

const (
	ModeScan   Mode = "scan"
	ModeClean  Mode = "clean"
	ModeDelete Mode = "delete"
)

// ParseMode 解析模式字串，空字串視為 scan.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeScan:
		return ModeScan, nil
	case ModeClean:
		return ModeClean, nil
	case ModeDelete:
		return ModeDelete, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Strategy 模式對應的清理策略，scan 沒有.
func (m Mode) Strategy() (Strategy, bool) {
	switch m {
	case ModeClean:
		return StrategyRedact, true
	case ModeDelete:
		return StrategySoftDelete, true
	default:
		return "", false
	}
}

// Destructive 是否會寫入存儲.
func (m Mode) Destructive() bool {
	_, ok := m.Strategy()
	return ok
}

// CheckConfirmation 破壞性且非 dry-run 的執行需要明確確認.
func CheckConfirmation(mode Mode, dryRun, confirmed bool) error {
	if mode.Destructive() && !dryRun && !confirmed {
		return fmt.Errorf("%w: mode %s", ErrConfirmationRequired, mode)
	}
	return nil
}

// CorruptedMessage 掃描結果，Text 為存儲中的原始內容.
type CorruptedMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	Reason         string `json:"reason"`
}

// RemediateOptions 清理選項.
type RemediateOptions struct {
	Strategy Strategy
	ActorID  string
	DryRun   bool
}

// RemediationResult 清理結果.
type RemediationResult struct {
	AffectedCount int      `json:"affected_count"`
	AffectedIDs   []string `json:"affected_ids"`
	FailedIDs     []string `json:"failed_ids,omitempty"`
}

// Summary 對話清理摘要.
type Summary struct {
	Scanned   int64 `json:"scanned"`
	Corrupted int   `json:"corrupted"`
	Cleaned   int   `json:"cleaned"`
}

// RunRequest 一次執行的參數.
type RunRequest struct {
	ConversationID string
	Mode           Mode
	ActorID        string
	DryRun         bool

	// 來源資訊，只用於日誌與審計
	Source   string
	ClientIP string
}

// RunResult 一次執行的結果.
type RunResult struct {
	RunID  string `json:"run_id"`
	Mode   Mode   `json:"mode"`
	DryRun bool   `json:"dry_run"`
	Summary
	Messages    []CorruptedMessage `json:"messages"`
	AffectedIDs []string           `json:"affected_ids"`
	FailedIDs   []string           `json:"failed_ids,omitempty"`
}

// Revealer 在分類前還原訊息內容（例如解密）.
type Revealer interface {
	Reveal(conversationID, stored string) string
}
