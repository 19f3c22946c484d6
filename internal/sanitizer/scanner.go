package sanitizer

import (
	"context"
	"fmt"
	"strings"

	"chat-sanitizer/internal/corruption"
	"chat-sanitizer/internal/platform/logger"
	"chat-sanitizer/internal/storage/database/message"
)

// Scanner 讀取整個對話並回傳被判定為損壞的訊息.
type Scanner struct {
	store        message.Store
	revealer     Revealer
	skipRedacted bool
	metrics      *Metrics
}

// ScannerOption Scanner 選項.
type ScannerOption func(*Scanner)

// WithRevealer 分類前先還原內容（解密）.
func WithRevealer(r Revealer) ScannerOption {
	return func(s *Scanner) {
		s.revealer = r
	}
}

// WithSkipRedacted 略過已遮蔽（is_corrupted）的訊息.
// 預設不略過：遮蔽後的佔位文字本身是已知錯誤文字，再次掃描會被重新判定.
func WithSkipRedacted(skip bool) ScannerOption {
	return func(s *Scanner) {
		s.skipRedacted = skip
	}
}

// WithScannerMetrics 設定指標.
func WithScannerMetrics(m *Metrics) ScannerOption {
	return func(s *Scanner) {
		s.metrics = m
	}
}

// NewScanner 創建掃描器.
func NewScanner(store message.Store, opts ...ScannerOption) *Scanner {
	s := &Scanner{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan 掃描對話。讀取失敗時回傳 ErrScanFailed，不回傳部分結果.
func (s *Scanner) Scan(ctx context.Context, conversationID string) ([]CorruptedMessage, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, ErrMissingConversationID
	}

	msgs, err := s.store.FindByField(ctx, message.FieldConversationID, conversationID)
	if err != nil {
		logger.Error(ctx, "讀取對話訊息失敗",
			logger.WithConversationID(conversationID),
			logger.WithAction("scan"),
			logger.WithError(err))
		return nil, fmt.Errorf("%w: conversation %s: %w", ErrScanFailed, conversationID, err)
	}

	flagged := make([]CorruptedMessage, 0)
	for _, m := range msgs {
		if s.skipRedacted && m.IsCorrupted {
			continue
		}

		text := m.Text
		if s.revealer != nil {
			text = s.revealer.Reveal(conversationID, m.Text)
		}

		res := corruption.Classify(text)
		if !res.Corrupted {
			continue
		}
		flagged = append(flagged, CorruptedMessage{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Text:           m.Text,
			Reason:         res.Reason,
		})
	}

	s.metrics.observeScan(len(msgs), flagged)

	logger.Debug(ctx, "對話掃描完成",
		logger.WithConversationID(conversationID),
		logger.WithAction("scan"),
		logger.WithDetails(map[string]interface{}{
			"messages":  len(msgs),
			"corrupted": len(flagged),
		}))

	return flagged, nil
}
