// Package memstore 提供 message.Store 的記憶體實作.
//
// 用於本地開發（database.driver: memory）和測試。支援注入時鐘以及
// 針對讀取、計數、單筆更新與第 n 次批次提交的失敗注入。
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"chat-sanitizer/internal/storage/database/message"
)

// Option Store 選項.
type Option func(*Store)

// WithClock 注入時鐘，ServerTimestamp 會以此取值.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// Store 記憶體訊息存儲.
type Store struct {
	mu    sync.Mutex
	clock func() time.Time

	order []string
	docs  map[string]*message.Message

	findErr    error
	countErr   error
	updateErrs map[string]error
	commitErrs map[int]error

	findCalls   int
	updateCalls int
	commitCalls int
	writes      int
}

var _ message.Store = (*Store)(nil)

// New 創建空的記憶體存儲.
func New(opts ...Option) *Store {
	s := &Store{
		clock:      func() time.Time { return time.Now().UTC() },
		docs:       make(map[string]*message.Message),
		updateErrs: make(map[string]error),
		commitErrs: make(map[int]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert 寫入訊息副本。ID 重複時回傳錯誤.
func (s *Store) Insert(_ context.Context, msgs ...*message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range msgs {
		if m.ID == "" {
			return fmt.Errorf("insert message: empty id")
		}
		if _, exists := s.docs[m.ID]; exists {
			return fmt.Errorf("insert message %s: duplicate id", m.ID)
		}
		cp := clone(m)
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = s.clock()
		}
		if cp.UpdatedAt.IsZero() {
			cp.UpdatedAt = cp.CreatedAt
		}
		s.docs[m.ID] = cp
		s.order = append(s.order, m.ID)
	}
	return nil
}

// LoadSeedFile 從 JSON 陣列檔案載入訊息.
func (s *Store) LoadSeedFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var msgs []*message.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	return s.Insert(ctx, msgs...)
}

// Get 取得訊息副本.
func (s *Store) Get(id string) (*message.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	return clone(m), true
}

// FindByField 依插入順序回傳符合條件的訊息副本.
func (s *Store) FindByField(ctx context.Context, field string, value interface{}) ([]*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*message.Message, 0)
	for _, id := range s.order {
		m := s.docs[id]
		ok, err := matches(m, field, value)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, clone(m))
		}
	}
	return out, nil
}

// CountByField 計數符合條件的訊息.
func (s *Store) CountByField(ctx context.Context, field string, value interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.countErr != nil {
		return 0, s.countErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int64
	for _, id := range s.order {
		ok, err := matches(s.docs[id], field, value)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// UpdateFields 合併更新單一訊息.
func (s *Store) UpdateFields(ctx context.Context, id string, fields message.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateCalls++
	if err, ok := s.updateErrs[id]; ok {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("update message %s: %w", id, message.ErrNotFound)
	}

	cp := clone(m)
	if err := s.apply(cp, fields); err != nil {
		return fmt.Errorf("update message %s: %w", id, err)
	}
	s.docs[id] = cp
	s.writes++
	return nil
}

// CommitBatch 全有或全無地套用一組更新.
func (s *Store) CommitBatch(ctx context.Context, writes []message.BatchWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commitCalls++
	if err, ok := s.commitErrs[s.commitCalls]; ok {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	staged := make(map[string]*message.Message, len(writes))
	for _, w := range writes {
		m, ok := staged[w.ID]
		if !ok {
			orig, exists := s.docs[w.ID]
			if !exists {
				return fmt.Errorf("commit batch: message %s: %w", w.ID, message.ErrNotFound)
			}
			m = clone(orig)
		}
		if err := s.apply(m, w.Fields); err != nil {
			return fmt.Errorf("commit batch: message %s: %w", w.ID, err)
		}
		staged[w.ID] = m
	}

	for id, m := range staged {
		s.docs[id] = m
	}
	s.writes += len(writes)
	return nil
}

// Ping 記憶體存儲永遠可用.
func (s *Store) Ping(context.Context) error {
	return nil
}

// FailFind 之後的 FindByField 都回傳 err（nil 清除）.
func (s *Store) FailFind(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findErr = err
}

// FailCount 之後的 CountByField 都回傳 err（nil 清除）.
func (s *Store) FailCount(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countErr = err
}

// FailUpdate 針對指定訊息的 UpdateFields 回傳 err.
func (s *Store) FailUpdate(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.updateErrs, id)
		return
	}
	s.updateErrs[id] = err
}

// FailCommit 第 nth 次（從 1 起算）CommitBatch 回傳 err.
func (s *Store) FailCommit(nth int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.commitErrs, nth)
		return
	}
	s.commitErrs[nth] = err
}

// FindCalls FindByField 呼叫次數.
func (s *Store) FindCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findCalls
}

// UpdateCalls UpdateFields 呼叫次數（含失敗）.
func (s *Store) UpdateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateCalls
}

// CommitCalls CommitBatch 呼叫次數（含失敗）.
func (s *Store) CommitCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitCalls
}

// Writes 已成功寫入的文件更新數.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) apply(m *message.Message, fields message.Fields) error {
	var err error
	for field, v := range fields {
		if ia, ok := v.(message.IfAbsent); ok {
			if isSet(m, field) {
				continue
			}
			v = ia.Value
		}
		if message.IsServerTimestamp(v) {
			v = s.clock()
		}

		switch field {
		case message.FieldText:
			m.Text, err = asString(field, v)
		case message.FieldIsCorrupted:
			m.IsCorrupted, err = asBool(field, v)
		case message.FieldOriginalText:
			var str string
			if str, err = asString(field, v); err == nil {
				m.OriginalText = &str
			}
		case message.FieldCorruptionReason:
			m.CorruptionReason, err = asString(field, v)
		case message.FieldCleanedAt:
			m.CleanedAt, err = asTime(field, v)
		case message.FieldDeleted:
			m.Deleted, err = asBool(field, v)
		case message.FieldDeletedAt:
			m.DeletedAt, err = asTime(field, v)
		case message.FieldDeletedBy:
			m.DeletedBy, err = asString(field, v)
		case message.FieldDeleteReason:
			m.DeleteReason, err = asString(field, v)
		case message.FieldUpdatedAt:
			var t *time.Time
			if t, err = asTime(field, v); err == nil {
				m.UpdatedAt = *t
			}
		default:
			err = fmt.Errorf("unsupported field %q", field)
		}
		if err != nil {
			return err
		}
	}

	if _, ok := fields[message.FieldUpdatedAt]; !ok {
		m.UpdatedAt = s.clock()
	}
	return nil
}

func matches(m *message.Message, field string, value interface{}) (bool, error) {
	switch field {
	case message.FieldID:
		return m.ID == value, nil
	case message.FieldConversationID:
		return m.ConversationID == value, nil
	case message.FieldIsCorrupted:
		return m.IsCorrupted == value, nil
	case message.FieldDeleted:
		return m.Deleted == value, nil
	case "sender_id":
		return m.SenderID == value, nil
	default:
		return false, fmt.Errorf("unsupported filter field %q", field)
	}
}

func isSet(m *message.Message, field string) bool {
	switch field {
	case message.FieldOriginalText:
		return m.OriginalText != nil
	case message.FieldCleanedAt:
		return m.CleanedAt != nil
	case message.FieldDeletedAt:
		return m.DeletedAt != nil
	case message.FieldCorruptionReason:
		return m.CorruptionReason != ""
	case message.FieldDeletedBy:
		return m.DeletedBy != ""
	case message.FieldDeleteReason:
		return m.DeleteReason != ""
	default:
		return false
	}
}

func asString(field string, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q expects string, got %T", field, v)
	}
	return s, nil
}

func asBool(field string, v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("field %q expects bool, got %T", field, v)
	}
	return b, nil
}

func asTime(field string, v interface{}) (*time.Time, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, fmt.Errorf("field %q expects time, got %T", field, v)
	}
	return &t, nil
}

func clone(m *message.Message) *message.Message {
	cp := *m
	if m.OriginalText != nil {
		s := *m.OriginalText
		cp.OriginalText = &s
	}
	if m.CleanedAt != nil {
		t := *m.CleanedAt
		cp.CleanedAt = &t
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}
