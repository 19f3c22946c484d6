package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// 集合與欄位名稱.
const (
	CollectionName = "messages"

	FieldID               = "id"
	FieldConversationID   = "conversation_id"
	FieldText             = "text"
	FieldIsCorrupted      = "is_corrupted"
	FieldOriginalText     = "original_text"
	FieldCorruptionReason = "corruption_reason"
	FieldCleanedAt        = "cleaned_at"
	FieldDeleted          = "deleted"
	FieldDeletedAt        = "deleted_at"
	FieldDeletedBy        = "deleted_by"
	FieldDeleteReason     = "delete_reason"
	FieldUpdatedAt        = "updated_at"
)

// ErrNotFound 找不到指定的訊息.
var ErrNotFound = errors.New("message not found")

// Store 訊息文件存儲。清理流程只依賴這四個操作.
type Store interface {
	// FindByField 以欄位相等條件取回所有符合的訊息（不分頁）
	FindByField(ctx context.Context, field string, value interface{}) ([]*Message, error)
	// CountByField 以欄位相等條件計數
	CountByField(ctx context.Context, field string, value interface{}) (int64, error)
	// UpdateFields 合併更新單一訊息
	UpdateFields(ctx context.Context, id string, fields Fields) error
	// CommitBatch 原子寫入一組訊息更新
	// 無法保證原子性的實作在部分寫入時回傳 *PartialCommitError
	CommitBatch(ctx context.Context, writes []BatchWrite) error
}

// PartialCommitError 批次只有部分訊息寫入成功.
// Applied 已經落地，Failed 沒有寫入或無法確認.
type PartialCommitError struct {
	Applied []string
	Failed  []string
	Err     error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("partial commit: %d applied, %d failed: %v", len(e.Applied), len(e.Failed), e.Err)
}

func (e *PartialCommitError) Unwrap() error {
	return e.Err
}

// Fields 欄位更新集合。值可以是一般值、ServerTimestamp 或 SetIfAbsent.
type Fields map[string]interface{}

// BatchWrite 批次中的單筆更新.
type BatchWrite struct {
	ID     string
	Fields Fields
}

type serverTimestamp struct{}

// ServerTimestamp 由存儲端決定時間.
var ServerTimestamp = serverTimestamp{}

// IsServerTimestamp 檢查欄位值是否為 ServerTimestamp.
func IsServerTimestamp(v interface{}) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// IfAbsent 僅在欄位尚未有值時寫入.
type IfAbsent struct {
	Value interface{}
}

// SetIfAbsent 包裝只寫一次的欄位值.
func SetIfAbsent(v interface{}) IfAbsent {
	return IfAbsent{Value: v}
}

// Message 訊息數據模型
type Message struct {
	MongoID          bson.ObjectID `bson:"_id,omitempty" json:"-"`
	ID               string        `bson:"id" json:"id"`
	ConversationID   string        `bson:"conversation_id" json:"conversation_id"`
	SenderID         string        `bson:"sender_id,omitempty" json:"sender_id,omitempty"`
	Type             string        `bson:"type,omitempty" json:"type,omitempty"`
	Text             string        `bson:"text" json:"text"`
	IsCorrupted      bool          `bson:"is_corrupted,omitempty" json:"is_corrupted,omitempty"`
	OriginalText     *string       `bson:"original_text,omitempty" json:"original_text,omitempty"`
	CorruptionReason string        `bson:"corruption_reason,omitempty" json:"corruption_reason,omitempty"`
	CleanedAt        *time.Time    `bson:"cleaned_at,omitempty" json:"cleaned_at,omitempty"`
	Deleted          bool          `bson:"deleted,omitempty" json:"deleted,omitempty"`
	DeletedAt        *time.Time    `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	DeletedBy        string        `bson:"deleted_by,omitempty" json:"deleted_by,omitempty"`
	DeleteReason     string        `bson:"delete_reason,omitempty" json:"delete_reason,omitempty"`
	CreatedAt        time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `bson:"updated_at" json:"updated_at"`
}

// NewMessage 創建新的 Message 實例
func NewMessage(conversationID, text string) *Message {
	_id := bson.NewObjectID()
	now := time.Now().UTC()
	return &Message{
		MongoID:        _id,
		ID:             _id.Hex(),
		ConversationID: conversationID,
		Type:           "text",
		Text:           text,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// HasOriginalText 是否已記錄過原始文字.
func (m *Message) HasOriginalText() bool {
	return m.OriginalText != nil
}
