package sanitizer

import (
	"sync"
	"time"

	"chat-sanitizer/internal/constants"
)

// RunRecord 執行紀錄.
type RunRecord struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Mode           Mode          `json:"mode"`
	DryRun         bool          `json:"dry_run"`
	ActorID        string        `json:"actor_id"`
	Scanned        int64         `json:"scanned"`
	Corrupted      int           `json:"corrupted"`
	Cleaned        int           `json:"cleaned"`
	Error          string        `json:"error,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration_ns"`
}

// History 固定容量的執行紀錄，只存在記憶體.
type History struct {
	mu      sync.Mutex
	size    int
	records []RunRecord // 新的在前
}

// NewHistory 建立容量為 size 的紀錄，size <= 0 使用預設值.
func NewHistory(size int) *History {
	if size <= 0 {
		size = constants.DefaultRunHistorySize
	}
	return &History{
		size:    size,
		records: make([]RunRecord, 0, size),
	}
}

// Add 加入一筆紀錄，超過容量時丟棄最舊的.
func (h *History) Add(rec RunRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.records) < h.size {
		h.records = append(h.records, RunRecord{})
	}
	copy(h.records[1:], h.records[:len(h.records)-1])
	h.records[0] = rec
}

// List 回傳副本，新的在前.
func (h *History) List() []RunRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]RunRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Size 容量.
func (h *History) Size() int {
	return h.size
}
