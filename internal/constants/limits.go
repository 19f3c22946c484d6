package constants

// HTTP 請求相關常數
const (
	DefaultMaxRequestBodySize = 1 << 20 // 1MB
	DefaultRequestTimeout     = 30      // 秒
)

// 清理流程相關常數（可被配置覆蓋）
const (
	DefaultSoftDeleteBatchSize = 10
	MaxSoftDeleteBatchSize     = 500
	DefaultRunHistorySize      = 5
	DefaultActorID             = "system"
)

// Rate Limiting 默認值（僅 dev 端點）
const (
	DefaultDevRateLimitPerMinute = 30
	DefaultDevRateLimitBurst     = 5
	RateLimitCleanupIntervalMin  = 10 // 分鐘
)

// ID 相關常數
const (
	MaxConversationIDLength = 128
	MaxActorIDLength        = 100
)

// 加密相關常數
const (
	EncryptedPrefix = "aes256ctr:"
	MasterKeyLength = 32 // 256 bits
)
