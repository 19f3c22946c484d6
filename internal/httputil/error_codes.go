package httputil

// API 錯誤代碼常數.
const (
	// 2000-2999: 參數相關錯誤 (400 Bad Request).
	ErrorCodeInvalidParameter     = 2001
	ErrorCodeInvalidMode          = 2002
	ErrorCodeConfirmationRequired = 2003

	// 5000-5999: 處理相關錯誤 (500 Internal Server Error).
	ErrorCodeProcessingFailed = 5001
	ErrorCodeScanFailed       = 5002
	ErrorCodeCountFailed      = 5003
)
