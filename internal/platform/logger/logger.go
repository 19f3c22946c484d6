package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"chat-sanitizer/internal/platform/config"

	"github.com/google/uuid"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

var (
	mu          sync.Mutex
	logWriter   io.Writer
	stdout      io.Writer = os.Stdout
	minSeverity           = SeverityDebug
	projectID             = "local-dev"
	serviceName           = "chat-sanitizer"
)

type traceIDKey struct{}

// InitLogger 依配置開啟輪轉日誌檔，環境變數 LOG_PATH、LOG_LEVEL 優先
func InitLogger() error {
	cfg := config.Get()
	logCfg := config.Default().Log
	if cfg != nil {
		logCfg = cfg.Log
	}

	logDir := os.Getenv("LOG_PATH")
	if logDir == "" {
		logDir = logCfg.Path
	}
	if logDir == "" {
		logDir = "./logs"
	}

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = logCfg.Level
	}
	if level != "" {
		sev, err := ParseSeverity(level)
		if err != nil {
			return err
		}
		SetLevel(sev)
	}

	if id := os.Getenv("GCP_PROJECT_ID"); id != "" {
		projectID = id
	}
	if name := os.Getenv("SERVICE_NAME"); name != "" {
		serviceName = name
	}

	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return err
	}

	logFileName := filepath.Join(logDir, "app.log")
	writer, err := rotatelogs.New(
		logFileName+".%Y%m%d",
		rotatelogs.WithLinkName(logFileName),
		rotatelogs.WithRotationTime(time.Duration(positive(logCfg.RotationTimeHours, 24))*time.Hour),
		rotatelogs.WithMaxAge(time.Duration(positive(logCfg.MaxAgeDays, 30))*24*time.Hour),
		rotatelogs.WithRotationSize(int64(positive(logCfg.MaxSizeMB, 100))*1024*1024),
	)
	if err != nil {
		return err
	}

	mu.Lock()
	logWriter = writer
	mu.Unlock()

	return nil
}

func positive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// SetOutput 替換主控台輸出，nil 表示丟棄。回傳原本的輸出.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := stdout
	if w == nil {
		w = io.Discard
	}
	stdout = w
	return prev
}

// SetLevel 低於此級別的日誌不輸出
func SetLevel(sev Severity) {
	mu.Lock()
	defer mu.Unlock()
	minSeverity = sev
}

func enabled(sev Severity) bool {
	mu.Lock()
	defer mu.Unlock()
	return severityRank[sev] >= severityRank[minSeverity]
}

// CloseLogger 關閉日誌檔案
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()
	if closer, ok := logWriter.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}
	logWriter = nil
}

// writeLog 同時寫入檔案和控制台
func writeLog(entry *LogEntry) {
	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal log entry: %v\n", err)
		return
	}

	line := append(jsonData, '\n')

	mu.Lock()
	defer mu.Unlock()
	if logWriter != nil {
		_, _ = logWriter.Write(line)
	}
	_, _ = stdout.Write(line)
}

func sourceLocation(skip int) *SourceLocation {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return nil
	}

	funcName := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		funcName = fn.Name()
	}

	return &SourceLocation{
		File:     filepath.Base(file),
		Line:     int64(line),
		Function: funcName,
	}
}

// GetTraceID 從 context 獲取 GCP 格式的 trace
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, ok := ctx.Value(traceIDKey{}).(string)
	if !ok || traceID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", projectID, traceID)
}

// WithTraceID 將 trace ID 添加到 context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// logAt skip 為 sourceLocation 到呼叫者的堆疊深度
func logAt(ctx context.Context, skip int, severity Severity, message string, opts ...LogOption) {
	if !enabled(severity) {
		return
	}

	entry := &LogEntry{
		Severity:       severity,
		Message:        message,
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		TraceID:        GetTraceID(ctx),
		SourceLocation: sourceLocation(skip),
		InsertID:       uuid.NewString(),
		Labels: map[string]string{
			"service": serviceName,
		},
	}

	for _, opt := range opts {
		opt(entry)
	}

	writeLog(entry)
}

// Debug 記錄 DEBUG 級別日誌
func Debug(ctx context.Context, message string, opts ...LogOption) {
	logAt(ctx, 3, SeverityDebug, message, opts...)
}

// Info 記錄 INFO 級別日誌
func Info(ctx context.Context, message string, opts ...LogOption) {
	logAt(ctx, 3, SeverityInfo, message, opts...)
}

// Notice 記錄 NOTICE 級別日誌，審計事件使用
func Notice(ctx context.Context, message string, opts ...LogOption) {
	logAt(ctx, 3, SeverityNotice, message, opts...)
}

// Warning 記錄 WARNING 級別日誌
func Warning(ctx context.Context, message string, opts ...LogOption) {
	logAt(ctx, 3, SeverityWarning, message, opts...)
}

// Error 記錄 ERROR 級別日誌
func Error(ctx context.Context, message string, opts ...LogOption) {
	logAt(ctx, 3, SeverityError, message, opts...)
}

// Infof 格式化 INFO 日誌
func Infof(ctx context.Context, format string, args ...interface{}) {
	logAt(ctx, 3, SeverityInfo, fmt.Sprintf(format, args...))
}

// Warningf 格式化 WARNING 日誌
func Warningf(ctx context.Context, format string, args ...interface{}) {
	logAt(ctx, 3, SeverityWarning, fmt.Sprintf(format, args...))
}

// Errorf 格式化 ERROR 日誌
func Errorf(ctx context.Context, format string, args ...interface{}) {
	logAt(ctx, 3, SeverityError, fmt.Sprintf(format, args...))
}

// LogInfof 無 context 的 INFO 日誌（啟動流程用）
func LogInfof(format string, v ...interface{}) {
	logAt(context.Background(), 3, SeverityInfo, fmt.Sprintf(format, v...))
}
