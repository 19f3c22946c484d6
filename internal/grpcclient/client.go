package grpcclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"sync"

	sanitizergrpc "chat-sanitizer/internal/grpc"
	"chat-sanitizer/internal/platform/config"
	"chat-sanitizer/internal/platform/logger"
	"chat-sanitizer/internal/sanitizer"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	conn *grpc.ClientConn
	mu   sync.RWMutex
)

// GetConnection 獲取或創建 gRPC 客戶端連接（單例模式）
// 自動從配置讀取地址
func GetConnection() (*grpc.ClientConn, error) {
	mu.RLock()
	if conn != nil {
		mu.RUnlock()
		return conn, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// 再次檢查（雙重檢查鎖定）
	if conn != nil {
		return conn, nil
	}

	cfg := config.Get()
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	address := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)

	var err error
	if cfg.Security.TLS.Enabled {
		conn, err = dialWithTLS(address, cfg.Security.TLS)
	} else {
		conn, err = dialInsecure(address)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server at %s: %w", address, err)
	}

	return conn, nil
}

// dialWithTLS 使用 TLS 連接
func dialWithTLS(address string, tlsConfig config.TLSConfig) (*grpc.ClientConn, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if tlsConfig.CAFile != "" {
		ca, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM(ca); !ok {
			return nil, fmt.Errorf("failed to append CA cert")
		}
		cfg.RootCAs = certPool
	}

	// 雙向 TLS
	if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return grpc.NewClient(address, grpc.WithTransportCredentials(credentials.NewTLS(cfg)))
}

// dialInsecure 不使用 TLS 連接（僅開發環境）
func dialInsecure(address string) (*grpc.ClientConn, error) {
	logger.Warning(context.Background(), "gRPC 使用不安全連接（開發環境）")
	return grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// CloseConnection 關閉 gRPC 連接
func CloseConnection() error {
	mu.Lock()
	defer mu.Unlock()

	if conn != nil {
		err := conn.Close()
		conn = nil
		return err
	}
	return nil
}

// IsConnected 檢查是否已連接
func IsConnected() bool {
	mu.RLock()
	defer mu.RUnlock()
	return conn != nil
}

// SanitizeParams 遠端清理的參數
type SanitizeParams struct {
	ConversationID string `json:"conversation_id"`
	Mode           string `json:"mode,omitempty"`
	ActorID        string `json:"actor_id,omitempty"`
	DryRun         bool   `json:"dry_run,omitempty"`
	Confirm        bool   `json:"confirm,omitempty"`
}

// Client 管理服務客戶端
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient 以既有連接建立客戶端
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Sanitize 呼叫遠端 Sanitize
func (c *Client) Sanitize(ctx context.Context, params SanitizeParams, opts ...grpc.CallOption) (*sanitizer.RunResult, error) {
	in, err := sanitizergrpc.ToStruct(params)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, sanitizergrpc.SanitizeMethod, in, out, opts...); err != nil {
		return nil, err
	}

	var res sanitizer.RunResult
	if err := sanitizergrpc.FromStruct(out, &res); err != nil {
		return nil, fmt.Errorf("decode sanitize result: %w", err)
	}
	return &res, nil
}

// ListRuns 最近的執行紀錄，新的在前
func (c *Client) ListRuns(ctx context.Context, opts ...grpc.CallOption) ([]sanitizer.RunRecord, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, sanitizergrpc.ListRunsMethod, &structpb.Struct{}, out, opts...); err != nil {
		return nil, err
	}

	var resp struct {
		Runs []sanitizer.RunRecord `json:"runs"`
	}
	if err := sanitizergrpc.FromStruct(out, &resp); err != nil {
		return nil, fmt.Errorf("decode runs: %w", err)
	}
	return resp.Runs, nil
}
