package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	sanitizergrpc "chat-sanitizer/internal/grpc"
	"chat-sanitizer/internal/platform/logger"

	"google.golang.org/grpc"
)

const shutdownTimeout = 30 * time.Second

// Run 啟動 HTTP 與 gRPC 伺服器，ctx 結束後優雅關閉.
func Run(ctx context.Context, deps Deps) error {
	cfg := deps.Config

	handler := NewHTTPHandler(deps)
	defer handler.Close()

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.Server.Timeout) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.Timeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		logger.LogInfof("HTTP 伺服器正在監聽: %s", httpServer.Addr)
		var err error
		if cfg.Server.UseHTTPS {
			err = httpServer.ListenAndServeTLS(cfg.Server.CertPath, cfg.Server.KeyPath)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP 伺服器啟動失敗: %w", err)
		}
	}()

	var grpcServer *sanitizergrpc.Server
	if cfg.GRPC.Enabled {
		var opts []grpc.ServerOption
		creds, err := LoadTLSCredentials(cfg.Security.TLS)
		if err != nil {
			_ = httpServer.Close()
			return fmt.Errorf("載入 gRPC TLS 憑證失敗: %w", err)
		}
		if creds != nil {
			opts = append(opts, grpc.Creds(creds))
		}

		grpcServer = sanitizergrpc.NewServer(deps.Service, cfg.App.Debug, opts...)
		addr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
		go func() {
			logger.LogInfof("gRPC 伺服器正在監聽: %s", addr)
			if err := grpcServer.Start(addr); err != nil {
				errCh <- fmt.Errorf("gRPC 伺服器啟動失敗: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.LogInfof("收到關閉信號，正在優雅關閉伺服器...")
	case runErr = <-errCh:
		logger.Errorf(context.Background(), "%v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Stop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(shutdownCtx, "伺服器強制關閉: %v", err)
		if runErr == nil {
			runErr = err
		}
	}

	logger.LogInfof("伺服器已關閉")
	return runErr
}
