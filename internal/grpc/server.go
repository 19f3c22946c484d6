package grpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"chat-sanitizer/internal/platform/logger"
	"chat-sanitizer/internal/sanitizer"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// actorMetadataKey 也可以從 metadata 帶操作者
const actorMetadataKey = "x-actor-id"

// Sanitizer gRPC 層使用的清理服務.
type Sanitizer interface {
	Run(ctx context.Context, req sanitizer.RunRequest) (*sanitizer.RunResult, error)
	History() []sanitizer.RunRecord
}

// Server gRPC 服務器
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	service    Sanitizer
}

// NewServer 創建新的 gRPC 服務器，debug 為 false 時管理方法一律拒絕
func NewServer(svc Sanitizer, debug bool, opts ...grpc.ServerOption) *Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		loggingInterceptor(),
		devGuardInterceptor(debug),
	))

	s := &Server{
		grpcServer: grpc.NewServer(opts...),
		health:     health.NewServer(),
		service:    svc,
	}

	RegisterSanitizerAdminServer(s.grpcServer, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	logger.Infof(context.Background(), "gRPC 服務器初始化 - 管理方法: %v", debug)
	return s
}

// Start 監聽位址並啟動
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve 使用既有的 listener
func (s *Server) Serve(lis net.Listener) error {
	logger.Infof(context.Background(), "gRPC 服務器啟動在 %s", lis.Addr())
	return s.grpcServer.Serve(lis)
}

// Stop 停止 gRPC 服務器
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// Sanitize 執行一次 scan、clean 或 delete
func (s *Server) Sanitize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	mode, err := sanitizer.ParseMode(stringField(req, "mode"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	dryRun := boolField(req, "dry_run")
	if err := sanitizer.CheckConfirmation(mode, dryRun, boolField(req, "confirm")); err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}

	actorID := stringField(req, "actor_id")
	if actorID == "" {
		actorID = metadataValue(ctx, actorMetadataKey)
	}

	res, err := s.service.Run(ctx, sanitizer.RunRequest{
		ConversationID: stringField(req, "conversation_id"),
		Mode:           mode,
		ActorID:        actorID,
		DryRun:         dryRun,
		Source:         "grpc",
		ClientIP:       peerAddr(ctx),
	})
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := ToStruct(res)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode result")
	}
	return out, nil
}

// ListRuns 最近的執行紀錄，新的在前
func (s *Server) ListRuns(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	runs := s.service.History()

	out, err := ToStruct(map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "encode runs")
	}
	return out, nil
}

// toStatus 驗證錯誤回傳原因，存儲錯誤不洩露細節
func toStatus(err error) error {
	switch {
	case errors.Is(err, sanitizer.ErrMissingConversationID),
		errors.Is(err, sanitizer.ErrInvalidConversationID),
		errors.Is(err, sanitizer.ErrInvalidActorID),
		errors.Is(err, sanitizer.ErrInvalidMode):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, sanitizer.ErrCountFailed):
		return status.Error(codes.Unavailable, sanitizer.ErrCountFailed.Error())
	case errors.Is(err, sanitizer.ErrScanFailed):
		return status.Error(codes.Unavailable, sanitizer.ErrScanFailed.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// devGuardInterceptor 非 debug 環境只開放 health
func devGuardInterceptor(debug bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !debug && strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return nil, status.Errorf(codes.Unimplemented, "unknown method %s", info.FullMethod)
		}
		return handler(ctx, req)
	}
}

func loggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		details := map[string]interface{}{
			"method":   info.FullMethod,
			"code":     status.Code(err).String(),
			"duration": time.Since(start).String(),
			"peer":     peerAddr(ctx),
		}
		if err != nil {
			logger.Warning(ctx, "gRPC 請求失敗", logger.WithAction("grpc"), logger.WithDetails(details))
		} else {
			logger.Info(ctx, "gRPC 請求", logger.WithAction("grpc"), logger.WithDetails(details))
		}
		return resp, err
	}
}

func metadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}
