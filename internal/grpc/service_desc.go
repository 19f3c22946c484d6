package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName 管理服務名稱.
const ServiceName = "sanitizer.v1.SanitizerAdmin"

// 完整方法名稱.
const (
	SanitizeMethod = "/" + ServiceName + "/Sanitize"
	ListRunsMethod = "/" + ServiceName + "/ListRuns"
)

// SanitizerAdminServer 管理服務介面，請求與回應皆為 google.protobuf.Struct.
type SanitizerAdminServer interface {
	Sanitize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// SanitizerAdminServiceDesc 手寫的服務描述，不需要產生的 stub.
var SanitizerAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SanitizerAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Sanitize", Handler: sanitizeHandler},
		{MethodName: "ListRuns", Handler: listRunsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sanitizer/v1/admin.proto",
}

// RegisterSanitizerAdminServer 註冊管理服務.
func RegisterSanitizerAdminServer(s grpc.ServiceRegistrar, srv SanitizerAdminServer) {
	s.RegisterService(&SanitizerAdminServiceDesc, srv)
}

func sanitizeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SanitizerAdminServer).Sanitize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SanitizeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SanitizerAdminServer).Sanitize(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listRunsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SanitizerAdminServer).ListRuns(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListRunsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SanitizerAdminServer).ListRuns(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
