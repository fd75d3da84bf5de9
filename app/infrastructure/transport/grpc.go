package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/usecase"
)

const (
	CacheAdminService = "erp.portal.v1.CacheAdmin"
	cacheAdminProto   = "erp/portal/v1/cache_admin.proto"
	errorDomain       = "erp-portal"
)

// The descriptor is registered so server reflection can describe CacheAdmin.
func init() {
	method := func(name, in, out string) *descriptorpb.MethodDescriptorProto {
		return &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(name),
			InputType:  proto.String(in),
			OutputType: proto.String(out),
		}
	}
	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(cacheAdminProto),
		Package:    proto.String("erp.portal.v1"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"google/protobuf/empty.proto", "google/protobuf/struct.proto"},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("CacheAdmin"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("Invalidate", ".google.protobuf.ListValue", ".google.protobuf.Empty"),
				method("ListQueries", ".google.protobuf.Empty", ".google.protobuf.ListValue"),
				method("Fetch", ".google.protobuf.Struct", ".google.protobuf.Value"),
			},
		}},
	}
	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("build %s descriptor: %v", cacheAdminProto, err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("register %s descriptor: %v", cacheAdminProto, err))
	}
}

// CacheAdminServer inspects and drives the query cache of a portal node.
// Messages are protobuf well-known types, so no generated code is needed.
type CacheAdminServer interface {
	// Invalidate takes a list of keys, each a list of key tokens.
	Invalidate(context.Context, *structpb.ListValue) (*emptypb.Empty, error)
	ListQueries(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	// Fetch reads through a hook: {resource, op, id, filters}.
	Fetch(context.Context, *structpb.Struct) (*structpb.Value, error)
}

var CacheAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: CacheAdminService,
	HandlerType: (*CacheAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invalidate", Handler: invalidateHandler},
		{MethodName: "ListQueries", Handler: listQueriesHandler},
		{MethodName: "Fetch", Handler: fetchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: cacheAdminProto,
}

func invalidateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CacheAdminServer).Invalidate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + CacheAdminService + "/Invalidate"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CacheAdminServer).Invalidate(ctx, req.(*structpb.ListValue))
	})
}

func listQueriesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CacheAdminServer).ListQueries(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + CacheAdminService + "/ListQueries"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CacheAdminServer).ListQueries(ctx, req.(*emptypb.Empty))
	})
}

func fetchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CacheAdminServer).Fetch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + CacheAdminService + "/Fetch"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CacheAdminServer).Fetch(ctx, req.(*structpb.Struct))
	})
}

type gRPCServer struct {
	portal *usecase.Portal
	log    *zap.Logger
}

func NewgRPCServer(portal *usecase.Portal, log *zap.Logger) CacheAdminServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &gRPCServer{portal: portal, log: log.Named("grpc")}
}

// RegisterCacheAdmin adds srv to s.
func RegisterCacheAdmin(s grpc.ServiceRegistrar, srv CacheAdminServer) {
	s.RegisterService(&CacheAdminServiceDesc, srv)
}

// NewCacheAdminServer returns a gRPC server carrying CacheAdmin and server reflection.
func NewCacheAdminServer(server CacheAdminServer, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	RegisterCacheAdmin(s, server)
	reflection.Register(s)
	return s
}

func StartgRPCServer(ctx context.Context, addr string, server CacheAdminServer, log *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	defer lis.Close()

	s := NewCacheAdminServer(server)

	errCh := make(chan error, 1)
	go func() {
		log.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := s.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("context canceled, shutting down gRPC gracefully")
		s.GracefulStop()
	case err := <-errCh:
		log.Error("gRPC server error", zap.Error(err))
		return err
	}
	return nil
}

func (s *gRPCServer) Invalidate(ctx context.Context, req *structpb.ListValue) (*emptypb.Empty, error) {
	keys, err := toQueryKeys(req)
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: %v", entity.ErrValidation, err))
	}
	if len(keys) == 0 {
		return nil, toStatus(fmt.Errorf("%w: no keys given", entity.ErrValidation))
	}
	if err := s.portal.Client.InvalidateQueries(ctx, keys...); err != nil {
		s.log.Warn("invalidate", zap.Error(err))
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *gRPCServer) ListQueries(_ context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	out, err := toQueryList(s.portal.Client.Snapshot())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode queries: %v", err)
	}
	return out, nil
}

func (s *gRPCServer) Fetch(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	rr, err := toReadRequest(req)
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: %v", entity.ErrValidation, err))
	}
	res, err := s.portal.Read(ctx, rr)
	if err != nil {
		return nil, toStatus(err)
	}
	if res.Err != nil && !res.HasData {
		return nil, toStatus(res.Err)
	}
	out, err := toReadResultValue(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

// toStatus maps domain errors to gRPC codes and attaches the reason.
func toStatus(err error) error {
	code, reason := codes.Internal, "INTERNAL"
	switch {
	case errors.Is(err, entity.ErrNotFound):
		code, reason = codes.NotFound, "NOT_FOUND"
	case errors.Is(err, entity.ErrUnauthenticated):
		code, reason = codes.Unauthenticated, "UNAUTHENTICATED"
	case errors.Is(err, entity.ErrValidation), errors.Is(err, usecase.ErrUnknownQuery):
		code, reason = codes.InvalidArgument, "INVALID_ARGUMENT"
	case errors.Is(err, entity.ErrConflict):
		code, reason = codes.AlreadyExists, "CONFLICT"
	case errors.Is(err, context.DeadlineExceeded):
		code, reason = codes.DeadlineExceeded, "DEADLINE_EXCEEDED"
	case errors.Is(err, context.Canceled):
		code, reason = codes.Canceled, "CANCELED"
	case errors.As(err, new(*entity.APIError)):
		code, reason = codes.Unavailable, "UPSTREAM_ERROR"
	}

	st := status.New(code, err.Error())
	info := &errdetails.ErrorInfo{Reason: reason, Domain: errorDomain}
	var apiErr *entity.APIError
	if errors.As(err, &apiErr) {
		info.Metadata = map[string]string{"status_code": strconv.Itoa(apiErr.StatusCode)}
	}
	withDetails, derr := st.WithDetails(info)
	if derr != nil {
		return st.Err()
	}
	return withDetails.Err()
}
