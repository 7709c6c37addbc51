package handler

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	StockServiceName         = "inventory.v1.StockService"
	remainingStockMethod     = "RemainingStock"
	RemainingStockFullMethod = "/" + StockServiceName + "/" + remainingStockMethod
)

// StockServer answers stock queries over gRPC. Requests and responses use
// the protobuf wrapper types, so clients need no generated stubs.
type StockServer interface {
	RemainingStock(ctx context.Context, itemID *wrapperspb.Int64Value) (*wrapperspb.Int64Value, error)
}

var stockServiceDesc = grpc.ServiceDesc{
	ServiceName: StockServiceName,
	HandlerType: (*StockServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: remainingStockMethod, Handler: remainingStockHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inventory/v1/stock.proto",
}

func remainingStockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockServer).RemainingStock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RemainingStockFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StockServer).RemainingStock(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

type GRPCHandler struct {
	stock  *service.StockService
	logger *zap.Logger
}

func NewGRPCHandler(stock *service.StockService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{stock: stock, logger: logger}
}

// Register adds the stock service and the standard health service to s.
func (h *GRPCHandler) Register(s *grpc.Server) *health.Server {
	s.RegisterService(&stockServiceDesc, h)

	hs := health.NewServer()
	hs.SetServingStatus(StockServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

func (h *GRPCHandler) RemainingStock(ctx context.Context, req *wrapperspb.Int64Value) (*wrapperspb.Int64Value, error) {
	if req.GetValue() <= 0 {
		return nil, status.Error(codes.InvalidArgument, "item id must be positive")
	}
	stock, err := h.stock.RemainingStock(ctx, req.GetValue())
	if err != nil {
		return nil, h.toStatus(err)
	}
	return wrapperspb.Int64(int64(stock)), nil
}

func (h *GRPCHandler) toStatus(err error) error {
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case domain.KindInsufficientStock, domain.KindItemInUse:
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.KindDuplicateResource, domain.KindDuplicateRequest:
		return status.Error(codes.AlreadyExists, err.Error())
	case domain.KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	}
	h.logger.Error("rpc failed", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

// RemainingStock calls the stock service on an established client connection.
func RemainingStock(ctx context.Context, cc grpc.ClientConnInterface, itemID int64) (int, error) {
	out := new(wrapperspb.Int64Value)
	if err := cc.Invoke(ctx, RemainingStockFullMethod, wrapperspb.Int64(itemID), out); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}
