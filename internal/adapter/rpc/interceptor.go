package rpc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/pos-backoffice/internal/logger"
)

const requestIDKey = "x-request-id"

// UnaryLogging attaches a request scoped logger to the context and logs the
// outcome of every call.
func UnaryLogging(base *zap.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(requestIDKey); len(ids) > 0 {
				requestID = ids[0]
			}
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx, log := logger.WithRequestID(ctx, base, requestID)
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			st, _ := status.FromError(err)
			log.Warn("gRPC call failed", append(fields, zap.String("code", st.Code().String()), zap.String("error", st.Message()))...)
		} else {
			log.Debug("gRPC call", fields...)
		}
		return resp, err
	}
}
