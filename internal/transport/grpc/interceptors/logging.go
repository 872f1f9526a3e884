package interceptors

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/nnh2x/hemidi-authen/internal/infra/logger"
)

// UnaryLogging logs every unary call and turns handler panics into codes.Internal.
func UnaryLogging(log *zap.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				log.Error("grpc handler panic",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = status.Error(codes.Internal, "internal error")
			}

			fields := []zap.Field{
				zap.String("method", info.FullMethod),
				zap.String("code", status.Code(err).String()),
				zap.Duration("duration", time.Since(start)),
			}
			if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
				fields = append(fields, zap.String("peer", logger.MaskIP(p.Addr.String())))
			}

			switch status.Code(err) {
			case codes.OK:
				log.Debug("grpc request", fields...)
			case codes.Internal, codes.Unknown, codes.DataLoss:
				log.Error("grpc request failed", append(fields, zap.Error(err))...)
			default:
				log.Info("grpc request", fields...)
			}
		}()

		return handler(ctx, req)
	}
}
