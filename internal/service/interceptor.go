package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/cartridge/prioritized-replay/internal/metrics"
)

// LoggingInterceptor logs every unary call with its status code and
// reports it to the collector
func LoggingInterceptor(logger zerolog.Logger, collector *metrics.Collector) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		// Call the handler
		resp, err := handler(ctx, req)

		duration := time.Since(start)
		code := status.Code(err)

		event := logger.Debug()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", duration).
			Msg("gRPC request")
		collector.RPC(info.FullMethod, code.String(), duration)

		return resp, err
	}
}
