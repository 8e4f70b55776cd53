package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// RequestLogger logs one line per HTTP request.
func RequestLogger(logger *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		statusCode := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				statusCode = e.Code
			} else {
				statusCode = fiber.StatusInternalServerError
			}
		}

		fields := []interface{}{
			"method", c.Method(),
			"path", c.Path(),
			"status", statusCode,
			"duration", duration,
			"ip", c.IP(),
		}
		if rid, ok := c.Locals("requestid").(string); ok {
			fields = append(fields, "request_id", rid)
		}
		if p := GetPrincipal(c); p != nil {
			fields = append(fields, "profile_id", p.ProfileID)
		}
		if err != nil {
			fields = append(fields, "error", err)
		}

		switch {
		case statusCode >= 500:
			logger.Errorw("HTTP request", fields...)
		case statusCode == fiber.StatusUnauthorized || statusCode == fiber.StatusForbidden:
			logger.Warnw("HTTP request", fields...)
		default:
			logger.Infow("HTTP request", fields...)
		}
		return err
	}
}

func UnaryLoggingInterceptor(logger *zap.SugaredLogger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)

		st, _ := status.FromError(err)
		code := st.Code()

		logger.Infow("gRPC call",
			"method", info.FullMethod,
			"duration", duration,
			"code", code.String(),
			"error", err,
		)
		return resp, err
	}
}
