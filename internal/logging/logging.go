// Package logging builds the zap loggers used by salesink.
package logging

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/salesink/salesink/internal/config"
)

// New builds a logger from cfg. Production loggers emit JSON with ISO8601
// timestamps; both flavours attach stack traces at error level.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		// No sampling: every per-record line is kept.
		zc.Sampling = nil
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

// WithInvocation returns a child logger carrying the invocation identity.
// Inside Lambda that is the request id and function ARN; elsewhere a random
// id stands in for the request id.
func WithInvocation(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return logger.With(
			zap.String("request_id", lc.AwsRequestID),
			zap.String("function_arn", lc.InvokedFunctionArn),
		)
	}
	return logger.With(zap.String("request_id", uuid.NewString()))
}
