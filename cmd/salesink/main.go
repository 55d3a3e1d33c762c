// Package main implements the salesink Lambda function.
// It consumes MSK sales batches and writes each sale to DynamoDB.
package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/salesink/salesink/internal/config"
	"github.com/salesink/salesink/internal/decoder"
	"github.com/salesink/salesink/internal/handler"
	"github.com/salesink/salesink/internal/logging"
	"github.com/salesink/salesink/internal/persist"
	"github.com/salesink/salesink/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("SALESINK_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	h, err := newHandler(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize handler", zap.Error(err))
	}

	logger.Info("salesink ready",
		zap.String("table", cfg.Store.Table),
		zap.String("region", cfg.Store.Region),
		zap.Int("flush_size", cfg.Store.FlushSize),
	)
	lambda.Start(h.Handle)
}

// newHandler wires the pipeline. The DynamoDB client is built once per cold
// start and shared by every invocation.
func newHandler(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*handler.Handler, error) {
	client, err := storage.NewClient(ctx, cfg.Store.Table, storage.DynamoDBConfig{
		Region:   cfg.Store.Region,
		Endpoint: cfg.Store.Endpoint,
	})
	if err != nil {
		return nil, err
	}

	writerCfg := storage.WriterConfig{
		FlushSize:      cfg.Store.FlushSize,
		MaxFlushRounds: cfg.Store.MaxFlushRounds,
	}
	return handler.New(
		decoder.New(logger),
		persist.New(client, writerCfg, logger),
		logger,
	), nil
}
