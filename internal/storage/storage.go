// Package storage provides the DynamoDB side of salesink: client
// construction, conversion of decoded JSON values into items, and the
// buffered batch writer used to persist them.
package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

const (
	// MaxBatchWriteItems is the DynamoDB BatchWriteItem hard limit.
	MaxBatchWriteItems = 25

	// DefaultMaxFlushRounds bounds how many BatchWriteItem calls Close may
	// issue while draining unprocessed items.
	DefaultMaxFlushRounds = 8
)

// BatchWriteAPI is the subset of the DynamoDB client used by BatchWriter.
// *dynamodb.Client satisfies it; tests substitute a fake.
type BatchWriteAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// WriterConfig holds configuration for a BatchWriter.
type WriterConfig struct {
	// FlushSize is the number of buffered puts that triggers a flush
	// (1..MaxBatchWriteItems, default MaxBatchWriteItems).
	FlushSize int
	// MaxFlushRounds bounds the flushes Close performs while draining
	// (default DefaultMaxFlushRounds).
	MaxFlushRounds int
}

// DefaultWriterConfig returns the default writer configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		FlushSize:      MaxBatchWriteItems,
		MaxFlushRounds: DefaultMaxFlushRounds,
	}
}

func (c WriterConfig) normalized() WriterConfig {
	if c.FlushSize <= 0 || c.FlushSize > MaxBatchWriteItems {
		c.FlushSize = MaxBatchWriteItems
	}
	if c.MaxFlushRounds <= 0 {
		c.MaxFlushRounds = DefaultMaxFlushRounds
	}
	return c
}
