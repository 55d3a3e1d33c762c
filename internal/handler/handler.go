// Package handler is the Lambda entry point: it decodes an MSK batch, persists
// the sales it carries, and hides failure detail from the caller.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/salesink/salesink/internal/decoder"
	serrors "github.com/salesink/salesink/internal/errors"
	"github.com/salesink/salesink/internal/event"
	"github.com/salesink/salesink/internal/logging"
)

// ErrExecution is the only error Handle ever returns. The cause is logged.
var ErrExecution = errors.New("Error occurred during execution")

// BatchDecoder turns a batch event into records.
type BatchDecoder interface {
	Decode(batch *event.BatchEvent) ([]decoder.Record, error)
}

// RecordPersister writes decoded records to the store.
type RecordPersister interface {
	Persist(ctx context.Context, records []decoder.Record) error
}

// Handler processes one Lambda invocation at a time. It holds no per-batch
// state, so a single value serves every invocation of a warm container.
type Handler struct {
	decoder   BatchDecoder
	persister RecordPersister
	logger    *zap.Logger
}

// New creates a Handler.
func New(dec BatchDecoder, p RecordPersister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{decoder: dec, persister: p, logger: logger}
}

// Handle is registered with lambda.Start. On success every record of the
// batch has been written; otherwise ErrExecution is returned, which makes the
// platform redeliver the whole batch.
func (h *Handler) Handle(ctx context.Context, payload json.RawMessage) (err error) {
	logger := logging.WithInvocation(ctx, h.logger)

	defer func() {
		if r := recover(); r != nil {
			cause := serrors.NewInternalError(fmt.Sprintf("panic: %v", r), nil)
			err = h.fail(logger, cause, zap.ByteString("panic_stack", debug.Stack()))
		}
	}()

	n, perr := h.process(ctx, logger, payload)
	if perr != nil {
		return h.fail(logger, perr)
	}

	logger.Info("Sales event processed", zap.Int("records", n))
	return nil
}

func (h *Handler) process(ctx context.Context, logger *zap.Logger, payload json.RawMessage) (int, error) {
	batch, err := event.Parse(payload)
	if err != nil {
		var se *serrors.SalesError
		if errors.As(err, &se) {
			return 0, err
		}
		return 0, serrors.NewDecodeError(serrors.CodeInvalidEvent, "invocation payload is not an MSK event", err)
	}

	logger.Info("Received event",
		zap.String("event_source", batch.EventSource),
		zap.String("event_source_arn", batch.EventSourceARN),
		zap.Int("partitions", len(batch.Partitions)),
		zap.Int("records", batch.RecordCount()),
	)

	records, err := h.decoder.Decode(batch)
	if err != nil {
		return 0, err
	}

	if err := h.persister.Persist(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// fail logs err with everything known about it and returns ErrExecution.
func (h *Handler) fail(logger *zap.Logger, err error, extra ...zap.Field) error {
	category := serrors.GetCategory(err)
	if category == "" {
		category = serrors.ErrCategoryInternal
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.String("category", string(category)),
		zap.String("code", serrors.GetCode(err)),
	}
	if details := serrors.GetDetails(err); len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	fields = append(fields, extra...)

	logger.Error(ErrExecution.Error(), fields...)
	return ErrExecution
}
