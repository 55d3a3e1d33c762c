package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	serrors "github.com/salesink/salesink/internal/errors"
)

// BatchWriter buffers put requests for one table and sends them with
// BatchWriteItem, FlushSize at a time.
//
// Items DynamoDB returns as unprocessed are put back at the front of the
// buffer and go out with the next flush. A chunk whose BatchWriteItem call
// fails is dropped and the error returned; earlier chunks stay written, so a
// batch is not a transaction.
//
// A BatchWriter is not safe for concurrent use.
type BatchWriter struct {
	api   BatchWriteAPI
	table string
	cfg   WriterConfig

	buffer  []types.WriteRequest
	closed  bool
	stalled int

	puts    int
	calls   int
	written int
}

// NewBatchWriter creates a new batch writer for table.
func NewBatchWriter(api BatchWriteAPI, table string, cfg WriterConfig) *BatchWriter {
	cfg = cfg.normalized()
	return &BatchWriter{
		api:    api,
		table:  table,
		cfg:    cfg,
		buffer: make([]types.WriteRequest, 0, cfg.FlushSize),
	}
}

// Put queues one item, flushing when the buffer reaches FlushSize.
func (w *BatchWriter) Put(ctx context.Context, item map[string]types.AttributeValue) error {
	if w.closed {
		return serrors.Wrap(serrors.ErrCategoryInternal, serrors.CodeWriterClosed, "put on closed batch writer", nil)
	}

	w.buffer = append(w.buffer, types.WriteRequest{
		PutRequest: &types.PutRequest{Item: item},
	})
	w.puts++

	if len(w.buffer) >= w.cfg.FlushSize {
		unprocessed, err := w.flushOnce(ctx)
		if err != nil {
			return err
		}
		return w.settle(unprocessed)
	}
	return nil
}

// Flush sends everything buffered. Like the flushes triggered by Put, it
// gives up after MaxFlushRounds consecutive calls that leave items
// unprocessed; those items are dropped and reported.
func (w *BatchWriter) Flush(ctx context.Context) error {
	for len(w.buffer) > 0 {
		unprocessed, err := w.flushOnce(ctx)
		if err != nil {
			return err
		}
		if err := w.settle(unprocessed); err != nil {
			return err
		}
	}
	return nil
}

// settle counts consecutive rounds that left items unprocessed. Once the
// count reaches MaxFlushRounds the buffer is dropped and UNPROCESSED_ITEMS
// returned.
func (w *BatchWriter) settle(unprocessed int) error {
	if unprocessed == 0 {
		w.stalled = 0
		return nil
	}

	w.stalled++
	if w.stalled < w.cfg.MaxFlushRounds {
		return nil
	}

	left, rounds := len(w.buffer), w.stalled
	w.buffer = w.buffer[:0]
	w.stalled = 0
	return serrors.NewPersistError(serrors.CodeUnprocessedItems,
		fmt.Sprintf("%d items still unprocessed after %d flush rounds", left, rounds), nil).
		WithDetails(map[string]interface{}{"table": w.table, "items": left})
}

// Close flushes the remaining buffer and releases the writer. It is safe to
// call more than once; only the first call flushes.
func (w *BatchWriter) Close(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.Flush(ctx)
}

// Puts returns the number of items queued with Put.
func (w *BatchWriter) Puts() int { return w.puts }

// Calls returns the number of BatchWriteItem calls issued.
func (w *BatchWriter) Calls() int { return w.calls }

// Written returns the number of items DynamoDB accepted.
func (w *BatchWriter) Written() int { return w.written }

// Pending returns the number of buffered items not yet accepted.
func (w *BatchWriter) Pending() int { return len(w.buffer) }

// flushOnce sends the first FlushSize buffered items and returns how many
// DynamoDB left unprocessed.
func (w *BatchWriter) flushOnce(ctx context.Context) (int, error) {
	n := len(w.buffer)
	if n == 0 {
		return 0, nil
	}
	if n > w.cfg.FlushSize {
		n = w.cfg.FlushSize
	}

	chunk := make([]types.WriteRequest, n)
	copy(chunk, w.buffer[:n])
	rest := w.buffer[n:]

	w.calls++
	out, err := w.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			w.table: chunk,
		},
	})
	if err != nil {
		w.buffer = append(w.buffer[:0], rest...)
		return 0, serrors.NewPersistError(serrors.CodeWriteRejected,
			fmt.Sprintf("batch write of %d items to %s failed", n, w.table), err).
			WithDetails(map[string]interface{}{"table": w.table, "items": n})
	}

	var unprocessed []types.WriteRequest
	if out != nil {
		unprocessed = out.UnprocessedItems[w.table]
	}
	w.written += n - len(unprocessed)

	next := make([]types.WriteRequest, 0, len(unprocessed)+len(rest))
	next = append(next, unprocessed...)
	next = append(next, rest...)
	w.buffer = next
	return len(unprocessed), nil
}
