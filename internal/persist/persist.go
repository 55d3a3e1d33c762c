// Package persist writes decoded sales records to DynamoDB.
package persist

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/salesink/salesink/internal/decoder"
	serrors "github.com/salesink/salesink/internal/errors"
	"github.com/salesink/salesink/internal/storage"
)

// Persister puts every record of a batch into the sales table through one
// batched write scope.
type Persister struct {
	client *storage.Client
	cfg    storage.WriterConfig
	logger *zap.Logger
}

// New creates a Persister. The client is the process-wide store handle.
func New(client *storage.Client, cfg storage.WriterConfig, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{client: client, cfg: cfg, logger: logger}
}

// Persist submits one put per record, in order. The write scope is closed on
// every path, so items queued before a failure are still flushed; the flush
// error, if any, is joined to the original one. There is no retry here.
func (p *Persister) Persist(ctx context.Context, records []decoder.Record) (err error) {
	p.logger.Info("Saving data in DynamoDB table", zap.String("table", p.client.Table()))

	w := p.client.BatchWriter(p.cfg)
	defer func() {
		if cerr := w.Close(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
		p.logger.Debug("Batch write scope closed",
			zap.String("table", p.client.Table()),
			zap.Int("puts", w.Puts()),
			zap.Int("written", w.Written()),
			zap.Int("calls", w.Calls()),
		)
	}()

	for i, rec := range records {
		item, err := storage.ItemFromRecord(rec)
		if err != nil {
			var se *serrors.SalesError
			if errors.As(err, &se) {
				return se.WithDetails(map[string]interface{}{"index": i})
			}
			return err
		}
		if err := w.Put(ctx, item); err != nil {
			return err
		}
	}
	return nil
}
