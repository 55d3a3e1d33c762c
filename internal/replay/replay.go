// Package replay feeds saved or live sales batches through the handler
// outside Lambda.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/salesink/salesink/internal/config"
	"github.com/salesink/salesink/internal/decoder"
	"github.com/salesink/salesink/internal/event"
)

// MessageReader is the subset of *kafka.Reader used by the replay tool.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Invoker runs one invocation, like handler.Handler.
type Invoker interface {
	Handle(ctx context.Context, payload json.RawMessage) error
}

// NewReader creates a consumer-group reader for the sales topic.
func NewReader(cfg config.ReplayConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// LoadEventFile reads an MSK event document and checks that it parses.
func LoadEventFile(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event file: %w", err)
	}
	if _, err := event.Parse(data); err != nil {
		return nil, fmt.Errorf("failed to parse event file %s: %w", path, err)
	}
	return json.RawMessage(data), nil
}

// Fetch reads up to max messages. It returns what it has once timeout
// elapses; an empty result is not an error.
func Fetch(ctx context.Context, r MessageReader, max int, timeout time.Duration) ([]kafka.Message, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msgs := make([]kafka.Message, 0, max)
	for len(msgs) < max {
		m, err := r.FetchMessage(fetchCtx)
		if err != nil {
			if ctx.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("failed to fetch message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// BuildEvent groups messages the way the MSK event source mapping does.
func BuildEvent(msgs []kafka.Message, brokers []string) *event.BatchEvent {
	b := event.NewBuilder(strings.Join(brokers, ","))
	for _, m := range msgs {
		b.AddMessage(m.Topic, int64(m.Partition), m.Offset, m.Key, m.Value, m.Time)
	}
	return b.Build()
}

// Runner drives one replay.
type Runner struct {
	invoker Invoker
	logger  *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(invoker Invoker, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{invoker: invoker, logger: logger}
}

// RunPayload invokes the handler once with payload.
func (r *Runner) RunPayload(ctx context.Context, payload json.RawMessage) error {
	return r.invoker.Handle(ctx, payload)
}

// RunKafka fetches one batch, invokes the handler with it and commits the
// offsets only if the handler succeeded. It returns the number of messages
// replayed.
func (r *Runner) RunKafka(ctx context.Context, reader MessageReader, cfg config.ReplayConfig) (int, error) {
	msgs, err := Fetch(ctx, reader, cfg.MaxMessages, cfg.Timeout)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		r.logger.Info("No messages to replay", zap.String("topic", cfg.Topic))
		return 0, nil
	}

	payload, err := json.Marshal(BuildEvent(msgs, cfg.Brokers))
	if err != nil {
		return 0, fmt.Errorf("failed to encode event: %w", err)
	}

	if err := r.invoker.Handle(ctx, payload); err != nil {
		return 0, err
	}

	if err := reader.CommitMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("failed to commit offsets: %w", err)
	}
	r.logger.Info("Replayed batch",
		zap.String("topic", cfg.Topic),
		zap.Int("messages", len(msgs)),
	)
	return len(msgs), nil
}

// DryRun decodes payload without touching the store and writes each record
// to w as one JSON line.
func DryRun(w io.Writer, payload json.RawMessage, dec *decoder.Decoder) (int, error) {
	batch, err := event.Parse(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to parse event: %w", err)
	}
	return DryRunEvent(w, batch, dec)
}

// DryRunEvent is DryRun for an already parsed batch.
func DryRunEvent(w io.Writer, batch *event.BatchEvent, dec *decoder.Decoder) (int, error) {
	records, err := dec.Decode(batch)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("failed to write record: %w", err)
		}
	}
	return len(records), nil
}
