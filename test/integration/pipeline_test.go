// Package integration provides end-to-end tests for the salesink pipeline:
// Kafka messages through the replay runner, handler, decoder and persister
// into an in-memory DynamoDB stand-in.
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/segmentio/kafka-go"

	"github.com/salesink/salesink/internal/config"
	"github.com/salesink/salesink/internal/decoder"
	"github.com/salesink/salesink/internal/handler"
	"github.com/salesink/salesink/internal/persist"
	"github.com/salesink/salesink/internal/replay"
	"github.com/salesink/salesink/internal/storage"
)

// memoryTable accepts writes into a slice. The first call hands back
// throttleFirst items as unprocessed, like a throttled table.
type memoryTable struct {
	mu            sync.Mutex
	calls         int
	throttleFirst int
	fail          error
	items         []map[string]types.AttributeValue
}

func (m *memoryTable) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.fail != nil {
		return nil, m.fail
	}

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, reqs := range in.RequestItems {
		keep := len(reqs)
		if m.calls == 1 && m.throttleFirst > 0 && m.throttleFirst <= keep {
			keep -= m.throttleFirst
			out.UnprocessedItems[table] = reqs[keep:]
		}
		for _, r := range reqs[:keep] {
			m.items = append(m.items, r.PutRequest.Item)
		}
	}
	return out, nil
}

func (m *memoryTable) saleIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.items))
	for _, item := range m.items {
		n, ok := item["sale_id"].(*types.AttributeValueMemberN)
		if !ok {
			ids = append(ids, "?")
			continue
		}
		ids = append(ids, n.Value)
	}
	return ids
}

type queueReader struct {
	queue     []kafka.Message
	committed []kafka.Message
}

func (q *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(q.queue) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := q.queue[0]
	q.queue = q.queue[1:]
	return m, nil
}

func (q *queueReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	q.committed = append(q.committed, msgs...)
	return nil
}

// setupPipeline wires the production components around table.
func setupPipeline(t *testing.T, table *memoryTable) (*replay.Runner, config.ReplayConfig) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Replay.Timeout = 50 * time.Millisecond
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid default config: %v", err)
	}

	client := storage.NewClientWithAPI(table, cfg.Store.Table)
	p := persist.New(client, storage.WriterConfig{
		FlushSize:      cfg.Store.FlushSize,
		MaxFlushRounds: cfg.Store.MaxFlushRounds,
	}, nil)
	h := handler.New(decoder.New(nil), p, nil)

	return replay.NewRunner(h, nil), cfg.Replay
}

func saleMessages(n int) []kafka.Message {
	msgs := make([]kafka.Message, n)
	for i := range msgs {
		sale := map[string]any{"sale_id": i + 1, "store": "lyon-3", "amount": json.Number("19.90")}
		value, _ := json.Marshal(sale)
		msgs[i] = kafka.Message{
			Topic:     "sales",
			Partition: i % 3,
			Offset:    int64(i / 3),
			Value:     value,
			Time:      time.Now(),
		}
	}
	return msgs
}

func TestPipeline_ReplaysAndCommits(t *testing.T) {
	table := &memoryTable{throttleFirst: 4}
	runner, cfg := setupPipeline(t, table)
	cfg.MaxMessages = 60

	reader := &queueReader{queue: saleMessages(60)}
	n, err := runner.RunKafka(context.Background(), reader, cfg)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if n != 60 || len(reader.committed) != 60 {
		t.Fatalf("expected 60 messages replayed and committed, got %d and %d", n, len(reader.committed))
	}

	ids := table.saleIDs()
	if len(ids) != 60 {
		t.Fatalf("expected 60 items written, got %d", len(ids))
	}

	// Partition order is first-seen: partitions 0, 1, 2, each in offset order.
	// Throttled items are retried behind the rest of the first chunk.
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("sale %s written twice", id)
		}
		seen[id] = true
	}
	if ids[0] != "1" || ids[1] != "4" {
		t.Errorf("expected partition 0 first (sales 1, 4, ...), got %v", ids[:2])
	}
}

func TestPipeline_StoreFailureLeavesOffsetsUncommitted(t *testing.T) {
	table := &memoryTable{fail: errors.New("ProvisionedThroughputExceededException")}
	runner, cfg := setupPipeline(t, table)

	reader := &queueReader{queue: saleMessages(5)}
	_, err := runner.RunKafka(context.Background(), reader, cfg)
	if !errors.Is(err, handler.ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
	if len(reader.committed) != 0 {
		t.Errorf("expected no commits, got %d", len(reader.committed))
	}
}

func TestPipeline_MalformedMessageWritesNothing(t *testing.T) {
	table := &memoryTable{}
	runner, cfg := setupPipeline(t, table)

	msgs := saleMessages(4)
	msgs[3].Value = []byte(`{"sale_id": 4,`)
	reader := &queueReader{queue: msgs}

	_, err := runner.RunKafka(context.Background(), reader, cfg)
	if !errors.Is(err, handler.ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
	if table.calls != 0 {
		t.Errorf("expected no store calls, got %d", table.calls)
	}
	if len(reader.committed) != 0 {
		t.Errorf("expected no commits, got %d", len(reader.committed))
	}
}

func TestPipeline_EventFile(t *testing.T) {
	table := &memoryTable{}
	runner, _ := setupPipeline(t, table)

	batch := replay.BuildEvent(saleMessages(3), []string{"b-1.sales:9092"})
	payload, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("failed to encode event: %v", err)
	}

	if err := runner.RunPayload(context.Background(), payload); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := fmt.Sprint(table.saleIDs()); got != "[1 2 3]" {
		t.Errorf("expected sales [1 2 3], got %s", got)
	}
}
