package persist

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/salesink/salesink/internal/decoder"
	serrors "github.com/salesink/salesink/internal/errors"
	"github.com/salesink/salesink/internal/storage"
)

type recordingAPI struct {
	inputs []*dynamodb.BatchWriteItemInput
	err    error
}

func (r *recordingAPI) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	r.inputs = append(r.inputs, in)
	if r.err != nil {
		return nil, r.err
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

// puts flattens every put request sent to table, in order.
func (r *recordingAPI) puts(table string) []map[string]types.AttributeValue {
	var items []map[string]types.AttributeValue
	for _, in := range r.inputs {
		for _, req := range in.RequestItems[table] {
			items = append(items, req.PutRequest.Item)
		}
	}
	return items
}

func newPersister(api storage.BatchWriteAPI, logger *zap.Logger) *Persister {
	return New(storage.NewClientWithAPI(api, "Sales"), storage.DefaultWriterConfig(), logger)
}

func TestPersist_SaleExample(t *testing.T) {
	api := &recordingAPI{}
	p := newPersister(api, nil)

	records := []decoder.Record{map[string]any{"id": json.Number("1"), "amt": json.Number("9.99")}}
	require.NoError(t, p.Persist(context.Background(), records))

	require.Len(t, api.inputs, 1)
	assert.Equal(t, []map[string]types.AttributeValue{{
		"id":  &types.AttributeValueMemberN{Value: "1"},
		"amt": &types.AttributeValueMemberN{Value: "9.99"},
	}}, api.puts("Sales"))
}

func TestPersist_EmptyBatch(t *testing.T) {
	api := &recordingAPI{}
	p := newPersister(api, nil)

	require.NoError(t, p.Persist(context.Background(), nil))
	require.NoError(t, p.Persist(context.Background(), []decoder.Record{}))
	assert.Empty(t, api.inputs)
}

func TestPersist_LogsTable(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := newPersister(&recordingAPI{}, zap.New(core))

	require.NoError(t, p.Persist(context.Background(), nil))

	entries := logs.FilterMessage("Saving data in DynamoDB table").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Sales", entries[0].ContextMap()["table"])
}

func TestPersist_InvalidItemStillFlushesQueuedPuts(t *testing.T) {
	api := &recordingAPI{}
	p := newPersister(api, nil)

	records := []decoder.Record{
		map[string]any{"id": json.Number("1")},
		map[string]any{"id": json.Number("2")},
		"not an object",
		map[string]any{"id": json.Number("4")},
	}
	err := p.Persist(context.Background(), records)
	require.Error(t, err)
	assert.True(t, errors.Is(err, serrors.ErrPersist))
	assert.Equal(t, serrors.CodeInvalidItem, serrors.GetCode(err))
	assert.Equal(t, 2, serrors.GetDetails(err)["index"])

	// The two puts queued before the failure were flushed on close.
	puts := api.puts("Sales")
	require.Len(t, puts, 2)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "2"}, puts[1]["id"])
}

func TestPersist_StoreRejection(t *testing.T) {
	rejected := errors.New("ValidationException: missing key sale_id")
	api := &recordingAPI{err: rejected}
	p := newPersister(api, nil)

	err := p.Persist(context.Background(), []decoder.Record{map[string]any{"id": json.Number("1")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rejected))
	assert.Equal(t, serrors.CodeWriteRejected, serrors.GetCode(err))
}

// TestProperty_PersistDelegatesAllRecords: N records produce exactly N puts
// against the configured table, each carrying the matching record.
func TestProperty_PersistDelegatesAllRecords(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("one put per record, in order", prop.ForAll(
		func(ids []string) bool {
			api := &recordingAPI{}
			p := newPersister(api, nil)

			records := make([]decoder.Record, len(ids))
			for i, id := range ids {
				records[i] = map[string]any{"id": id}
			}
			if err := p.Persist(context.Background(), records); err != nil {
				return false
			}

			for _, in := range api.inputs {
				if len(in.RequestItems) != 1 || in.RequestItems["Sales"] == nil {
					return false
				}
			}
			puts := api.puts("Sales")
			if len(puts) != len(ids) {
				return false
			}
			for i, item := range puts {
				s, ok := item["id"].(*types.AttributeValueMemberS)
				if !ok || s.Value != ids[i] || len(item) != 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
