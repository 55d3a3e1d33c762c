package event

import (
	"encoding/base64"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// Builder assembles a BatchEvent from individual messages, the way the MSK
// event source mapping does: values and keys are base64 encoded and records
// are grouped per topic partition in first-seen order.
type Builder struct {
	source  string
	servers string

	index      map[string]int
	partitions []Partition
}

// NewBuilder creates a Builder for the given bootstrap servers.
func NewBuilder(bootstrapServers string) *Builder {
	return &Builder{
		source:  "aws:kafka",
		servers: bootstrapServers,
		index:   make(map[string]int),
	}
}

// Add appends an already-encoded record.
func (b *Builder) Add(r events.KafkaRecord) {
	key := PartitionKey(r.Topic, r.Partition)
	i, ok := b.index[key]
	if !ok {
		i = len(b.partitions)
		b.index[key] = i
		b.partitions = append(b.partitions, Partition{Key: key})
	}
	b.partitions[i].Records = append(b.partitions[i].Records, r)
}

// AddMessage encodes a raw message and appends it.
func (b *Builder) AddMessage(topic string, partition, offset int64, key, value []byte, ts time.Time) {
	r := events.KafkaRecord{
		Topic:         topic,
		Partition:     partition,
		Offset:        offset,
		TimestampType: "CREATE_TIME",
		Value:         base64.StdEncoding.EncodeToString(value),
	}
	r.Timestamp = events.MilliSecondsEpochTime{Time: ts}
	if len(key) > 0 {
		r.Key = base64.StdEncoding.EncodeToString(key)
	}
	b.Add(r)
}

// Build returns the assembled event. The builder may keep being used; later
// additions do not affect the returned event.
func (b *Builder) Build() *BatchEvent {
	partitions := make([]Partition, len(b.partitions))
	for i, p := range b.partitions {
		records := make([]events.KafkaRecord, len(p.Records))
		copy(records, p.Records)
		partitions[i] = Partition{Key: p.Key, Records: records}
	}
	return &BatchEvent{
		EventSource:      b.source,
		BootstrapServers: b.servers,
		Partitions:       partitions,
	}
}
