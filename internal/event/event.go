// Package event models the batch event delivered by the MSK event source
// mapping: records grouped by "<topic>-<partition>" keys.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
)

// Partition is one entry of the records mapping.
type Partition struct {
	Key     string
	Records []events.KafkaRecord
}

// BatchEvent is the payload of one invocation.
//
// Partitions keep the order in which their keys appear in the delivered JSON
// document. Go maps have no iteration order, so the records mapping is decoded
// by hand instead of into events.KafkaEvent.
type BatchEvent struct {
	EventSource      string      `json:"eventSource"`
	EventSourceARN   string      `json:"eventSourceArn"`
	BootstrapServers string      `json:"bootstrapServers"`
	Partitions       []Partition `json:"-"`
}

// Parse decodes a raw invocation payload.
func Parse(data []byte) (*BatchEvent, error) {
	var ev BatchEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// RecordCount returns the number of records across all partitions.
func (e *BatchEvent) RecordCount() int {
	n := 0
	for _, p := range e.Partitions {
		n += len(p.Records)
	}
	return n
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *BatchEvent) UnmarshalJSON(data []byte) error {
	var envelope struct {
		EventSource      string          `json:"eventSource"`
		EventSourceARN   string          `json:"eventSourceArn"`
		BootstrapServers string          `json:"bootstrapServers"`
		Records          json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	partitions, err := decodePartitions(envelope.Records)
	if err != nil {
		return err
	}

	*e = BatchEvent{
		EventSource:      envelope.EventSource,
		EventSourceARN:   envelope.EventSourceARN,
		BootstrapServers: envelope.BootstrapServers,
		Partitions:       partitions,
	}
	return nil
}

// MarshalJSON implements json.Marshaler, writing partitions in order.
func (e BatchEvent) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	fields := []struct {
		name  string
		value string
	}{
		{"eventSource", e.EventSource},
		{"eventSourceArn", e.EventSourceARN},
		{"bootstrapServers", e.BootstrapServers},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		writeKey(&buf, f.name)
		v, _ := json.Marshal(f.value)
		buf.Write(v)
		buf.WriteByte(',')
	}

	writeKey(&buf, "records")
	buf.WriteByte('{')
	for i, p := range e.Partitions {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, p.Key)
		records := p.Records
		if records == nil {
			records = []events.KafkaRecord{}
		}
		v, err := json.Marshal(records)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal partition %s: %w", p.Key, err)
		}
		buf.Write(v)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) {
	k, _ := json.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')
}

// decodePartitions walks the records object token by token so that keys keep
// their document order. The mapping is required and every partition value
// must be an array; an empty object is a valid, empty batch.
func decodePartitions(raw json.RawMessage) ([]Partition, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("records: missing")
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil, errors.New("records: null")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("records: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("records: expected object, got %v", tok)
	}

	partitions := []Partition{}
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("records: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("records: expected partition key, got %v", tok)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("records[%s]: %w", key, err)
		}
		if value = bytes.TrimSpace(value); len(value) == 0 || value[0] != '[' {
			return nil, fmt.Errorf("records[%s]: expected array, got %s", key, value)
		}
		var records []events.KafkaRecord
		if err := json.Unmarshal(value, &records); err != nil {
			return nil, fmt.Errorf("records[%s]: %w", key, err)
		}

		// Duplicate keys: the last value wins, at the position of the first.
		if i, dup := seen[key]; dup {
			partitions[i].Records = records
			continue
		}
		seen[key] = len(partitions)
		partitions = append(partitions, Partition{Key: key, Records: records})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("records: %w", err)
	}
	return partitions, nil
}

// PartitionKey formats the records mapping key for a topic partition.
func PartitionKey(topic string, partition int64) string {
	return topic + "-" + strconv.FormatInt(partition, 10)
}
