// Package decoder turns a batch event into the ordered list of sales records
// carried by its messages.
package decoder

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"unicode/utf8"

	"go.uber.org/zap"

	serrors "github.com/salesink/salesink/internal/errors"
	"github.com/salesink/salesink/internal/event"
)

// Record is one decoded message payload. Any JSON value is accepted; numbers
// are json.Number so that their exact text reaches the store.
type Record = any

// Decoder decodes batch events. The zero value is usable and logs nothing.
type Decoder struct {
	logger *zap.Logger
}

// New creates a Decoder that logs through logger.
func New(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// Decode walks every partition in event order and every record in partition
// order: base64 → UTF-8 → JSON. The first malformed record aborts the whole
// batch and nil is returned together with a DECODE error.
func (d *Decoder) Decode(batch *event.BatchEvent) ([]Record, error) {
	if batch == nil {
		return nil, serrors.NewDecodeError(serrors.CodeInvalidEvent, "batch event is nil", nil)
	}

	log := d.logger
	if log == nil {
		log = zap.NewNop()
	}

	records := make([]Record, 0, batch.RecordCount())
	for _, p := range batch.Partitions {
		log.Info("Processing partition", zap.String("partition", p.Key))

		for i, raw := range p.Records {
			rec, err := DecodeValue(raw.Value)
			if err != nil {
				return nil, withPosition(err, p.Key, i, raw.Offset)
			}
			log.Info("Sales data in message",
				zap.String("partition", p.Key),
				zap.Int64("offset", raw.Offset),
				zap.Any("sale", rec),
			)
			records = append(records, rec)
		}
	}
	return records, nil
}

// DecodeValue decodes one base64 encoded UTF-8 JSON document.
func DecodeValue(value string) (Record, error) {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, serrors.NewDecodeError(serrors.CodeInvalidBase64, "value is not valid base64", err)
	}

	if !utf8.Valid(data) {
		return nil, serrors.NewDecodeError(serrors.CodeInvalidUTF8, "value is not valid UTF-8", nil)
	}

	rec, err := parseJSON(data)
	if err != nil {
		return nil, serrors.NewDecodeError(serrors.CodeInvalidJSON, "value is not valid JSON", err)
	}
	return rec, nil
}

func parseJSON(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	// The document must hold exactly one value.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("unexpected data after top-level value")
		}
		return nil, err
	}
	return v, nil
}

func withPosition(err error, partition string, index int, offset int64) error {
	var se *serrors.SalesError
	if !errors.As(err, &se) {
		return err
	}
	return se.WithDetails(map[string]interface{}{
		"partition": partition,
		"index":     index,
		"offset":    offset,
	})
}
