package storage

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	serrors "github.com/salesink/salesink/internal/errors"
)

// ItemFromRecord converts a decoded JSON value into a DynamoDB item. Only
// JSON objects can be items.
//
// json.Number is stored as N with its original text, so precision chosen by
// the producer is kept. Strings, booleans, null, objects and arrays map to
// S, BOOL, NULL, M and L. Any other Go value goes through attributevalue.
func ItemFromRecord(record any) (map[string]types.AttributeValue, error) {
	obj, ok := record.(map[string]any)
	if !ok {
		return nil, serrors.NewPersistError(serrors.CodeInvalidItem,
			fmt.Sprintf("record is %s, not a JSON object", jsonKind(record)), nil)
	}

	item, err := toMap(obj)
	if err != nil {
		return nil, serrors.NewPersistError(serrors.CodeInvalidItem, "record cannot be converted to an item", err)
	}
	return item, nil
}

func toMap(obj map[string]any) (map[string]types.AttributeValue, error) {
	m := make(map[string]types.AttributeValue, len(obj))
	for k, v := range obj {
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		m[k] = av
	}
	return m, nil
}

func toAttributeValue(v any) (types.AttributeValue, error) {
	switch x := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: x}, nil
	case string:
		return &types.AttributeValueMemberS{Value: x}, nil
	case json.Number:
		return &types.AttributeValueMemberN{Value: x.String()}, nil
	case map[string]any:
		m, err := toMap(x)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case []any:
		l := make([]types.AttributeValue, 0, len(x))
		for i, e := range x {
			av, err := toAttributeValue(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			l = append(l, av)
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	default:
		return attributevalue.Marshal(v)
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case string:
		return "a string"
	case json.Number, float64, float32, int, int64, int32:
		return "a number"
	case []any:
		return "an array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
