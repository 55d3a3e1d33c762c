package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo records BatchWriteItem calls. unprocessed[i] items of call i
// (counted from the chunk's tail) are handed back; failOn makes call i fail.
type fakeDynamo struct {
	calls       []*dynamodb.BatchWriteItemInput
	unprocessed map[int]int
	failOn      map[int]error
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	call := len(f.calls)
	f.calls = append(f.calls, in)

	if err := f.failOn[call]; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	if n := f.unprocessed[call]; n > 0 {
		for table, reqs := range in.RequestItems {
			if n > len(reqs) {
				n = len(reqs)
			}
			out.UnprocessedItems[table] = reqs[len(reqs)-n:]
		}
	}
	return out, nil
}

// accepted returns the "id" attribute of every item DynamoDB kept, in order.
func (f *fakeDynamo) accepted(table string) []string {
	var ids []string
	for i, in := range f.calls {
		if f.failOn[i] != nil {
			continue
		}
		reqs := in.RequestItems[table]
		keep := len(reqs) - f.unprocessed[i]
		if keep < 0 {
			keep = 0
		}
		for _, r := range reqs[:keep] {
			ids = append(ids, attrString(r.PutRequest.Item["id"]))
		}
	}
	return ids
}

func attrString(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	default:
		return fmt.Sprintf("%T", av)
	}
}

func itemWithID(id int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberN{Value: fmt.Sprint(id)},
	}
}
