package keysafe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	pkAttr      = "pk" // Partition key attribute: class
	skAttr      = "sk" // Sort key attribute: account
	dataAttr    = "Data"
	accessAttr  = "Access"
	createdAttr = "CreatedAt"

	dynamoBatchSize = 25
)

// DynamoDBAPI is the part of *dynamodb.Client used by DynamoDBBackend.
type DynamoDBAPI interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoDBBackend keeps entries in a table keyed by (pk = class, sk = account).
type DynamoDBBackend struct {
	client    DynamoDBAPI
	tableName string
}

func NewDynamoDBBackend(client DynamoDBAPI, tableName string) *DynamoDBBackend {
	return &DynamoDBBackend{
		client:    client,
		tableName: tableName,
	}
}

type dynamoEntry struct {
	Data   []byte `dynamodbav:"Data"`
	Access string `dynamodbav:"Access"`
}

func (d *DynamoDBBackend) key(class Class, account string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkAttr: &types.AttributeValueMemberS{Value: string(class)},
		skAttr: &types.AttributeValueMemberS{Value: account},
	}
}

func (d *DynamoDBBackend) putInput(item Item) (*dynamodb.PutItemInput, error) {
	av, err := attributevalue.MarshalMap(map[string]interface{}{
		pkAttr:      string(item.Class),
		skAttr:      item.Account,
		dataAttr:    item.Data,
		accessAttr:  item.Access.String(),
		createdAttr: time.Now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}

	return &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	}, nil
}

// Insert fails with ErrDuplicate when the key is taken.
func (d *DynamoDBBackend) Insert(ctx context.Context, item Item) error {
	input, err := d.putInput(item)
	if err != nil {
		return err
	}
	input.ConditionExpression = aws.String("attribute_not_exists(#pk)")
	input.ExpressionAttributeNames = map[string]string{
		"#pk": pkAttr,
	}

	_, err = d.client.PutItem(ctx, input)
	if err != nil {
		var condFail *types.ConditionalCheckFailedException
		if errors.As(err, &condFail) {
			return ErrDuplicate
		}
		return fmt.Errorf("PutItem failed: %w", err)
	}

	return nil
}

// Upsert is an unconditional PutItem, which replaces atomically.
func (d *DynamoDBBackend) Upsert(ctx context.Context, item Item) error {
	input, err := d.putInput(item)
	if err != nil {
		return err
	}

	if _, err := d.client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("PutItem failed: %w", err)
	}
	return nil
}

func (d *DynamoDBBackend) Query(ctx context.Context, class Class, account string) ([]byte, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.key(class, account),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem failed: %w", err)
	}

	if out.Item == nil {
		return nil, ErrNotFound
	}

	var entry dynamoEntry
	if err := attributevalue.UnmarshalMap(out.Item, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	return entry.Data, nil
}

func (d *DynamoDBBackend) DeleteByAccount(ctx context.Context, class Class, account string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 d.key(class, account),
		ConditionExpression: aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": pkAttr,
		},
	})
	if err != nil {
		var condFail *types.ConditionalCheckFailedException
		if errors.As(err, &condFail) {
			return ErrNotFound
		}
		return fmt.Errorf("DeleteItem failed: %w", err)
	}
	return nil
}

// DeleteByClass queries the whole partition and deletes it in batches.
func (d *DynamoDBBackend) DeleteByClass(ctx context.Context, class Class) error {
	paginator := dynamodb.NewQueryPaginator(d.client, &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ProjectionExpression:   aws.String("#pk, #sk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": pkAttr,
			"#sk": skAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: string(class)},
		},
		ConsistentRead: aws.Bool(true),
	})

	var keys []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("Query failed: %w", err)
		}
		keys = append(keys, page.Items...)
	}

	for start := 0; start < len(keys); start += dynamoBatchSize {
		end := min(start+dynamoBatchSize, len(keys))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, k := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: k},
			})
		}

		out, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				d.tableName: requests,
			},
		})
		if err != nil {
			return fmt.Errorf("BatchWriteItem failed: %w", err)
		}
		if n := len(out.UnprocessedItems[d.tableName]); n > 0 {
			return fmt.Errorf("BatchWriteItem left %d entries undeleted", n)
		}
	}

	return nil
}
