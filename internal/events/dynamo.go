package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

const (
	outboxPK     = "OUTBOX"
	deadLetterPK = "OUTBOX#DEAD"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type outboxRecord struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	Entry
}

func sortKey(entry Entry) string {
	return entry.CreatedAt.UTC().Format(time.RFC3339Nano) + "#" + entry.ID
}

func marshalRecord(pk string, entry Entry) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(outboxRecord{PK: pk, SK: sortKey(entry), Entry: entry})
	if err != nil {
		return nil, fmt.Errorf("events: failed to marshal outbox entry: %w", err)
	}
	return item, nil
}

// TransactPut returns the write that enqueues entry as part of a caller's
// TransactWriteItems call, so the event commits with the state change.
func TransactPut(table string, entry Entry) (types.TransactWriteItem, error) {
	item, err := marshalRecord(outboxPK, entry)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Put: &types.Put{
		TableName:           aws.String(table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	}}, nil
}

// DynamoOutbox stores entries under a single partition ordered by creation time.
type DynamoOutbox struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ Outbox = (*DynamoOutbox)(nil)

func NewDynamoOutbox(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoOutbox {
	if client == nil {
		panic("events: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("events: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoOutbox{client: client, tableName: tableName, logger: logger}
}

func (o *DynamoOutbox) Enqueue(ctx context.Context, entry Entry) error {
	put, err := TransactPut(o.tableName, entry)
	if err != nil {
		return err
	}
	_, err = o.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           put.Put.TableName,
		Item:                put.Put.Item,
		ConditionExpression: put.Put.ConditionExpression,
	})
	if err != nil {
		return fmt.Errorf("events: failed to enqueue %s: %w", entry.Type, err)
	}
	return nil
}

func (o *DynamoOutbox) FetchPending(ctx context.Context, limit int) ([]Entry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(o.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: outboxPK},
		},
		ScanIndexForward: aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	out, err := o.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	entries := make([]Entry, 0, len(out.Items))
	for _, item := range out.Items {
		var rec outboxRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			o.logger.Error("skipping unreadable outbox entry", "error", err)
			continue
		}
		entries = append(entries, rec.Entry)
	}
	return entries, nil
}

func (o *DynamoOutbox) MarkDelivered(ctx context.Context, entry Entry) error {
	_, err := o.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(o.tableName),
		Key:       o.key(outboxPK, entry),
	})
	if err != nil {
		return fmt.Errorf("events: mark delivered: %w", err)
	}
	return nil
}

func (o *DynamoOutbox) MarkFailed(ctx context.Context, entry Entry, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := o.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(o.tableName),
		Key:                 o.key(outboxPK, entry),
		UpdateExpression:    aws.String("SET attempts = attempts + :one, last_error = :err"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: strconv.Itoa(1)},
			":err": &types.AttributeValueMemberS{Value: msg},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("events: mark failed: %w", err)
	}
	return nil
}

// MarkDead moves the entry to the dead-letter partition.
func (o *DynamoOutbox) MarkDead(ctx context.Context, entry Entry, cause error) error {
	if cause != nil {
		entry.LastError = cause.Error()
	}
	item, err := marshalRecord(deadLetterPK, entry)
	if err != nil {
		return err
	}
	_, err = o.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: aws.String(o.tableName), Item: item}},
			{Delete: &types.Delete{TableName: aws.String(o.tableName), Key: o.key(outboxPK, entry)}},
		},
	})
	if err != nil {
		return fmt.Errorf("events: move to dead letter: %w", err)
	}
	return nil
}

func (o *DynamoOutbox) key(pk string, entry Entry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sortKey(entry)},
	}
}
