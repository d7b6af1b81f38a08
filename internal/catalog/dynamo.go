package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type itemRecord struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	Item
}

func partitionKey(kind Kind) string { return "CATALOG#" + string(kind) }
func sortKey(id string) string      { return "ITEM#" + id }

// DynamoRepository stores items as PK=CATALOG#<kind>, SK=ITEM#<id>.
type DynamoRepository struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ Repository = (*DynamoRepository)(nil)

func NewDynamoRepository(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoRepository {
	if client == nil {
		panic("catalog: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("catalog: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoRepository{client: client, tableName: tableName, logger: logger}
}

func (r *DynamoRepository) marshal(item *Item) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(itemRecord{PK: partitionKey(item.Kind), SK: sortKey(item.ID), Item: *item})
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to marshal item: %w", err)
	}
	return av, nil
}

func (r *DynamoRepository) Create(ctx context.Context, item *Item) error {
	av, err := r.marshal(item)
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return apperr.Validation(map[string]string{"id": "an item with this id already exists"})
		}
		return apperr.Persistence(fmt.Errorf("catalog: failed to create item: %w", err))
	}
	return nil
}

func (r *DynamoRepository) Get(ctx context.Context, kind Kind, id string) (*Item, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: partitionKey(kind)},
			"SK": &types.AttributeValueMemberS{Value: sortKey(id)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, apperr.Persistence(fmt.Errorf("catalog: failed to get item: %w", err))
	}
	if len(out.Item) == 0 {
		return nil, apperr.NotFound(string(kind))
	}
	var rec itemRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("catalog: failed to unmarshal item: %w", err)
	}
	return &rec.Item, nil
}

func (r *DynamoRepository) List(ctx context.Context, kind Kind) ([]*Item, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: partitionKey(kind)},
		},
	}
	var items []*Item
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, apperr.Persistence(fmt.Errorf("catalog: failed to list %s: %w", kind, err))
		}
		for _, av := range out.Items {
			var rec itemRecord
			if err := attributevalue.UnmarshalMap(av, &rec); err != nil {
				r.logger.Error("skipping unreadable catalog item", "error", err, "kind", string(kind))
				continue
			}
			item := rec.Item
			items = append(items, &item)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	sortByCreated(items)
	return items, nil
}

func (r *DynamoRepository) Replace(ctx context.Context, item *Item, expectedVersion int64) error {
	av, err := r.marshal(item)
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(PK) AND version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
		},
	})
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return apperr.Persistence(fmt.Errorf("catalog: failed to update item: %w", err))
	}
	current, getErr := r.Get(ctx, item.Kind, item.ID)
	if getErr != nil {
		return getErr
	}
	return apperr.Modified(current.Version)
}
