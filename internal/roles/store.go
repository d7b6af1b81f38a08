// Package roles stores operator role grants and answers per-request
// authorization checks.
package roles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// RoleAdmin grants access to the admin panels and booking operations.
const RoleAdmin = "admin"

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Grant is one role held by a requester.
type Grant struct {
	PK          string    `dynamodbav:"PK"`
	SK          string    `dynamodbav:"SK"`
	RequesterID string    `dynamodbav:"requester_id"`
	Role        string    `dynamodbav:"role"`
	GrantedBy   string    `dynamodbav:"granted_by,omitempty"`
	GrantedAt   time.Time `dynamodbav:"granted_at"`
}

// Store persists grants as PK=ROLE#<uid>, SK=ROLE#<role>.
type Store struct {
	client    dynamoAPI
	tableName string
	timeout   time.Duration
	logger    *logging.Logger
}

func NewStore(client dynamoAPI, tableName string, timeout time.Duration, logger *logging.Logger) *Store {
	if client == nil {
		panic("roles: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("roles: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{client: client, tableName: tableName, timeout: timeout, logger: logger}
}

func key(requesterID, role string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "ROLE#" + requesterID},
		"SK": &types.AttributeValueMemberS{Value: "ROLE#" + strings.ToLower(role)},
	}
}

func (s *Store) Grant(ctx context.Context, requesterID, role, grantedBy string) error {
	if requesterID == "" || role == "" {
		return fmt.Errorf("roles: requester id and role are required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	role = strings.ToLower(role)
	item, err := attributevalue.MarshalMap(Grant{
		PK:          "ROLE#" + requesterID,
		SK:          "ROLE#" + role,
		RequesterID: requesterID,
		Role:        role,
		GrantedBy:   grantedBy,
		GrantedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("roles: failed to marshal grant: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: item}); err != nil {
		return fmt.Errorf("roles: failed to grant %s: %w", role, err)
	}
	s.logger.Info("role granted", "requester_id", requesterID, "role", role, "granted_by", grantedBy)
	return nil
}

func (s *Store) Revoke(ctx context.Context, requesterID, role string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(requesterID, role),
	})
	if err != nil {
		return fmt.Errorf("roles: failed to revoke %s: %w", role, err)
	}
	s.logger.Info("role revoked", "requester_id", requesterID, "role", role)
	return nil
}

// HasRole is resolved against the table on every call.
func (s *Store) HasRole(ctx context.Context, requesterID, role string) (bool, error) {
	if requesterID == "" || role == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(requesterID, role),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("roles: failed to check %s: %w", role, err)
	}
	return len(out.Item) > 0, nil
}

// List returns the roles held by requesterID.
func (s *Store) List(ctx context.Context, requesterID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :role)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: "ROLE#" + requesterID},
			":role": &types.AttributeValueMemberS{Value: "ROLE#"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("roles: failed to list roles: %w", err)
	}
	var grants []Grant
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &grants); err != nil {
		return nil, fmt.Errorf("roles: failed to unmarshal roles: %w", err)
	}
	roles := make([]string, 0, len(grants))
	for _, g := range grants {
		roles = append(roles, g.Role)
	}
	return roles, nil
}
