package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/joho/godotenv"

	"github.com/wolfman30/healthcare-booking/cmd/mainconfig"
	appconfig "github.com/wolfman30/healthcare-booking/internal/config"
)

type tableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	if strings.TrimSpace(cfg.DynamoDBTable) == "" {
		log.Fatal("DYNAMODB_TABLE is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	client := dynamodb.NewFromConfig(awsCfg)

	// Check for drop command: /bin/migrate drop
	if len(os.Args) >= 2 && os.Args[1] == "drop" {
		if cfg.IsProduction() {
			log.Fatal("refusing to drop a production table")
		}
		if _, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(cfg.DynamoDBTable)}); err != nil {
			log.Fatalf("drop table: %v", err)
		}
		log.Printf("dropped table %s", cfg.DynamoDBTable)
		return
	}

	created, err := ensureTable(ctx, client, cfg.DynamoDBTable)
	if err != nil {
		log.Fatalf("create table: %v", err)
	}
	if !created {
		log.Printf("table %s already exists", cfg.DynamoDBTable)
		return
	}
	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(cfg.DynamoDBTable)}, time.Minute); err != nil {
		log.Fatalf("wait for table: %v", err)
	}
	log.Printf("table %s is active", cfg.DynamoDBTable)
}

// tableDefinition is the single-table layout shared by the catalog, booking,
// roles and outbox stores: a string partition key PK and sort key SK.
func tableDefinition(name string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}

// ensureTable creates the table unless it already exists.
func ensureTable(ctx context.Context, client tableAPI, name string) (bool, error) {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	if err == nil {
		return false, nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return false, fmt.Errorf("describe %s: %w", name, err)
	}

	if _, err := client.CreateTable(ctx, tableDefinition(name)); err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return false, nil
		}
		return false, fmt.Errorf("create %s: %w", name, err)
	}
	return true, nil
}
