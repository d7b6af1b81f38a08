package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTables struct {
	exists      bool
	describeErr error
	createErr   error
	created     []*dynamodb.CreateTableInput
}

func (f *fakeTables) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if !f.exists {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableName: in.TableName}}, nil
}

func (f *fakeTables) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, in)
	f.exists = true
	return &dynamodb.CreateTableOutput{}, nil
}

func TestEnsureTableCreatesSingleTableLayout(t *testing.T) {
	fake := &fakeTables{}

	created, err := ensureTable(context.Background(), fake, "healthcare-booking")
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, fake.created, 1)

	in := fake.created[0]
	assert.Equal(t, "healthcare-booking", aws.ToString(in.TableName))
	assert.Equal(t, types.BillingModePayPerRequest, in.BillingMode)
	require.Len(t, in.KeySchema, 2)
	assert.Equal(t, "PK", aws.ToString(in.KeySchema[0].AttributeName))
	assert.Equal(t, types.KeyTypeHash, in.KeySchema[0].KeyType)
	assert.Equal(t, "SK", aws.ToString(in.KeySchema[1].AttributeName))
	assert.Equal(t, types.KeyTypeRange, in.KeySchema[1].KeyType)

	created, err = ensureTable(context.Background(), fake, "healthcare-booking")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, fake.created, 1)
}

func TestEnsureTableToleratesConcurrentCreate(t *testing.T) {
	fake := &fakeTables{createErr: &types.ResourceInUseException{Message: aws.String("in use")}}

	created, err := ensureTable(context.Background(), fake, "t")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnsureTableSurfacesDescribeErrors(t *testing.T) {
	fake := &fakeTables{describeErr: errors.New("access denied")}

	_, err := ensureTable(context.Background(), fake, "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Empty(t, fake.created)
}
