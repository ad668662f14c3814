package client

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/partiqlabs/partiq/query/executor"
)

// DynamoAPI is the slice of the DynamoDB client the store needs.
type DynamoAPI interface {
	ExecuteStatement(ctx context.Context, params *dynamodb.ExecuteStatementInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error)
}

// DynamoStore adapts the DynamoDB PartiQL API to the page protocol.
type DynamoStore struct {
	api DynamoAPI
}

// NewDynamoStore wraps a DynamoDB API client.
func NewDynamoStore(api DynamoAPI) *DynamoStore {
	return &DynamoStore{api: api}
}

// ExecutePage issues one ExecuteStatement call. The request maps onto the
// wire one-to-one: the statement text and parameters are sent as-is, the
// page size travels as the request's evaluation limit, and the
// continuation token is forwarded untouched.
func (s *DynamoStore) ExecutePage(ctx context.Context, req *executor.Request) (*executor.Page, error) {
	out, err := s.api.ExecuteStatement(ctx, &dynamodb.ExecuteStatementInput{
		Statement:  aws.String(req.Statement),
		Parameters: req.Params,
		Limit:      req.Limit,
		NextToken:  req.NextToken,
	})
	if err != nil {
		return nil, fmt.Errorf("client: execute statement: %w", err)
	}
	return &executor.Page{Rows: out.Items, NextToken: out.NextToken}, nil
}
