// Package dynamo provides the shared DynamoDB client factory. Only this
// package imports the DynamoDB SDK; adapters use the re-exported types and
// helpers defined here.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Config holds DynamoDB connection parameters.
type Config struct {
	// Endpoint points at LocalStack or DynamoDB Local; empty uses AWS.
	Endpoint string
	Region   string
	Timeout  time.Duration
}

// Client wraps the SDK client; adapters take Client.DB.
type Client struct {
	DB *dynamodb.Client
}

// NewClient creates a DynamoDB client. A non-empty Endpoint also switches
// to static dummy credentials, which local emulators accept.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Timeout > 0 {
		awsCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	var dbOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		dbOpts = append(dbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Client{DB: dynamodb.NewFromConfig(awsCfg, dbOpts...)}, nil
}

// Operation types.
type (
	GetItemInput     = dynamodb.GetItemInput
	GetItemOutput    = dynamodb.GetItemOutput
	PutItemInput     = dynamodb.PutItemInput
	PutItemOutput    = dynamodb.PutItemOutput
	QueryInput       = dynamodb.QueryInput
	QueryOutput      = dynamodb.QueryOutput
	UpdateItemInput  = dynamodb.UpdateItemInput
	UpdateItemOutput = dynamodb.UpdateItemOutput
	DeleteItemInput  = dynamodb.DeleteItemInput
	DeleteItemOutput = dynamodb.DeleteItemOutput
)

// Options lets adapter-defined interfaces declare the optFns parameter.
type Options = dynamodb.Options

// Attribute value types.
type (
	AttributeValue           = types.AttributeValue
	AttributeValueMemberS    = types.AttributeValueMemberS
	AttributeValueMemberSS   = types.AttributeValueMemberSS
	AttributeValueMemberN    = types.AttributeValueMemberN
	AttributeValueMemberBOOL = types.AttributeValueMemberBOOL
)

// Query and delete enums.
const (
	SelectCount       = types.SelectCount
	ReturnValueAllOld = types.ReturnValueAllOld
)

// Expression builder types and constructors.
type (
	Expression       = expression.Expression
	ConditionBuilder = expression.ConditionBuilder
	UpdateBuilder    = expression.UpdateBuilder
	NameBuilder      = expression.NameBuilder
	ValueBuilder     = expression.ValueBuilder
	KeyBuilder       = expression.KeyBuilder
)

var (
	NewExpressionBuilder = expression.NewBuilder
	Name                 = expression.Name
	Value                = expression.Value
	Key                  = expression.Key
	Set                  = expression.Set
	AttributeExists      = expression.AttributeExists
	AttributeNotExists   = expression.AttributeNotExists
)

// Pointer and codec helpers.
var (
	Bool         = aws.Bool
	String       = aws.String
	MarshalMap   = attributevalue.MarshalMap
	UnmarshalMap = attributevalue.UnmarshalMap
)

// IsConditionalCheckFailed reports whether a condition expression rejected
// the write.
func IsConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// IsThrottled reports whether DynamoDB rejected the request for capacity.
func IsThrottled(err error) bool {
	var pte *types.ProvisionedThroughputExceededException
	var rle *types.RequestLimitExceeded
	return errors.As(err, &pte) || errors.As(err, &rle)
}

// ErrConditionalCheckFailed builds the exception DynamoDB returns for a
// failed condition, for adapter tests.
func ErrConditionalCheckFailed() error {
	return &types.ConditionalCheckFailedException{
		Message: aws.String("The conditional request failed"),
	}
}

// ErrThrottled builds a capacity exception, for adapter tests.
func ErrThrottled() error {
	return &types.ProvisionedThroughputExceededException{
		Message: aws.String("Rate of requests exceeds the allowed throughput"),
	}
}
