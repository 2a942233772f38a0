package dynamo_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequentech/message-otp/internal/dynamo"
)

func TestNewClient(t *testing.T) {
	ctx := context.Background()

	t.Run("local endpoint", func(t *testing.T) {
		client, err := dynamo.NewClient(ctx, dynamo.Config{
			Endpoint: "http://localhost:4566",
			Region:   "eu-west-1",
			Timeout:  5 * time.Second,
		})
		require.NoError(t, err)
		require.NotNil(t, client.DB)
	})

	t.Run("default endpoint", func(t *testing.T) {
		client, err := dynamo.NewClient(ctx, dynamo.Config{Region: "eu-west-1"})
		require.NoError(t, err)
		require.NotNil(t, client.DB)
	})
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("put item: %w", dynamo.ErrConditionalCheckFailed())
	assert.True(t, dynamo.IsConditionalCheckFailed(wrapped))
	assert.False(t, dynamo.IsThrottled(wrapped))

	throttled := fmt.Errorf("query: %w", dynamo.ErrThrottled())
	assert.True(t, dynamo.IsThrottled(throttled))
	assert.False(t, dynamo.IsConditionalCheckFailed(throttled))

	assert.False(t, dynamo.IsConditionalCheckFailed(errors.New("boom")))
}

func TestExpressionBuilder(t *testing.T) {
	expr, err := dynamo.NewExpressionBuilder().
		WithKeyCondition(dynamo.Key("email").Equal(dynamo.Value("user@example.com"))).
		Build()
	require.NoError(t, err)

	require.NotNil(t, expr.KeyCondition())
	assert.Len(t, expr.Names(), 1)
	assert.Len(t, expr.Values(), 1)
}
