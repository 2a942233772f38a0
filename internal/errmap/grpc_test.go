package errmap_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/errmap"
)

func TestToGRPCStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
	}{
		{"nil error", nil, codes.OK},
		{"ErrInternalState", domain.ErrInternalState, codes.FailedPrecondition},
		{"ErrTemporarilyDisabled", domain.ErrTemporarilyDisabled, codes.ResourceExhausted},
		{"ErrSendFailed", domain.ErrSendFailed, codes.Unavailable},
		{"ErrResendTooSoon", domain.ErrResendTooSoon, codes.ResourceExhausted},
		{"ErrCodeInvalid", domain.ErrCodeInvalid, codes.Unauthenticated},
		{"ErrCodeExpired", domain.ErrCodeExpired, codes.Unauthenticated},
		{"ErrMaxReceiverReuse", domain.ErrMaxReceiverReuse, codes.FailedPrecondition},
		{"ErrInvalidCountry", domain.ErrInvalidCountry, codes.InvalidArgument},
		{"ErrNotFound", domain.ErrNotFound, codes.NotFound},
		{"ErrAlreadyExists", domain.ErrAlreadyExists, codes.AlreadyExists},
		{"ErrUnauthorized", domain.ErrUnauthorized, codes.Unauthenticated},
		{"ErrInvalidInput", domain.ErrInvalidInput, codes.InvalidArgument},
		{"ErrUnavailable", domain.ErrUnavailable, codes.Unavailable},
		{"wrapped ErrNotFound", fmt.Errorf("account %s: %w", "acct-1", domain.ErrNotFound), codes.NotFound},
		{"existing status kept", status.Error(codes.Canceled, "client went away"), codes.Canceled},
		{"unknown error", errors.New("connection refused"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, errmap.ToGRPCStatus(tt.err).Code())
		})
	}
}

func TestFromGRPCError(t *testing.T) {
	assert.Equal(t, codes.OK, errmap.FromGRPCError(nil))
	assert.Equal(t, codes.NotFound, errmap.FromGRPCError(errmap.ToGRPCError(domain.ErrNotFound)))
	assert.Equal(t, codes.Unknown, errmap.FromGRPCError(errors.New("regular error")))
}

// Every sentinel except configuration errors has an explicit mapping.
func TestGRPCMappingCompleteness(t *testing.T) {
	domainErrors := []error{
		domain.ErrInvalidInput,
		domain.ErrInvalidCountry,
		domain.ErrSendFailed,
		domain.ErrResendTooSoon,
		domain.ErrCodeInvalid,
		domain.ErrCodeExpired,
		domain.ErrMaxReceiverReuse,
		domain.ErrInternalState,
		domain.ErrTemporarilyDisabled,
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrUnauthorized,
		domain.ErrUnavailable,
		domain.ErrEmptyID,
		domain.ErrInvalidID,
	}

	for _, err := range domainErrors {
		t.Run(err.Error(), func(t *testing.T) {
			assert.NotEqual(t, codes.Internal, errmap.ToGRPCStatus(err).Code())
			assert.NotEqual(t, "INTERNAL", errmap.ToHTTPError(err).Code)
		})
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	intercept := errmap.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/verifier.v1/Check"}

	_, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, fmt.Errorf("check: %w", domain.ErrResendTooSoon)
	})
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	resp, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}
