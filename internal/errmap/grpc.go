// Package errmap maps domain errors to HTTP and gRPC responses.
package errmap

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sequentech/message-otp/internal/domain"
)

// grpcMappings is checked in order with errors.Is; the first match wins.
var grpcMappings = []struct {
	err  error
	code codes.Code
}{
	{domain.ErrInternalState, codes.FailedPrecondition},
	{domain.ErrTemporarilyDisabled, codes.ResourceExhausted},

	{domain.ErrSendFailed, codes.Unavailable},
	{domain.ErrResendTooSoon, codes.ResourceExhausted},
	{domain.ErrCodeInvalid, codes.Unauthenticated},
	{domain.ErrCodeExpired, codes.Unauthenticated},
	{domain.ErrMaxReceiverReuse, codes.FailedPrecondition},
	{domain.ErrInvalidCountry, codes.InvalidArgument},

	{domain.ErrNotFound, codes.NotFound},
	{domain.ErrAlreadyExists, codes.AlreadyExists},
	{domain.ErrUnauthorized, codes.Unauthenticated},

	{domain.ErrInvalidInput, codes.InvalidArgument},
	{domain.ErrEmptyID, codes.InvalidArgument},
	{domain.ErrInvalidID, codes.InvalidArgument},

	{domain.ErrUnavailable, codes.Unavailable},
}

// ToGRPCStatus converts a domain error to a gRPC status.
func ToGRPCStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	if st, ok := status.FromError(err); ok {
		return st
	}
	for _, m := range grpcMappings {
		if errors.Is(err, m.err) {
			return status.New(m.code, m.err.Error())
		}
	}
	return status.New(codes.Internal, "internal error")
}

// ToGRPCError converts a domain error to a gRPC error.
func ToGRPCError(err error) error {
	return ToGRPCStatus(err).Err()
}

// FromGRPCError extracts the gRPC status code from an error.
// Returns codes.Unknown if the error is not a gRPC status error.
func FromGRPCError(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}

// UnaryServerInterceptor maps handler errors to gRPC statuses.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return nil, ToGRPCError(err)
		}
		return resp, nil
	}
}
