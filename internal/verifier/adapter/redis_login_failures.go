package adapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sequentech/message-otp/internal/domain"
	redisclient "github.com/sequentech/message-otp/internal/redis"
	"github.com/sequentech/message-otp/internal/verifier/app"
)

const (
	// loginFailuresKeyPrefix holds one hash per account.
	// Key pattern: login_failures:{account_id}.
	loginFailuresKeyPrefix = "login_failures:"

	fieldNumFailures   = "num_failures"
	fieldLastFailureAt = "last_failure_at"
)

var _ app.LoginFailureStore = (*RedisLoginFailureStore)(nil)

// RedisLoginFailureStore counts consecutive failed password checks per
// account. Records expire after retention of inactivity.
type RedisLoginFailureStore struct {
	cmd       redisclient.Cmdable
	retention time.Duration
}

// NewRedisLoginFailureStore creates a failure store. A non-positive
// retention keeps records until cleared.
func NewRedisLoginFailureStore(cmd redisclient.Cmdable, retention time.Duration) *RedisLoginFailureStore {
	return &RedisLoginFailureStore{cmd: cmd, retention: retention}
}

// Get returns the account's record; an account with no failures yields a
// zero record carrying only the account ID.
func (s *RedisLoginFailureStore) Get(ctx context.Context, accountID string) (domain.LoginFailureRecord, error) {
	ctx, span := tracer.Start(ctx, "redis.login_failures.get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "HGETALL"),
	)

	rec := domain.LoginFailureRecord{AccountID: accountID}

	fields, err := s.cmd.HGetAll(ctx, loginFailuresKeyPrefix+accountID).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return rec, fmt.Errorf("get login failures %q: %w", accountID, errors.Join(err, domain.ErrUnavailable))
	}
	if len(fields) == 0 {
		return rec, nil
	}

	n, err := strconv.Atoi(fields[fieldNumFailures])
	if err != nil {
		return rec, fmt.Errorf("login failures %q: bad %s %q: %w", accountID, fieldNumFailures, fields[fieldNumFailures], domain.ErrInternalState)
	}
	rec.NumFailures = n

	if raw, ok := fields[fieldLastFailureAt]; ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return rec, fmt.Errorf("login failures %q: bad %s %q: %w", accountID, fieldLastFailureAt, raw, domain.ErrInternalState)
		}
		rec.LastFailureAt = domain.FromMillis(ms)
	}
	return rec, nil
}

// RecordFailure increments the failure count and stamps the failure time.
func (s *RedisLoginFailureStore) RecordFailure(ctx context.Context, accountID string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "redis.login_failures.record")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "MULTI"),
	)

	key := loginFailuresKeyPrefix + accountID
	_, err := s.cmd.TxPipelined(ctx, func(pipe redisclient.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldNumFailures, 1)
		pipe.HSet(ctx, key, fieldLastFailureAt, strconv.FormatInt(domain.ToMillis(at), 10))
		if s.retention > 0 {
			pipe.Expire(ctx, key, s.retention)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("record login failure %q: %w", accountID, errors.Join(err, domain.ErrUnavailable))
	}
	return nil
}

// Clear drops the account's record after a successful login.
func (s *RedisLoginFailureStore) Clear(ctx context.Context, accountID string) error {
	ctx, span := tracer.Start(ctx, "redis.login_failures.clear")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "DEL"),
	)

	if err := s.cmd.Del(ctx, loginFailuresKeyPrefix+accountID).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("clear login failures %q: %w", accountID, errors.Join(err, domain.ErrUnavailable))
	}
	return nil
}
