package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sequentech/message-otp/internal/domain"
	redisclient "github.com/sequentech/message-otp/internal/redis"
	"github.com/sequentech/message-otp/internal/verifier/app"
)

// notesKeyPrefix scopes verification notes to one auth session.
// Key pattern: verification_notes:{session_id}.
const notesKeyPrefix = "verification_notes:"

var _ app.NoteStore = (*RedisNoteStore)(nil)

// RedisNoteStore keeps session notes in one Redis hash per session. Every
// write refreshes the hash TTL so abandoned sessions age out.
type RedisNoteStore struct {
	cmd redisclient.Cmdable
	ttl time.Duration
}

// NewRedisNoteStore creates a note store. A non-positive ttl uses
// domain.NotesTTL.
func NewRedisNoteStore(cmd redisclient.Cmdable, ttl time.Duration) *RedisNoteStore {
	if ttl <= 0 {
		ttl = domain.NotesTTL
	}
	return &RedisNoteStore{cmd: cmd, ttl: ttl}
}

// Get returns every note of the session. A session with no notes yields an
// empty map.
func (s *RedisNoteStore) Get(ctx context.Context, sessionID string) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "redis.notes.get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "HGETALL"),
	)

	notes, err := s.cmd.HGetAll(ctx, notesKeyPrefix+sessionID).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("get notes for session %q: %w", sessionID, errors.Join(err, domain.ErrUnavailable))
	}
	return notes, nil
}

// Update writes set and deletes remove in one MULTI/EXEC so readers never
// observe half of a transition.
func (s *RedisNoteStore) Update(ctx context.Context, sessionID string, set map[string]string, remove []string) error {
	if len(set) == 0 && len(remove) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "redis.notes.update")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "MULTI"),
		attribute.Int("notes.set", len(set)),
		attribute.Int("notes.remove", len(remove)),
	)

	key := notesKeyPrefix + sessionID
	_, err := s.cmd.TxPipelined(ctx, func(pipe redisclient.Pipeliner) error {
		if len(remove) > 0 {
			pipe.HDel(ctx, key, remove...)
		}
		if len(set) > 0 {
			pipe.HSet(ctx, key, set)
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update notes for session %q: %w", sessionID, errors.Join(err, domain.ErrUnavailable))
	}
	return nil
}
