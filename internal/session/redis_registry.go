package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrSessionBusy = errors.New("session is busy, try again")

// RedisBackend is the subset of redisclient.Client the registry needs.
// GetSession returns nil data when the key does not exist.
type RedisBackend interface {
	SetSession(ctx context.Context, id string, data []byte, ttl time.Duration) error
	GetSession(ctx context.Context, id string) ([]byte, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// RedisRegistry stores sessions as JSON with an idle TTL that every update
// refreshes, so several server processes can serve the same shopper.
type RedisRegistry struct {
	backend   RedisBackend
	idle      time.Duration
	lockTTL   time.Duration
	lockWait  time.Duration
	lockRetry time.Duration
}

func NewRedisRegistry(backend RedisBackend, idle time.Duration) *RedisRegistry {
	return &RedisRegistry{
		backend:   backend,
		idle:      idle,
		lockTTL:   10 * time.Second,
		lockWait:  3 * time.Second,
		lockRetry: 25 * time.Millisecond,
	}
}

func (r *RedisRegistry) Create(ctx context.Context) (*Session, error) {
	s := New(uuid.NewString())
	if err := r.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *RedisRegistry) Update(ctx context.Context, id string, fn func(*Session) error) error {
	token := uuid.NewString()
	if err := r.lock(ctx, id, token); err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.backend.ReleaseLock(releaseCtx, id, token)
	}()

	data, err := r.backend.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if data == nil {
		return ErrSessionNotFound
	}

	s := &Session{}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to decode session %s: %w", id, err)
	}

	fnErr := fn(s)
	if err := r.save(ctx, s); err != nil {
		return err
	}
	return fnErr
}

// Delete waits for a running Update so it cannot be undone by that update's save.
func (r *RedisRegistry) Delete(ctx context.Context, id string) error {
	token := uuid.NewString()
	if err := r.lock(ctx, id, token); err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.backend.ReleaseLock(releaseCtx, id, token)
	}()

	existed, err := r.backend.DeleteSession(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if !existed {
		return ErrSessionNotFound
	}
	return nil
}

func (r *RedisRegistry) save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.backend.SetSession(ctx, s.id, data, r.idle); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) lock(ctx context.Context, id, token string) error {
	deadline := time.Now().Add(r.lockWait)
	for {
		ok, err := r.backend.AcquireLock(ctx, id, token, r.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to lock session: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrSessionBusy
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.lockRetry):
		}
	}
}
