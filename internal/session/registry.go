package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry owns the live sessions of the process. Update gives fn exclusive
// access to one session and stores whatever state fn leaves behind, also when
// fn returns an error.
type Registry interface {
	Create(ctx context.Context) (*Session, error)
	Update(ctx context.Context, id string, fn func(*Session) error) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	mu       sync.Mutex
	sess     *Session
	lastSeen time.Time
	deleted  bool
}

// MemoryRegistry keeps sessions in process memory. Sessions idle for longer
// than the idle timeout are treated as ended.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	idle    time.Duration
	now     func() time.Time
}

func NewMemoryRegistry(idle time.Duration) *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]*memoryEntry),
		idle:    idle,
		now:     time.Now,
	}
}

func (r *MemoryRegistry) Create(ctx context.Context) (*Session, error) {
	s := New(uuid.NewString())

	r.mu.Lock()
	r.entries[s.id] = &memoryEntry{sess: s, lastSeen: r.now()}
	r.mu.Unlock()

	return s.clone(), nil
}

func (r *MemoryRegistry) Update(ctx context.Context, id string, fn func(*Session) error) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return ErrSessionNotFound
	}
	now := r.now()
	if now.Sub(e.lastSeen) > r.idle {
		e.deleted = true
		r.remove(id, e)
		return ErrSessionNotFound
	}

	err := fn(e.sess)
	e.lastSeen = now
	return err
}

func (r *MemoryRegistry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}

// Sweep ends sessions idle past the timeout and returns how many it removed.
// Sessions busy in Update are skipped.
func (r *MemoryRegistry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.entries {
		if !e.mu.TryLock() {
			continue
		}
		if now.Sub(e.lastSeen) > r.idle {
			e.deleted = true
			delete(r.entries, id)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// Len reports the number of sessions currently held.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *MemoryRegistry) remove(id string, e *memoryEntry) {
	r.mu.Lock()
	if r.entries[id] == e {
		delete(r.entries, id)
	}
	r.mu.Unlock()
}

func (s *Session) clone() *Session {
	c := *s
	c.cart = s.Cart()
	return &c
}
