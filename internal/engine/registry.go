package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pavelanni/tutor/internal/model"
)

type session struct {
	mu       sync.Mutex
	eng      *Engine
	loaded   bool
	evicted  bool
	lastUsed time.Time
}

// Registry owns one Engine per learner and serializes access to each.
// Different learners never block each other.
type Registry struct {
	bank    Bank
	store   SnapshotStore
	timeout time.Duration
	opts    []Option
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewRegistry creates a registry. timeout bounds each snapshot load and
// save; zero means no extra bound beyond the caller's context.
// Options are applied to every engine the registry creates.
func NewRegistry(b Bank, store SnapshotStore, timeout time.Duration, opts ...Option) *Registry {
	return &Registry{
		bank:     b,
		store:    store,
		timeout:  timeout,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

func (r *Registry) session(learner string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[learner]
	if !ok {
		s = &session{eng: New(r.bank, r.store, learner, r.opts...)}
		r.sessions[learner] = s
	}
	return s
}

// acquire returns the learner's session with its lock held. A session
// evicted while the caller waited for its lock is replaced by a fresh one.
func (r *Registry) acquire(learner string) *session {
	for {
		s := r.session(learner)
		s.mu.Lock()
		if !s.evicted {
			return s
		}
		s.mu.Unlock()
	}
}

func (r *Registry) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Do runs fn with the learner's engine while holding the learner's lock.
// The learner's snapshot is loaded on first use. A corrupt snapshot is
// logged and the learner starts from an empty state.
func (r *Registry) Do(ctx context.Context, learner string, fn func(*Engine) error) error {
	if learner == "" {
		return errors.New("empty learner id")
	}
	s := r.acquire(learner)
	defer s.mu.Unlock()
	s.lastUsed = r.now()

	if !s.loaded {
		lctx, cancel := r.storeCtx(ctx)
		err := s.eng.LoadState(lctx)
		cancel()
		if err != nil {
			if !errors.Is(err, model.ErrCorruptSnapshot) {
				return err
			}
			slog.Warn("discarding corrupt snapshot", "learner", learner, "error", err)
		}
		s.loaded = true
	}
	return fn(s.eng)
}

// Save persists one learner's state.
func (r *Registry) Save(ctx context.Context, learner string) error {
	return r.Do(ctx, learner, func(e *Engine) error {
		sctx, cancel := r.storeCtx(ctx)
		defer cancel()
		return e.SaveState(sctx)
	})
}

// SaveAll persists every loaded learner with unsaved changes and returns
// the number saved. Failures are joined; learners that failed stay dirty.
func (r *Registry) SaveAll(ctx context.Context) (int, error) {
	r.mu.Lock()
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	var errs []error
	saved := 0
	for _, s := range sessions {
		s.mu.Lock()
		if s.loaded && s.eng.Dirty() {
			sctx, cancel := r.storeCtx(ctx)
			if err := s.eng.SaveState(sctx); err != nil {
				errs = append(errs, err)
			} else {
				saved++
			}
			cancel()
		}
		s.mu.Unlock()
	}
	return saved, errors.Join(errs...)
}

// Evict drops sessions that have no unsaved changes and were not used for
// idle. Sessions busy in another call are kept. It returns the number evicted.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for learner, s := range r.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if !s.eng.Dirty() && s.lastUsed.Before(cutoff) {
			s.evicted = true
			delete(r.sessions, learner)
			evicted++
		}
		s.mu.Unlock()
	}
	return evicted
}

// Learners returns the ids of every learner with a saved snapshot or an
// active session, sorted.
func (r *Registry) Learners(ctx context.Context) ([]string, error) {
	lctx, cancel := r.storeCtx(ctx)
	defer cancel()
	stored, err := r.store.ListLearners(lctx)
	if err != nil {
		return nil, fmt.Errorf("list learners: %w", err)
	}
	seen := make(map[string]bool, len(stored))
	for _, l := range stored {
		seen[l] = true
	}
	r.mu.Lock()
	for l := range r.sessions {
		seen[l] = true
	}
	r.mu.Unlock()

	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out, nil
}
