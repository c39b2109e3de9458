// Package engine ties the mastery tracker, review scheduler, item selector
// and recommendation engine into one scheduler session per learner.
package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/pavelanni/tutor/internal/history"
	"github.com/pavelanni/tutor/internal/mastery"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/recommend"
	"github.com/pavelanni/tutor/internal/review"
	"github.com/pavelanni/tutor/internal/selector"
)

// AnalyticsTopics is the number of weakest and strongest topics in Analytics.
const AnalyticsTopics = 3

// Bank is the read-only question catalog the engine resolves items against.
type Bank interface {
	GetByID(id int64) (model.Question, bool)
	All() []model.Question
}

// SnapshotStore persists serialized learner state.
// LoadSnapshot returns nil data and a nil error when the learner has no snapshot.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, learner string) ([]byte, error)
	SaveSnapshot(ctx context.Context, learner string, data []byte) error
	ListLearners(ctx context.Context) ([]string, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand sets the random source used for uniform item picks.
func WithRand(r selector.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithClock sets the clock used to stamp saved snapshots.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator sets the generator of recommendation ids.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// Engine is the scheduler state of one learner. It is not safe for
// concurrent use; Registry serializes access per learner.
type Engine struct {
	learner string
	bank    Bank
	store   SnapshotStore

	rng   selector.Rand
	now   func() time.Time
	newID func() string

	tracker *mastery.Tracker
	reviews *review.Scheduler
	log     *history.Log

	selector    *selector.Selector
	recommender *recommend.Engine

	dirty bool
}

// New creates an empty engine for learner. Call LoadState to restore
// previously saved progress.
func New(b Bank, store SnapshotStore, learner string, opts ...Option) *Engine {
	e := &Engine{
		learner: learner,
		bank:    b,
		store:   store,
		now:     time.Now,
		tracker: mastery.NewTracker(),
		reviews: review.NewScheduler(),
		log:     history.New(nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	e.wire()
	return e
}

// wire rebuilds the policy components over the current state.
func (e *Engine) wire() {
	e.selector = selector.New(e.tracker, e.reviews, e.log, e.rng)
	e.recommender = recommend.New(e.tracker, e.reviews, e.log)
	if e.newID != nil {
		e.recommender.WithIDGenerator(e.newID)
	}
}

// Learner returns the learner id the engine belongs to.
func (e *Engine) Learner() string {
	return e.learner
}

// Dirty reports whether the state changed since the last load or save.
func (e *Engine) Dirty() bool {
	return e.dirty
}

// RecordAnswer applies one graded answer to the mastery tracker and the
// review scheduler and appends it to the answer history.
func (e *Engine) RecordAnswer(a model.GradedAnswer) error {
	q, ok := e.bank.GetByID(a.ItemID)
	if !ok {
		return &model.UnknownItemError{ItemID: a.ItemID}
	}
	a.TimeSpent = model.ClampTimeSpent(a.TimeSpent)
	e.tracker.RecordAnswer(a, q)
	e.reviews.RecordAnswer(a, q.Topic)
	e.log.Append(a)
	e.dirty = true
	return nil
}

// NextItem selects the next item to present, skipping the excluded ids.
// ok is false when every item is excluded.
func (e *Engine) NextItem(exclude []int64, now time.Time) (selector.Selection, bool, error) {
	skip := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		if _, ok := e.bank.GetByID(id); !ok {
			return selector.Selection{}, false, &model.UnknownItemError{ItemID: id}
		}
		skip[id] = true
	}
	all := e.bank.All()
	pool := make([]model.Question, 0, len(all))
	for _, q := range all {
		if !skip[q.ID] {
			pool = append(pool, q)
		}
	}
	sel, ok := e.selector.Next(pool, now)
	return sel, ok, nil
}

// Analytics summarizes the learner's state. It does not modify anything.
func (e *Engine) Analytics(now time.Time) model.Analytics {
	total := e.log.Len()
	correct, totalTime := e.log.Totals()
	a := model.Analytics{
		TotalQuestions:   total,
		TotalTime:        totalTime,
		TopicPerformance: e.tracker.All(),
		WeakestTopics:    e.tracker.Weakest(AnalyticsTopics),
		StrongestTopics:  e.tracker.Strongest(AnalyticsTopics),
		ReviewItemsDue:   len(e.reviews.Due(now)),
	}
	if total > 0 {
		a.OverallAccuracy = float64(correct) / float64(total)
		a.RecentAccuracy = e.log.RecentAccuracy(history.RecentWindow)
		a.AverageTime = totalTime / float64(total)
	}
	return a
}

// TopicPerformance returns the learner's record for topic, if any.
func (e *Engine) TopicPerformance(topic string) (model.TopicPerformance, bool) {
	return e.tracker.Lookup(topic)
}

// Review returns the review record of an item, if it was ever answered.
func (e *Engine) Review(itemID int64) (model.ReviewRecord, bool) {
	return e.reviews.Record(itemID)
}

// Recommendations returns prioritized study suggestions localized with ctx.
func (e *Engine) Recommendations(ctx context.Context, now time.Time) []model.Recommendation {
	return e.recommender.Generate(ctx, now)
}

// DueReviews returns the review records due at now, earliest first.
func (e *Engine) DueReviews(now time.Time) []model.ReviewRecord {
	return e.reviews.Due(now)
}

// Reviews returns every review record ordered by item id.
func (e *Engine) Reviews() []model.ReviewRecord {
	return e.reviews.All()
}

// History returns the full answer history in submission order.
func (e *Engine) History() []model.GradedAnswer {
	return e.log.Answers()
}

// Reset drops all progress. The empty state is persisted by the next save.
func (e *Engine) Reset() {
	e.clear()
	e.dirty = true
}

func (e *Engine) clear() {
	e.tracker.Reset()
	e.reviews.Reset()
	e.log.Reset()
}

// LoadState replaces the in-memory state with the learner's saved snapshot.
// A missing snapshot leaves an empty state. A snapshot that fails validation
// also leaves an empty state and is reported as a *model.CorruptSnapshotError,
// which callers may treat as a warning.
func (e *Engine) LoadState(ctx context.Context) error {
	data, err := e.store.LoadSnapshot(ctx, e.learner)
	if err != nil {
		return fmt.Errorf("load snapshot for %s: %w", e.learner, err)
	}
	e.clear()
	e.dirty = false
	if data == nil {
		return nil
	}

	snap, err := decodeSnapshot(data, e.learner)
	if err != nil {
		return err
	}
	e.tracker.Restore(snap.Topics)
	e.reviews.Restore(snap.Reviews)
	e.log = history.New(snap.Answers)
	e.wire()
	return nil
}

// SaveState writes the current state to the store. On failure the state
// stays dirty so a later save retries.
func (e *Engine) SaveState(ctx context.Context) error {
	data, err := encodeSnapshot(snapshot{
		Version: snapshotVersion,
		Learner: e.learner,
		SavedAt: e.now().UTC(),
		Answers: e.log.Answers(),
		Topics:  e.tracker.Snapshot(),
		Reviews: e.reviews.All(),
	})
	if err != nil {
		return fmt.Errorf("encode snapshot for %s: %w", e.learner, err)
	}
	if err := e.store.SaveSnapshot(ctx, e.learner, data); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", e.learner, err)
	}
	e.dirty = false
	return nil
}
