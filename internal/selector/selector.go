// Package selector picks the next quiz item for a learner.
package selector

import (
	"time"

	"github.com/pavelanni/tutor/internal/history"
	"github.com/pavelanni/tutor/internal/model"
)

// Reason names the selection rule that produced an item.
type Reason string

const (
	ReasonReview      Reason = "review"
	ReasonRemediation Reason = "remediation"
	ReasonProgressive Reason = "progressive"
	ReasonFallback    Reason = "fallback"
)

// MaxRemediationTopics bounds the weak topics considered for remediation.
const MaxRemediationTopics = 3

// Rand is the random source used for uniform picks. *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// MasteryView exposes the weak topics of a learner.
type MasteryView interface {
	FocusTopics(limit int) []model.TopicPerformance
}

// ReviewView exposes items due for review.
type ReviewView interface {
	Due(now time.Time) []model.ReviewRecord
}

// HistoryView exposes recent accuracy.
type HistoryView interface {
	RecentAccuracy(n int) float64
}

// Selection is a chosen item and the rule that chose it.
type Selection struct {
	Item   model.Question `json:"item"`
	Reason Reason         `json:"reason"`
	Tier   model.Tier     `json:"target_tier,omitempty"`
}

// Selector arbitrates between overdue reviews, weak-topic remediation and
// progressive difficulty.
type Selector struct {
	mastery MasteryView
	reviews ReviewView
	history HistoryView
	rng     Rand
}

// New creates a Selector.
func New(m MasteryView, r ReviewView, h HistoryView, rng Rand) *Selector {
	return &Selector{mastery: m, reviews: r, history: h, rng: rng}
}

// Next picks one item from pool. ok is false when the pool is empty.
// The pool is expected to be ordered by id and already stripped of excluded items.
func (s *Selector) Next(pool []model.Question, now time.Time) (Selection, bool) {
	if len(pool) == 0 {
		return Selection{}, false
	}
	byID := make(map[int64]model.Question, len(pool))
	for _, q := range pool {
		byID[q.ID] = q
	}

	// Review debt: Due is already ordered by due date then item id.
	for _, r := range s.reviews.Due(now) {
		if q, ok := byID[r.ItemID]; ok {
			return Selection{Item: q, Reason: ReasonReview}, true
		}
	}

	target := TargetTier(s.history.RecentAccuracy(history.RecentWindow))

	weak := make(map[string]bool)
	for _, p := range s.mastery.FocusTopics(MaxRemediationTopics) {
		weak[p.Topic] = true
	}
	var remedial []model.Question
	for _, q := range pool {
		if weak[q.Topic] {
			remedial = append(remedial, q)
		}
	}
	if len(remedial) > 0 {
		if q, ok := s.pickTier(remedial, target); ok {
			return Selection{Item: q, Reason: ReasonRemediation, Tier: target}, true
		}
		return Selection{Item: s.pick(remedial), Reason: ReasonRemediation}, true
	}

	if q, ok := s.pickTier(pool, target); ok {
		return Selection{Item: q, Reason: ReasonProgressive, Tier: target}, true
	}

	return Selection{Item: s.pick(pool), Reason: ReasonFallback}, true
}

// TargetTier maps recent accuracy to the difficulty tier to present next.
func TargetTier(recentAccuracy float64) model.Tier {
	switch {
	case recentAccuracy >= 0.8:
		return model.TierHard
	case recentAccuracy >= 0.6:
		return model.TierMedium
	default:
		return model.TierEasy
	}
}

func (s *Selector) pickTier(qs []model.Question, tier model.Tier) (model.Question, bool) {
	var atTier []model.Question
	for _, q := range qs {
		if q.Tier() == tier {
			atTier = append(atTier, q)
		}
	}
	if len(atTier) == 0 {
		return model.Question{}, false
	}
	return s.pick(atTier), true
}

func (s *Selector) pick(qs []model.Question) model.Question {
	return qs[s.rng.IntN(len(qs))]
}
