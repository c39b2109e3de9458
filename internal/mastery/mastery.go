// Package mastery estimates per-topic mastery from graded answers.
package mastery

import (
	"math"
	"sort"

	"github.com/pavelanni/tutor/internal/model"
)

// Tier weights of the mastery score, indexed by tier-1.
var tierWeights = [model.NumTiers]float64{0.3, 0.4, 0.3}

const (
	volumeBonusPerAnswer = 2
	maxVolumeBonus       = 20

	// ReviewThreshold is the mastery below which a topic needs review.
	ReviewThreshold = 70
	// FocusThreshold is the mastery below which a topic is recommended for focus.
	FocusThreshold = 80
)

// Tracker owns one TopicPerformance per topic. It is not safe for concurrent use.
type Tracker struct {
	topics map[string]*model.TopicPerformance
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{topics: make(map[string]*model.TopicPerformance)}
}

// Topic returns the record for a topic, creating it in the cold-start state
// (mastery 0, recommended for focus) when the topic has not been seen.
func (t *Tracker) Topic(topic string) *model.TopicPerformance {
	p, ok := t.topics[topic]
	if !ok {
		p = &model.TopicPerformance{
			Topic:            topic,
			RecommendedFocus: true,
		}
		t.topics[topic] = p
	}
	return p
}

// Lookup returns a copy of the topic's record without creating it.
func (t *Tracker) Lookup(topic string) (model.TopicPerformance, bool) {
	p, ok := t.topics[topic]
	if !ok {
		return model.TopicPerformance{}, false
	}
	return *p, true
}

// RecordAnswer folds one graded answer for question q into its topic record
// and returns the updated record.
func (t *Tracker) RecordAnswer(a model.GradedAnswer, q model.Question) model.TopicPerformance {
	p := t.Topic(q.Topic)

	p.TotalQuestions++
	if a.Correct {
		p.CorrectAnswers++
	}
	n := float64(p.TotalQuestions)
	p.AverageTime = (p.AverageTime*(n-1) + model.ClampTimeSpent(a.TimeSpent)) / n

	idx := int(q.Tier()) - 1
	p.TierAttempts[idx]++
	if a.Correct {
		p.TierCorrect[idx]++
	}
	p.TierAccuracy[idx] = float64(p.TierCorrect[idx]) / float64(p.TierAttempts[idx])

	at := a.AnsweredAt
	p.LastAttempt = &at

	recompute(p)
	return *p
}

// Score computes the mastery level from tier accuracies and answer volume.
// Accuracies are fractions; the weighted sum is scaled to percentage points.
func Score(tierAccuracy [model.NumTiers]float64, total int) float64 {
	var weighted float64
	for i, acc := range tierAccuracy {
		weighted += tierWeights[i] * clamp(acc, 0, 1)
	}
	bonus := math.Min(float64(max(total, 0)*volumeBonusPerAnswer), maxVolumeBonus)
	return clamp(weighted*100+bonus, 0, 100)
}

func recompute(p *model.TopicPerformance) {
	p.MasteryLevel = Score(p.TierAccuracy, p.TotalQuestions)
	p.NeedsReview = p.MasteryLevel < ReviewThreshold
	p.RecommendedFocus = p.MasteryLevel < FocusThreshold
}

// All returns copies of every record ordered by topic name.
func (t *Tracker) All() []model.TopicPerformance {
	out := make([]model.TopicPerformance, 0, len(t.topics))
	for _, p := range t.topics {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// FocusTopics returns up to limit topics flagged for focus, weakest first.
// Ties are broken by topic name.
func (t *Tracker) FocusTopics(limit int) []model.TopicPerformance {
	var focus []model.TopicPerformance
	for _, p := range t.All() {
		if p.RecommendedFocus {
			focus = append(focus, p)
		}
	}
	sortByMastery(focus, true)
	return head(focus, limit)
}

// Weakest returns up to n attempted topics with the lowest mastery.
func (t *Tracker) Weakest(n int) []model.TopicPerformance {
	attempted := t.attempted()
	sortByMastery(attempted, true)
	return head(attempted, n)
}

// Strongest returns up to n attempted topics with the highest mastery.
func (t *Tracker) Strongest(n int) []model.TopicPerformance {
	attempted := t.attempted()
	sortByMastery(attempted, false)
	return head(attempted, n)
}

// Restore replaces the tracker's records. Out-of-range values from a damaged
// snapshot are clamped and derived fields are recomputed.
func (t *Tracker) Restore(records map[string]model.TopicPerformance) {
	t.topics = make(map[string]*model.TopicPerformance, len(records))
	for name, rec := range records {
		rec.Topic = name
		sanitize(&rec)
		t.topics[name] = &rec
	}
}

// Snapshot returns copies of all records keyed by topic.
func (t *Tracker) Snapshot() map[string]model.TopicPerformance {
	out := make(map[string]model.TopicPerformance, len(t.topics))
	for name, p := range t.topics {
		out[name] = *p
	}
	return out
}

// Reset drops every record.
func (t *Tracker) Reset() {
	t.topics = make(map[string]*model.TopicPerformance)
}

func sanitize(p *model.TopicPerformance) {
	p.TotalQuestions = max(p.TotalQuestions, 0)
	p.CorrectAnswers = min(max(p.CorrectAnswers, 0), p.TotalQuestions)
	if math.IsNaN(p.AverageTime) || p.AverageTime < 0 {
		p.AverageTime = 0
	}
	for i := range p.TierAttempts {
		p.TierAttempts[i] = max(p.TierAttempts[i], 0)
		p.TierCorrect[i] = min(max(p.TierCorrect[i], 0), p.TierAttempts[i])
		if p.TierAttempts[i] > 0 {
			p.TierAccuracy[i] = float64(p.TierCorrect[i]) / float64(p.TierAttempts[i])
		} else {
			p.TierAccuracy[i] = clamp(p.TierAccuracy[i], 0, 1)
		}
	}
	if p.TotalQuestions == 0 {
		p.MasteryLevel = 0
		p.NeedsReview = false
		p.RecommendedFocus = true
		return
	}
	recompute(p)
}

func (t *Tracker) attempted() []model.TopicPerformance {
	var out []model.TopicPerformance
	for _, p := range t.All() {
		if p.TotalQuestions > 0 {
			out = append(out, p)
		}
	}
	return out
}

func sortByMastery(ps []model.TopicPerformance, ascending bool) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].MasteryLevel != ps[j].MasteryLevel {
			if ascending {
				return ps[i].MasteryLevel < ps[j].MasteryLevel
			}
			return ps[i].MasteryLevel > ps[j].MasteryLevel
		}
		return ps[i].Topic < ps[j].Topic
	})
}

func head(ps []model.TopicPerformance, n int) []model.TopicPerformance {
	if n >= 0 && len(ps) > n {
		return ps[:n]
	}
	return ps
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
