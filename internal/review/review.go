// Package review schedules spaced-repetition reviews of individual items
// with an SM-2 derived easiness-factor algorithm.
package review

import (
	"math"
	"sort"
	"time"

	"github.com/pavelanni/tutor/internal/model"
)

const (
	// MinEaseFactor is the floor of the easiness factor.
	MinEaseFactor = 1.3
	// InitialEaseCorrect is the easiness of an item first answered correctly.
	InitialEaseCorrect = 2.6

	easeBonus   = 0.1
	easePenalty = 0.8

	secondInterval = 6
	day            = 24 * time.Hour

	// MaxIntervalDays caps the gap between reviews at roughly a century.
	MaxIntervalDays = 36500
)

// Scheduler owns one ReviewRecord per answered item. It is not safe for concurrent use.
type Scheduler struct {
	records map[int64]*model.ReviewRecord
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{records: make(map[int64]*model.ReviewRecord)}
}

// RecordAnswer creates or updates the item's record and returns a copy of it.
// The answer's timestamp is the review time.
func (s *Scheduler) RecordAnswer(a model.GradedAnswer, topic string) model.ReviewRecord {
	now := a.AnsweredAt
	r, ok := s.records[a.ItemID]
	if !ok {
		r = &model.ReviewRecord{
			ItemID:      a.ItemID,
			Topic:       topic,
			Repetitions: 1,
			EaseFactor:  MinEaseFactor,
		}
		if a.Correct {
			r.EaseFactor = InitialEaseCorrect
			r.IntervalDays = 1
		}
		s.records[a.ItemID] = r
	} else {
		r.Topic = topic
		r.Repetitions++
		if a.Correct {
			switch r.Repetitions {
			case 1:
				r.IntervalDays = 1
			case 2:
				r.IntervalDays = secondInterval
			default:
				prev := max(r.IntervalDays, 1)
				r.IntervalDays = int(math.Min(math.Round(float64(prev)*r.EaseFactor), MaxIntervalDays))
			}
			r.EaseFactor = math.Max(r.EaseFactor+easeBonus, MinEaseFactor)
		} else {
			r.Repetitions = 1
			r.IntervalDays = 1
			r.EaseFactor = math.Max(r.EaseFactor-easePenalty, MinEaseFactor)
		}
	}

	r.LastReviewed = now
	if a.Correct {
		r.NextReview = now.Add(time.Duration(r.IntervalDays) * day)
	} else {
		// A missed item is always shown again the next day.
		r.NextReview = now.Add(day)
	}
	return *r
}

// Due returns the records whose next review is at or before now,
// ordered by due date and then item id.
func (s *Scheduler) Due(now time.Time) []model.ReviewRecord {
	var due []model.ReviewRecord
	for _, r := range s.records {
		if r.Due(now) {
			due = append(due, *r)
		}
	}
	sortByDue(due)
	return due
}

// Record returns a copy of the item's record.
func (s *Scheduler) Record(itemID int64) (model.ReviewRecord, bool) {
	r, ok := s.records[itemID]
	if !ok {
		return model.ReviewRecord{}, false
	}
	return *r, true
}

// All returns copies of every record ordered by item id.
func (s *Scheduler) All() []model.ReviewRecord {
	out := make([]model.ReviewRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// Len returns the number of scheduled items.
func (s *Scheduler) Len() int {
	return len(s.records)
}

// Restore replaces the scheduler's records. Values a damaged snapshot could
// carry are clamped: the easiness factor is floored, repetitions below 1
// and negative intervals become 1, and intervals are capped at MaxIntervalDays.
// A later record for the same item wins.
func (s *Scheduler) Restore(records []model.ReviewRecord) {
	s.records = make(map[int64]*model.ReviewRecord, len(records))
	for _, rec := range records {
		rec.Repetitions = max(rec.Repetitions, 1)
		if rec.IntervalDays < 0 {
			rec.IntervalDays = 1
		}
		rec.IntervalDays = min(rec.IntervalDays, MaxIntervalDays)
		if math.IsNaN(rec.EaseFactor) || rec.EaseFactor < MinEaseFactor {
			rec.EaseFactor = MinEaseFactor
		}
		s.records[rec.ItemID] = &rec
	}
}

// Reset drops every record.
func (s *Scheduler) Reset() {
	s.records = make(map[int64]*model.ReviewRecord)
}

func sortByDue(rs []model.ReviewRecord) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].NextReview.Equal(rs[j].NextReview) {
			return rs[i].NextReview.Before(rs[j].NextReview)
		}
		return rs[i].ItemID < rs[j].ItemID
	})
}
