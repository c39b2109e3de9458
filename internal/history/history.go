// Package history keeps a learner's append-only log of graded answers.
package history

import (
	"time"

	"github.com/pavelanni/tutor/internal/model"
)

const (
	// RecentWindow is the number of answers used for recent accuracy.
	RecentWindow = 10
	// DefaultRecentAccuracy is assumed when no answers exist yet.
	DefaultRecentAccuracy = 0.7
)

// Log is an append-only answer history. It is not safe for concurrent use.
type Log struct {
	answers []model.GradedAnswer
}

// New returns a log seeded with previously persisted answers.
func New(answers []model.GradedAnswer) *Log {
	return &Log{answers: append([]model.GradedAnswer(nil), answers...)}
}

// Append adds an answer to the end of the log.
func (l *Log) Append(a model.GradedAnswer) {
	l.answers = append(l.answers, a)
}

// Len returns the number of recorded answers.
func (l *Log) Len() int {
	return len(l.answers)
}

// Answers returns a copy of the full history in submission order.
func (l *Log) Answers() []model.GradedAnswer {
	return append([]model.GradedAnswer(nil), l.answers...)
}

// Recent returns up to the last n answers in submission order.
func (l *Log) Recent(n int) []model.GradedAnswer {
	if n <= 0 {
		return nil
	}
	start := len(l.answers) - n
	if start < 0 {
		start = 0
	}
	return append([]model.GradedAnswer(nil), l.answers[start:]...)
}

// RecentAccuracy returns the fraction of correct answers among the last n,
// or DefaultRecentAccuracy when the log is empty.
func (l *Log) RecentAccuracy(n int) float64 {
	recent := l.Recent(n)
	if len(recent) == 0 {
		return DefaultRecentAccuracy
	}
	return accuracy(recent)
}

// CountBetween counts answers with from <= AnsweredAt <= to.
// Timestamps are caller-supplied and may be out of order, so the whole log is scanned.
func (l *Log) CountBetween(from, to time.Time) int {
	n := 0
	for i := len(l.answers) - 1; i >= 0; i-- {
		at := l.answers[i].AnsweredAt
		if !at.Before(from) && !at.After(to) {
			n++
		}
	}
	return n
}

// Totals returns the number of correct answers and the summed time spent.
func (l *Log) Totals() (correct int, totalTime float64) {
	for _, a := range l.answers {
		if a.Correct {
			correct++
		}
		totalTime += model.ClampTimeSpent(a.TimeSpent)
	}
	return correct, totalTime
}

// Reset drops every answer.
func (l *Log) Reset() {
	l.answers = nil
}

func accuracy(answers []model.GradedAnswer) float64 {
	if len(answers) == 0 {
		return 0
	}
	correct := 0
	for _, a := range answers {
		if a.Correct {
			correct++
		}
	}
	return float64(correct) / float64(len(answers))
}
