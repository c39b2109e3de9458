// Package recommend turns a learner's mastery, review and answer state into
// prioritized study suggestions.
package recommend

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/tutor/internal/history"
	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/model"
)

const (
	maxFocusTopics = 2

	minutesPerDueItem   = 2
	focusMinutes        = 15
	adjustmentMinutes   = 10
	breakMinutes        = 10
	easierBelowAccuracy = 0.5
	harderAboveAccuracy = 0.9

	breakWindow    = 2 * time.Hour
	breakThreshold = 30
)

// MasteryView exposes the weak topics of a learner.
type MasteryView interface {
	FocusTopics(limit int) []model.TopicPerformance
}

// ReviewView exposes items due for review.
type ReviewView interface {
	Due(now time.Time) []model.ReviewRecord
}

// HistoryView exposes the answer log queries used for recommendations.
type HistoryView interface {
	Len() int
	RecentAccuracy(n int) float64
	CountBetween(from, to time.Time) int
}

// Engine generates recommendations. It holds no state of its own.
type Engine struct {
	mastery MasteryView
	reviews ReviewView
	history HistoryView
	newID   func() string
}

// New creates an Engine that identifies recommendations with random UUIDs.
func New(m MasteryView, r ReviewView, h HistoryView) *Engine {
	return &Engine{
		mastery: m,
		reviews: r,
		history: h,
		newID:   func() string { return uuid.NewString() },
	}
}

// WithIDGenerator replaces the id generator, mainly for tests.
func (e *Engine) WithIDGenerator(fn func() string) *Engine {
	e.newID = fn
	return e
}

// Generate returns recommendations ordered by priority, high first.
// Recommendations of equal priority keep their generation order.
// Text is localized with the localizer stored in ctx.
func (e *Engine) Generate(ctx context.Context, now time.Time) []model.Recommendation {
	var recs []model.Recommendation
	add := func(r model.Recommendation) {
		r.ID = e.newID()
		r.CreatedAt = now
		recs = append(recs, r)
	}

	for i, p := range e.mastery.FocusTopics(maxFocusTopics) {
		priority := model.PriorityMedium
		if i == 0 {
			priority = model.PriorityHigh
		}
		data := map[string]any{
			"Topic":   p.Topic,
			"Mastery": int(math.Round(p.MasteryLevel)),
			"Correct": p.CorrectAnswers,
			"Total":   p.TotalQuestions,
		}
		add(model.Recommendation{
			Kind:             model.KindFocusTopic,
			Priority:         priority,
			Title:            appI18n.Td(ctx, "RecFocusTitle", data),
			Description:      appI18n.Td(ctx, "RecFocusDescription", data),
			Action:           appI18n.Td(ctx, "RecFocusAction", data),
			Topic:            p.Topic,
			EstimatedMinutes: focusMinutes,
			Reasoning:        appI18n.Td(ctx, "RecFocusReasoning", data),
		})
	}

	if due := len(e.reviews.Due(now)); due > 0 {
		add(model.Recommendation{
			Kind:             model.KindReviewSession,
			Priority:         model.PriorityHigh,
			Title:            appI18n.T(ctx, "RecReviewTitle"),
			Description:      appI18n.Tp(ctx, "RecReviewDescription", due),
			Action:           appI18n.T(ctx, "RecReviewAction"),
			EstimatedMinutes: minutesPerDueItem * due,
			Reasoning:        appI18n.T(ctx, "RecReviewReasoning"),
		})
	}

	if e.history.Len() > 0 {
		acc := e.history.RecentAccuracy(history.RecentWindow)
		data := map[string]any{
			"Accuracy": int(math.Round(acc * 100)),
			"Window":   history.RecentWindow,
		}
		switch {
		case acc < easierBelowAccuracy:
			add(model.Recommendation{
				Kind:             model.KindDifficultyAdjustment,
				Priority:         model.PriorityMedium,
				Title:            appI18n.T(ctx, "RecEasierTitle"),
				Description:      appI18n.Td(ctx, "RecEasierDescription", data),
				Action:           appI18n.T(ctx, "RecEasierAction"),
				EstimatedMinutes: adjustmentMinutes,
				Reasoning:        appI18n.Td(ctx, "RecEasierReasoning", data),
			})
		case acc > harderAboveAccuracy:
			add(model.Recommendation{
				Kind:             model.KindDifficultyAdjustment,
				Priority:         model.PriorityLow,
				Title:            appI18n.T(ctx, "RecHarderTitle"),
				Description:      appI18n.Td(ctx, "RecHarderDescription", data),
				Action:           appI18n.T(ctx, "RecHarderAction"),
				EstimatedMinutes: adjustmentMinutes,
				Reasoning:        appI18n.Td(ctx, "RecHarderReasoning", data),
			})
		}
	}

	if n := e.history.CountBetween(now.Add(-breakWindow), now); n > breakThreshold {
		add(model.Recommendation{
			Kind:             model.KindStudyBreak,
			Priority:         model.PriorityMedium,
			Title:            appI18n.T(ctx, "RecBreakTitle"),
			Description:      appI18n.Td(ctx, "RecBreakDescription", map[string]any{"Count": n}),
			Action:           appI18n.T(ctx, "RecBreakAction"),
			EstimatedMinutes: breakMinutes,
			Reasoning:        appI18n.T(ctx, "RecBreakReasoning"),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Rank() > recs[j].Priority.Rank()
	})
	return recs
}
