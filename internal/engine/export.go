package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/tutor/internal/model"
)

// Export loads every stored learner into a fresh engine and collects their
// analytics, reviews and history. A learner whose snapshot is corrupt is
// exported empty with a warning.
func Export(ctx context.Context, b Bank, store SnapshotStore, now time.Time, opts ...Option) (model.LearnerExport, error) {
	learners, err := store.ListLearners(ctx)
	if err != nil {
		return model.LearnerExport{}, fmt.Errorf("list learners: %w", err)
	}

	out := model.LearnerExport{
		GeneratedAt: now.UTC(),
		NumItems:    len(b.All()),
		Results:     make([]model.LearnerResult, 0, len(learners)),
	}
	for _, learner := range learners {
		e := New(b, store, learner, opts...)
		res := model.LearnerResult{Learner: learner}
		if err := e.LoadState(ctx); err != nil {
			if !errors.Is(err, model.ErrCorruptSnapshot) {
				return model.LearnerExport{}, err
			}
			slog.Warn("exporting empty state for corrupt snapshot", "learner", learner, "error", err)
			res.Warning = err.Error()
		}
		res.Analytics = e.Analytics(now)
		res.Reviews = e.Reviews()
		res.AnswerHistory = e.History()
		out.Results = append(out.Results, res)
	}
	return out, nil
}
