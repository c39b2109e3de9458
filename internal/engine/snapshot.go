package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/tutor/internal/model"
)

const snapshotVersion = 1

// snapshot is the persisted form of a learner's state. time.Time fields are
// encoded as RFC 3339 strings.
type snapshot struct {
	Version int                               `json:"version"`
	Learner string                            `json:"learner"`
	SavedAt time.Time                         `json:"saved_at"`
	Answers []model.GradedAnswer              `json:"answers"`
	Topics  map[string]model.TopicPerformance `json:"topics"`
	Reviews []model.ReviewRecord              `json:"reviews"`
}

// rawSnapshot distinguishes absent fields from empty ones while decoding.
type rawSnapshot struct {
	Version *int                               `json:"version"`
	Learner *string                            `json:"learner"`
	SavedAt *time.Time                         `json:"saved_at"`
	Answers *[]model.GradedAnswer              `json:"answers"`
	Topics  *map[string]model.TopicPerformance `json:"topics"`
	Reviews *[]model.ReviewRecord              `json:"reviews"`
}

func encodeSnapshot(s snapshot) ([]byte, error) {
	if s.Answers == nil {
		s.Answers = []model.GradedAnswer{}
	}
	if s.Topics == nil {
		s.Topics = map[string]model.TopicPerformance{}
	}
	if s.Reviews == nil {
		s.Reviews = []model.ReviewRecord{}
	}
	return json.Marshal(s)
}

// decodeSnapshot parses and validates a stored snapshot for learner.
// Every failure is a *model.CorruptSnapshotError.
func decodeSnapshot(data []byte, learner string) (snapshot, error) {
	corrupt := func(reason string, err error) (snapshot, error) {
		return snapshot{}, &model.CorruptSnapshotError{Learner: learner, Reason: reason, Err: err}
	}

	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return corrupt("invalid JSON", err)
	}

	switch {
	case raw.Version == nil:
		return corrupt("missing version", nil)
	case *raw.Version != snapshotVersion:
		return corrupt(fmt.Sprintf("unsupported version %d", *raw.Version), nil)
	case raw.Learner == nil:
		return corrupt("missing learner", nil)
	case *raw.Learner != learner:
		return corrupt(fmt.Sprintf("snapshot belongs to learner %q", *raw.Learner), nil)
	case raw.Answers == nil:
		return corrupt("missing answer history", nil)
	case raw.Topics == nil:
		return corrupt("missing topic performance", nil)
	case raw.Reviews == nil:
		return corrupt("missing review records", nil)
	}

	s := snapshot{
		Version: *raw.Version,
		Learner: *raw.Learner,
		Answers: *raw.Answers,
		Topics:  *raw.Topics,
		Reviews: *raw.Reviews,
	}
	if raw.SavedAt != nil {
		s.SavedAt = *raw.SavedAt
	}

	for i, a := range s.Answers {
		if a.AnsweredAt.IsZero() {
			return corrupt(fmt.Sprintf("answer %d has no timestamp", i), nil)
		}
	}
	seen := make(map[int64]bool, len(s.Reviews))
	for _, r := range s.Reviews {
		if seen[r.ItemID] {
			return corrupt(fmt.Sprintf("duplicate review record for item %d", r.ItemID), nil)
		}
		seen[r.ItemID] = true
		if r.NextReview.IsZero() {
			return corrupt(fmt.Sprintf("review record for item %d has no due date", r.ItemID), nil)
		}
	}
	if s.Topics == nil {
		s.Topics = map[string]model.TopicPerformance{}
	}
	return s, nil
}
