package model

import "time"

// LearnerExport is the top-level JSON structure written by the export command.
type LearnerExport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	NumItems    int             `json:"num_items"`
	Results     []LearnerResult `json:"results"`
}

// LearnerResult holds one learner's persisted state for export.
type LearnerResult struct {
	Learner       string         `json:"learner"`
	Analytics     Analytics      `json:"analytics"`
	Reviews       []ReviewRecord `json:"reviews"`
	AnswerHistory []GradedAnswer `json:"answer_history"`
	// Warning is set when the stored snapshot was corrupt and an empty state was exported.
	Warning string `json:"warning,omitempty"`
}
