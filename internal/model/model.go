package model

import (
	"math"
	"time"
)

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Tier is the numeric form of a difficulty: 1 easy, 2 medium, 3 hard.
type Tier int

const (
	TierEasy   Tier = 1
	TierMedium Tier = 2
	TierHard   Tier = 3
)

// NumTiers is the number of difficulty tiers.
const NumTiers = 3

// Tier maps a difficulty to its tier. Unknown difficulties are treated as medium.
func (d Difficulty) Tier() Tier {
	switch d {
	case DifficultyEasy:
		return TierEasy
	case DifficultyHard:
		return TierHard
	default:
		return TierMedium
	}
}

// Valid reports whether d is one of the known difficulties.
func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Question is a single item of the question bank.
type Question struct {
	ID            int64      `json:"id"`
	Topic         string     `json:"topic"`
	Difficulty    Difficulty `json:"difficulty"`
	Text          string     `json:"text"`
	Options       []string   `json:"options,omitempty"`
	CorrectOption int        `json:"correct_option"`
	Rubric        string     `json:"rubric,omitempty"`
	ModelAnswer   string     `json:"model_answer,omitempty"`
}

// Tier returns the question's difficulty tier.
func (q Question) Tier() Tier {
	return q.Difficulty.Tier()
}

// FreeText reports whether the question has no options and must be graded from a response.
func (q Question) FreeText() bool {
	return len(q.Options) == 0
}

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	Topic         string     `json:"topic"`
	Difficulty    Difficulty `json:"difficulty"`
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectOption int        `json:"correct_option"`
	Rubric        string     `json:"rubric"`
	ModelAnswer   string     `json:"model_answer"`
}

// MaxTimeSpent is the largest time, in seconds, counted for one answer.
const MaxTimeSpent = 24 * 60 * 60

// ClampTimeSpent bounds a time sample to [0, MaxTimeSpent]. NaN counts as 0.
func ClampTimeSpent(seconds float64) float64 {
	if math.IsNaN(seconds) || seconds < 0 {
		return 0
	}
	return math.Min(seconds, MaxTimeSpent)
}

// GradedAnswer is an immutable record of one response.
type GradedAnswer struct {
	ItemID     int64     `json:"item_id"`
	Option     int       `json:"option"`
	Correct    bool      `json:"correct"`
	TimeSpent  float64   `json:"time_spent"` // seconds
	AnsweredAt time.Time `json:"answered_at"`
}

// TopicPerformance aggregates a learner's results for one topic.
type TopicPerformance struct {
	Topic            string            `json:"topic"`
	TotalQuestions   int               `json:"total_questions"`
	CorrectAnswers   int               `json:"correct_answers"`
	AverageTime      float64           `json:"average_time"`
	TierAccuracy     [NumTiers]float64 `json:"tier_accuracy"` // index 0 is tier 1
	TierAttempts     [NumTiers]int     `json:"tier_attempts"`
	TierCorrect      [NumTiers]int     `json:"tier_correct"`
	MasteryLevel     float64           `json:"mastery_level"`
	LastAttempt      *time.Time        `json:"last_attempt,omitempty"`
	NeedsReview      bool              `json:"needs_review"`
	RecommendedFocus bool              `json:"recommended_focus"`
}

// ReviewRecord is the spaced-repetition state of one item.
type ReviewRecord struct {
	ItemID       int64     `json:"item_id"`
	Topic        string    `json:"topic"`
	NextReview   time.Time `json:"next_review"`
	Repetitions  int       `json:"repetitions"`
	EaseFactor   float64   `json:"ease_factor"`
	IntervalDays int       `json:"interval_days"`
	LastReviewed time.Time `json:"last_reviewed"`
}

// Due reports whether the record is due at now.
func (r ReviewRecord) Due(now time.Time) bool {
	return !r.NextReview.After(now)
}

// RecommendationKind classifies a recommendation.
type RecommendationKind string

const (
	KindFocusTopic           RecommendationKind = "focus-topic"
	KindReviewSession        RecommendationKind = "review-session"
	KindDifficultyAdjustment RecommendationKind = "difficulty-adjustment"
	KindStudyBreak           RecommendationKind = "study-break"
)

// Priority orders recommendations.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns a sortable weight: high > medium > low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Recommendation is a generated study suggestion. It is never persisted.
type Recommendation struct {
	ID               string             `json:"id"`
	Kind             RecommendationKind `json:"kind"`
	Priority         Priority           `json:"priority"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	Action           string             `json:"action"`
	Topic            string             `json:"topic,omitempty"`
	EstimatedMinutes int                `json:"estimated_minutes"`
	Reasoning        string             `json:"reasoning"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Analytics summarizes a learner's state.
type Analytics struct {
	TotalQuestions   int                `json:"total_questions"`
	OverallAccuracy  float64            `json:"overall_accuracy"`
	RecentAccuracy   float64            `json:"recent_accuracy"`
	AverageTime      float64            `json:"average_time"`
	TotalTime        float64            `json:"total_time"`
	TopicPerformance []TopicPerformance `json:"topic_performance"`
	WeakestTopics    []TopicPerformance `json:"weakest_topics"`
	StrongestTopics  []TopicPerformance `json:"strongest_topics"`
	ReviewItemsDue   int                `json:"review_items_due"`
}

// ServeConfig holds runtime parameters for the serve command set via CLI flags.
type ServeConfig struct {
	Addr             string
	BasePath         string        // URL prefix for sub-path deployments (e.g. "/ru")
	Lang             string        // default UI language for recommendation text
	AutosaveInterval time.Duration // 0 disables periodic saves
	StoreTimeout     time.Duration // per-call timeout for snapshot load/save
	IdleTimeout      time.Duration // saved learners idle this long are dropped from memory
	AnswersPerSecond float64       // per-learner answer rate; 0 disables limiting
	AnswerBurst      int
}
