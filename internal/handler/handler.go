package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pavelanni/tutor/internal/bank"
	"github.com/pavelanni/tutor/internal/engine"
	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/selector"
)

// Grader decides whether a free-text response answers a question.
type Grader interface {
	Grade(ctx context.Context, q model.Question, response string) (llm.Verdict, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	bank     *bank.Catalog
	registry *engine.Registry
	grader   Grader
	limiter  *RateLimiter
	now      func() time.Time
}

// New creates a new Handler. grader may be nil, in which case free-text
// answers are rejected.
func New(b *bank.Catalog, reg *engine.Registry, g Grader, cfg model.ServeConfig) *Handler {
	return &Handler{
		bank:     b,
		registry: reg,
		grader:   g,
		limiter:  NewRateLimiter(cfg.AnswersPerSecond, cfg.AnswerBurst),
		now:      time.Now,
	}
}

// PruneLimiters forgets the answer rate limits of learners idle for idle.
func (h *Handler) PruneLimiters(idle time.Duration) int {
	return h.limiter.Prune(idle)
}

// Router builds the chi router with logging, panic recovery and
// localization, mounted under basePath when it is set.
func Router(h *Handler, basePath, lang string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	basePath = strings.TrimRight(basePath, "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/topics", h.handleTopics)
	r.Get("/questions", h.handleQuestions)
	r.Route("/learners/{learnerID}", func(r chi.Router) {
		r.Post("/answers", h.handleAnswer)
		r.Get("/next", h.handleNext)
		r.Get("/analytics", h.handleAnalytics)
		r.Get("/recommendations", h.handleRecommendations)
		r.Get("/reviews/due", h.handleDueReviews)
		r.Post("/save", h.handleSave)
		r.Post("/reset", h.handleReset)
	})
}

// publicQuestion is a question as shown to learners, without answers.
type publicQuestion struct {
	ID         int64            `json:"id"`
	Topic      string           `json:"topic"`
	Difficulty model.Difficulty `json:"difficulty"`
	Tier       model.Tier       `json:"tier"`
	Text       string           `json:"text"`
	Options    []string         `json:"options,omitempty"`
}

func toPublic(q model.Question) publicQuestion {
	return publicQuestion{
		ID:         q.ID,
		Topic:      q.Topic,
		Difficulty: q.Difficulty,
		Tier:       q.Tier(),
		Text:       q.Text,
		Options:    q.Options,
	}
}

type topicSummary struct {
	Name      string `json:"name"`
	Questions int    `json:"questions"`
	Summary   string `json:"summary"`
}

type answerRequest struct {
	ItemID    int64   `json:"item_id"`
	Option    *int    `json:"option,omitempty"`
	Response  string  `json:"response,omitempty"`
	TimeSpent float64 `json:"time_spent"`
}

type answerResponse struct {
	Correct  bool                   `json:"correct"`
	Feedback string                 `json:"feedback,omitempty"`
	Topic    model.TopicPerformance `json:"topic"`
	Review   model.ReviewRecord     `json:"review"`
}

type nextResponse struct {
	Item       publicQuestion  `json:"item"`
	Reason     selector.Reason `json:"reason"`
	TargetTier model.Tier      `json:"target_tier,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeEngineError maps engine errors to status codes.
func writeEngineError(w http.ResponseWriter, learner string, err error) {
	if errors.Is(err, model.ErrUnknownItem) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	slog.Error("learner request failed", "learner", learner, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"questions": h.bank.Len(),
	})
}

func (h *Handler) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics := h.bank.Topics()
	out := make([]topicSummary, 0, len(topics))
	for _, t := range topics {
		n := len(h.bank.ByTopic(t))
		out = append(out, topicSummary{
			Name:      t,
			Questions: n,
			Summary:   appI18n.Tp(r.Context(), "QuestionsAvailable", n),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	qs := h.bank.All()
	if topic := r.URL.Query().Get("topic"); topic != "" {
		qs = h.bank.ByTopic(topic)
	}
	out := make([]publicQuestion, 0, len(qs))
	for _, q := range qs {
		out = append(out, toPublic(q))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	learner := chi.URLParam(r, "learnerID")
	if !h.limiter.Allow(learner) {
		writeError(w, http.StatusTooManyRequests, "too many answers, slow down")
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TimeSpent < 0 || req.TimeSpent > model.MaxTimeSpent {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("time_spent must be between 0 and %d seconds", model.MaxTimeSpent))
		return
	}
	q, ok := h.bank.GetByID(req.ItemID)
	if !ok {
		writeError(w, http.StatusNotFound, (&model.UnknownItemError{ItemID: req.ItemID}).Error())
		return
	}

	answer := model.GradedAnswer{
		ItemID:     q.ID,
		TimeSpent:  req.TimeSpent,
		AnsweredAt: h.now().UTC(),
	}
	var feedback string
	if q.FreeText() {
		if strings.TrimSpace(req.Response) == "" {
			writeError(w, http.StatusBadRequest, "response is required for free-text questions")
			return
		}
		if h.grader == nil {
			writeError(w, http.StatusServiceUnavailable, "free-text grading is not configured")
			return
		}
		verdict, err := h.grader.Grade(r.Context(), q, req.Response)
		if err != nil {
			slog.Error("grading failed", "learner", learner, "item_id", q.ID, "error", err)
			writeError(w, http.StatusBadGateway, "grading failed")
			return
		}
		answer.Correct = verdict.Correct
		feedback = verdict.Feedback
	} else {
		if req.Option == nil || *req.Option < 0 || *req.Option >= len(q.Options) {
			writeError(w, http.StatusBadRequest, "option must be a valid option index")
			return
		}
		answer.Option = *req.Option
		answer.Correct = *req.Option == q.CorrectOption
	}

	var resp answerResponse
	err := h.registry.Do(r.Context(), learner, func(e *engine.Engine) error {
		if err := e.RecordAnswer(answer); err != nil {
			return err
		}
		resp.Topic, _ = e.TopicPerformance(q.Topic)
		resp.Review, _ = e.Review(q.ID)
		return nil
	})
	if err != nil {
		writeEngineError(w, learner, err)
		return
	}
	resp.Correct = answer.Correct
	resp.Feedback = feedback
	slog.Debug("answer recorded", "learner", learner, "item_id", q.ID, "correct", answer.Correct)
	writeJSON(w, http.StatusOK, resp)
}

func parseExclude(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	learner := chi.URLParam(r, "learnerID")
	exclude, err := parseExclude(r.URL.Query().Get("exclude"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "exclude must be a comma-separated list of item ids")
		return
	}

	var (
		sel selector.Selection
		ok  bool
	)
	err = h.registry.Do(r.Context(), learner, func(e *engine.Engine) error {
		var err error
		sel, ok, err = e.NextItem(exclude, h.now())
		return err
	})
	if err != nil {
		writeEngineError(w, learner, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	slog.Debug("next item", "learner", learner, "item_id", sel.Item.ID, "reason", sel.Reason)
	writeJSON(w, http.StatusOK, nextResponse{Item: toPublic(sel.Item), Reason: sel.Reason, TargetTier: sel.Tier})
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	learner := chi.URLParam(r, "learnerID")
	var a model.Analytics
	err := h.registry.Do(r.Context(), learner, func(e *engine.Engine) error {
		a = e.Analytics(h.now())
		return nil
	})
	if err != nil {
		writeEngineError(w, learner, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	learner := chi.URLParam(r, "learnerID")
	var recs []model.Recommendation
	err := h.registry.Do(r.Context(), learner, func(e *engine.Engine) error {
		recs = e.Recommendations(r.Context(), h.now())
		return nil
	})
	if err != nil {
		writeEngineError(w, learner, err)
		return
	}
	if recs == nil {
		recs = []model.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) handleDueReviews(w http.ResponseWriter, r *http.Request) {
	learner := chi.URLParam(r, "learnerID")
	var due []model.ReviewRecord
	err := h.registry.Do(r.Context(), learner, func(e *engine.Engine) error {
		due = e.DueReviews(h.now())
		return nil
	})
	if err != nil {
		writeEngineError(w, learner, err)
		return
	}
	if due == nil {
		due = []model.ReviewRecord{}
	}
	writeJSON(w, http.StatusOK, due)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	learner := chi.URLParam(r, "learnerID")
	if err := h.registry.Save(r.Context(), learner); err != nil {
		writeEngineError(w, learner, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	learner := chi.URLParam(r, "learnerID")
	err := h.registry.Do(r.Context(), learner, func(e *engine.Engine) error {
		e.Reset()
		return nil
	})
	if err != nil {
		writeEngineError(w, learner, err)
		return
	}
	slog.Info("learner reset", "learner", learner)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
