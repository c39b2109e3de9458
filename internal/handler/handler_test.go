package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/tutor/internal/bank"
	"github.com/pavelanni/tutor/internal/engine"
	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/model"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fakeGrader struct {
	verdict llm.Verdict
	err     error
	calls   int
}

func (g *fakeGrader) Grade(_ context.Context, _ model.Question, _ string) (llm.Verdict, error) {
	g.calls++
	return g.verdict, g.err
}

type testEnv struct {
	store  *engine.MemoryStore
	router http.Handler
}

func newTestEnv(t *testing.T, g Grader, cfg model.ServeConfig) *testEnv {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	b, err := bank.New([]model.Question{
		{ID: 1, Topic: "safety", Difficulty: model.DifficultyEasy, Text: "Which glove?", Options: []string{"rubber", "wool"}, CorrectOption: 0, ModelAnswer: "rubber"},
		{ID: 2, Topic: "safety", Difficulty: model.DifficultyMedium, Text: "Why ground?", Rubric: "mentions fault current"},
		{ID: 3, Topic: "wiring", Difficulty: model.DifficultyHard, Text: "Wire gauge?", Options: []string{"10", "14", "18"}, CorrectOption: 1},
	})
	if err != nil {
		t.Fatalf("bank.New: %v", err)
	}
	store := engine.NewMemoryStore()
	reg := engine.NewRegistry(b, store, time.Second,
		engine.WithRand(rand.New(rand.NewPCG(1, 2))),
		engine.WithClock(func() time.Time { return testNow }),
	)
	h := New(b, reg, g, cfg)
	h.now = func() time.Time { return testNow }
	return &testEnv{store: store, router: Router(h, cfg.BasePath, "en")}
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndTopics(t *testing.T) {
	env := newTestEnv(t, nil, model.ServeConfig{})

	rec := env.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/topics", "")
	topics := decode[[]topicSummary](t, rec)
	if len(topics) != 2 || topics[0].Name != "safety" || topics[0].Questions != 2 {
		t.Fatalf("topics = %+v", topics)
	}
	if topics[1].Summary != "1 question available." {
		t.Errorf("summary = %q", topics[1].Summary)
	}
}

func TestQuestionsHideAnswers(t *testing.T) {
	env := newTestEnv(t, nil, model.ServeConfig{})

	rec := env.do(t, http.MethodGet, "/questions?topic=safety", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, leaked := range []string{"correct_option", "model_answer", "rubric"} {
		if strings.Contains(body, leaked) {
			t.Errorf("response leaks %s: %s", leaked, body)
		}
	}
	qs := decode[[]publicQuestion](t, rec)
	if len(qs) != 2 {
		t.Errorf("got %d questions, want 2", len(qs))
	}
}

func TestAnswerMultipleChoice(t *testing.T) {
	env := newTestEnv(t, nil, model.ServeConfig{})

	rec := env.do(t, http.MethodPost, "/learners/alice/answers", `{"item_id":1,"option":0,"time_spent":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[answerResponse](t, rec)
	if !resp.Correct {
		t.Error("option 0 should be correct")
	}
	if resp.Topic.TotalQuestions != 1 || resp.Topic.Topic != "safety" {
		t.Errorf("topic = %+v", resp.Topic)
	}
	if resp.Review.IntervalDays != 1 || !resp.Review.NextReview.Equal(testNow.Add(24*time.Hour)) {
		t.Errorf("review = %+v", resp.Review)
	}
}

func TestAnswerValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"unknown item", `{"item_id":99,"option":0}`, http.StatusNotFound},
		{"missing option", `{"item_id":1}`, http.StatusBadRequest},
		{"option out of range", `{"item_id":3,"option":3}`, http.StatusBadRequest},
		{"negative time", `{"item_id":1,"option":0,"time_spent":-1}`, http.StatusBadRequest},
		{"absurd time", `{"item_id":1,"option":0,"time_spent":1e308}`, http.StatusBadRequest},
		{"empty response", `{"item_id":2,"response":"  "}`, http.StatusBadRequest},
		{"no grader", `{"item_id":2,"response":"to carry fault current"}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, model.ServeConfig{})
			rec := env.do(t, http.MethodPost, "/learners/alice/answers", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if e := decode[errorResponse](t, rec); e.Error == "" {
				t.Error("error body should carry a message")
			}
		})
	}
}

func TestAnswerFreeText(t *testing.T) {
	t.Run("graded", func(t *testing.T) {
		g := &fakeGrader{verdict: llm.Verdict{Correct: true, Feedback: "Good."}}
		env := newTestEnv(t, g, model.ServeConfig{})
		rec := env.do(t, http.MethodPost, "/learners/bob/answers", `{"item_id":2,"response":"to carry fault current"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
		}
		resp := decode[answerResponse](t, rec)
		if !resp.Correct || resp.Feedback != "Good." || g.calls != 1 {
			t.Errorf("resp = %+v, calls = %d", resp, g.calls)
		}
	})

	t.Run("grader failure records nothing", func(t *testing.T) {
		g := &fakeGrader{err: errors.New("upstream down")}
		env := newTestEnv(t, g, model.ServeConfig{})
		rec := env.do(t, http.MethodPost, "/learners/bob/answers", `{"item_id":2,"response":"x"}`)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d", rec.Code)
		}
		rec = env.do(t, http.MethodGet, "/learners/bob/analytics", "")
		if a := decode[model.Analytics](t, rec); a.TotalQuestions != 0 {
			t.Errorf("TotalQuestions = %d, want 0", a.TotalQuestions)
		}
	})
}

func TestAnswerRateLimit(t *testing.T) {
	env := newTestEnv(t, nil, model.ServeConfig{AnswersPerSecond: 0.001, AnswerBurst: 2})
	body := `{"item_id":1,"option":1}`
	for i := range 2 {
		if rec := env.do(t, http.MethodPost, "/learners/carol/answers", body); rec.Code != http.StatusOK {
			t.Fatalf("answer %d: status = %d", i, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodPost, "/learners/carol/answers", body); rec.Code != http.StatusTooManyRequests {
		t.Errorf("third answer status = %d, want 429", rec.Code)
	}
	// Limits are per learner.
	if rec := env.do(t, http.MethodPost, "/learners/dave/answers", body); rec.Code != http.StatusOK {
		t.Errorf("other learner status = %d, want 200", rec.Code)
	}
}

func TestNext(t *testing.T) {
	env := newTestEnv(t, nil, model.ServeConfig{})

	rec := env.do(t, http.MethodGet, "/learners/alice/next", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	next := decode[nextResponse](t, rec)
	if next.Item.ID == 0 || next.Reason == "" {
		t.Errorf("next = %+v", next)
	}

	if rec := env.do(t, http.MethodGet, "/learners/alice/next?exclude=1,2,3", ""); rec.Code != http.StatusNoContent {
		t.Errorf("all excluded: status = %d, want 204", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/learners/alice/next?exclude=1,x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad exclude: status = %d, want 400", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/learners/alice/next?exclude=42", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown exclude: status = %d, want 404", rec.Code)
	}
}

func TestRecommendationsAndDueReviews(t *testing.T) {
	env := newTestEnv(t, nil, model.ServeConfig{})

	rec := env.do(t, http.MethodGet, "/learners/erin/recommendations", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("empty recommendations: %d %s", rec.Code, rec.Body.String())
	}

	for range 3 {
		env.do(t, http.MethodPost, "/learners/erin/answers", `{"item_id":3,"option":0}`)
	}
	recs := decode[[]model.Recommendation](t, env.do(t, http.MethodGet, "/learners/erin/recommendations", ""))
	if len(recs) == 0 || recs[0].Kind != model.KindFocusTopic || recs[0].Topic != "wiring" {
		t.Errorf("recommendations = %+v", recs)
	}

	due := decode[[]model.ReviewRecord](t, env.do(t, http.MethodGet, "/learners/erin/reviews/due", ""))
	if len(due) != 0 {
		t.Errorf("nothing should be due right after answering, got %+v", due)
	}
}

func TestSaveAndReset(t *testing.T) {
	env := newTestEnv(t, nil, model.ServeConfig{})
	env.do(t, http.MethodPost, "/learners/frank/answers", `{"item_id":1,"option":0}`)

	if rec := env.do(t, http.MethodPost, "/learners/frank/save", ""); rec.Code != http.StatusOK {
		t.Fatalf("save status = %d", rec.Code)
	}
	data, err := env.store.LoadSnapshot(context.Background(), "frank")
	if err != nil || len(data) == 0 {
		t.Fatalf("snapshot not saved: %v", err)
	}

	if rec := env.do(t, http.MethodPost, "/learners/frank/reset", ""); rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	a := decode[model.Analytics](t, env.do(t, http.MethodGet, "/learners/frank/analytics", ""))
	if a.TotalQuestions != 0 {
		t.Errorf("TotalQuestions after reset = %d", a.TotalQuestions)
	}
}

func TestBasePath(t *testing.T) {
	env := newTestEnv(t, nil, model.ServeConfig{BasePath: "tutor/"})
	if rec := env.do(t, http.MethodGet, "/tutor/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("prefixed status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unprefixed status = %d, want 404", rec.Code)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for range 100 {
		if !rl.Allow("x") {
			t.Fatal("a zero rate should not limit")
		}
	}
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := testNow
	rl.now = func() time.Time { return now }

	rl.Allow("alice")
	now = now.Add(time.Hour)
	rl.Allow("bob")

	if n := rl.Prune(30 * time.Minute); n != 1 {
		t.Errorf("Prune = %d, want 1", n)
	}
	if rl.Len() != 1 {
		t.Errorf("Len = %d, want 1", rl.Len())
	}
	if n := rl.Prune(30 * time.Minute); n != 0 {
		t.Errorf("second Prune = %d, want 0", n)
	}
}
