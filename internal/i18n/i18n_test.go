package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "Tutor" {
		t.Errorf("T(AppTitle) = %q, want 'Tutor'", got)
	}

	got = T(ctx, "RecReviewAction")
	if got != "Start review" {
		t.Errorf("T(RecReviewAction) = %q, want 'Start review'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "AppTitle")
	if got != "Репетитор" {
		t.Errorf("T(AppTitle) = %q, want 'Репетитор'", got)
	}

	got = T(ctx, "RecBreakTitle")
	if got != "Сделайте перерыв" {
		t.Errorf("T(RecBreakTitle) = %q, want 'Сделайте перерыв'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "QuestionsAvailable", 1)
	if got1 != "1 question available." {
		t.Errorf("Tp(QuestionsAvailable, 1) = %q, want '1 question available.'", got1)
	}

	got5 := Tp(ctx, "RecReviewDescription", 5)
	if got5 != "5 items are due for review." {
		t.Errorf("Tp(RecReviewDescription, 5) = %q, want '5 items are due for review.'", got5)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "RecFocusTitle", map[string]any{"Topic": "safety"})
	if got != "Focus on safety" {
		t.Errorf("Td(RecFocusTitle, Topic=safety) = %q, want 'Focus on safety'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewarePrefersAcceptLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "AppTitle")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Репетитор" {
		t.Errorf("with Accept-Language ru: %q, want 'Репетитор'", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Tutor" {
		t.Errorf("without Accept-Language: %q, want 'Tutor'", got)
	}
}
