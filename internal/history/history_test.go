package history

import (
	"testing"
	"time"

	"github.com/pavelanni/tutor/internal/model"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func answers(pattern string, start time.Time, step time.Duration) []model.GradedAnswer {
	var out []model.GradedAnswer
	for i, c := range pattern {
		out = append(out, model.GradedAnswer{
			ItemID:     int64(i + 1),
			Correct:    c == '1',
			TimeSpent:  10,
			AnsweredAt: start.Add(time.Duration(i) * step),
		})
	}
	return out
}

func TestRecentAccuracy(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    float64
	}{
		{"empty uses default", "", DefaultRecentAccuracy},
		{"all correct", "111", 1},
		{"half", "1010", 0.5},
		{"only last ten count", "00000" + "1111111110", 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(answers(tt.pattern, t0, time.Minute))
			got := l.RecentAccuracy(RecentWindow)
			if got != tt.want {
				t.Errorf("RecentAccuracy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecent(t *testing.T) {
	l := New(answers("10101", t0, time.Minute))
	got := l.Recent(2)
	if len(got) != 2 || got[0].ItemID != 4 || got[1].ItemID != 5 {
		t.Errorf("Recent(2) = %+v, want items 4,5", got)
	}
	if got := l.Recent(0); got != nil {
		t.Errorf("Recent(0) = %+v, want nil", got)
	}
	if got := l.Recent(50); len(got) != 5 {
		t.Errorf("Recent(50) len = %d, want 5", len(got))
	}
}

func TestCountBetween(t *testing.T) {
	l := New(answers("1111", t0, time.Hour))
	// Answers at t0, t0+1h, t0+2h, t0+3h.
	now := t0.Add(3 * time.Hour)
	if got := l.CountBetween(now.Add(-2*time.Hour), now); got != 3 {
		t.Errorf("CountBetween = %d, want 3 (window bounds are inclusive)", got)
	}
	// Future answers are outside a window ending at now.
	if got := l.CountBetween(t0.Add(-time.Hour), t0); got != 1 {
		t.Errorf("CountBetween = %d, want 1", got)
	}
}

func TestAppendAndTotals(t *testing.T) {
	l := New(nil)
	l.Append(model.GradedAnswer{ItemID: 1, Correct: true, TimeSpent: 4})
	l.Append(model.GradedAnswer{ItemID: 2, Correct: false, TimeSpent: 6})
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}
	correct, total := l.Totals()
	if correct != 1 || total != 10 {
		t.Errorf("Totals() = %d, %v, want 1, 10", correct, total)
	}

	snapshot := l.Answers()
	snapshot[0].Correct = false
	if c, _ := l.Totals(); c != 1 {
		t.Error("Answers() must return a copy")
	}

	l.Reset()
	if l.Len() != 0 {
		t.Errorf("Len() after Reset = %d", l.Len())
	}
}

func TestTotalsClampTimeSpent(t *testing.T) {
	l := New([]model.GradedAnswer{
		{ItemID: 1, TimeSpent: 1e308},
		{ItemID: 2, TimeSpent: 1e308},
		{ItemID: 3, TimeSpent: -3},
	})
	if _, total := l.Totals(); total != 2*model.MaxTimeSpent {
		t.Errorf("total time = %v, want %d", total, 2*model.MaxTimeSpent)
	}
}
