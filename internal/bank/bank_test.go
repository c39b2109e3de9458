package bank

import (
	"testing"

	"github.com/pavelanni/tutor/internal/model"
)

func TestCatalogLookups(t *testing.T) {
	c, err := New([]model.Question{
		{ID: 3, Topic: "safety", Difficulty: model.DifficultyHard},
		{ID: 1, Topic: "safety", Difficulty: model.DifficultyEasy},
		{ID: 2, Topic: "basics", Difficulty: model.DifficultyMedium},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if c.Len() != 3 {
		t.Fatalf("expected 3 questions, got %d", c.Len())
	}

	q, ok := c.GetByID(2)
	if !ok || q.Topic != "basics" {
		t.Errorf("GetByID(2) = %+v, %v", q, ok)
	}
	if _, ok := c.GetByID(99); ok {
		t.Error("GetByID(99) should not be found")
	}

	safety := c.ByTopic("safety")
	if len(safety) != 2 || safety[0].ID != 1 || safety[1].ID != 3 {
		t.Errorf("ByTopic(safety) = %+v, want ids [1 3]", safety)
	}
	if got := c.ByTopic("missing"); len(got) != 0 {
		t.Errorf("ByTopic(missing) = %+v, want empty", got)
	}

	all := c.All()
	for i, want := range []int64{1, 2, 3} {
		if all[i].ID != want {
			t.Errorf("All()[%d].ID = %d, want %d", i, all[i].ID, want)
		}
	}

	topics := c.Topics()
	if len(topics) != 2 || topics[0] != "basics" || topics[1] != "safety" {
		t.Errorf("Topics() = %v, want [basics safety]", topics)
	}
}

func TestCatalogRejectsInvalid(t *testing.T) {
	tests := []struct {
		name      string
		questions []model.Question
	}{
		{"duplicate id", []model.Question{
			{ID: 1, Topic: "a", Difficulty: model.DifficultyEasy},
			{ID: 1, Topic: "b", Difficulty: model.DifficultyEasy},
		}},
		{"bad difficulty", []model.Question{
			{ID: 1, Topic: "a", Difficulty: "impossible"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.questions); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAllReturnsCopy(t *testing.T) {
	c, err := New([]model.Question{{ID: 1, Topic: "a", Difficulty: model.DifficultyEasy}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	all := c.All()
	all[0].Topic = "changed"
	if q, _ := c.GetByID(1); q.Topic != "a" {
		t.Error("mutating All() result should not affect the catalog")
	}
}
