// Package bank holds the read-only question catalog consumed by the scheduler.
package bank

import (
	"fmt"
	"sort"

	"github.com/pavelanni/tutor/internal/model"
)

// Catalog is an immutable in-memory question bank indexed by id and topic.
// It is safe for concurrent use because it is never mutated after New.
type Catalog struct {
	byID    map[int64]model.Question
	byTopic map[string][]model.Question
	all     []model.Question
}

// New builds a catalog. Questions are ordered by id; duplicate ids are rejected.
func New(questions []model.Question) (*Catalog, error) {
	c := &Catalog{
		byID:    make(map[int64]model.Question, len(questions)),
		byTopic: make(map[string][]model.Question),
		all:     make([]model.Question, 0, len(questions)),
	}
	for _, q := range questions {
		if _, dup := c.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %d", q.ID)
		}
		if !q.Difficulty.Valid() {
			return nil, fmt.Errorf("question %d: invalid difficulty %q", q.ID, q.Difficulty)
		}
		c.byID[q.ID] = q
		c.all = append(c.all, q)
	}
	sort.Slice(c.all, func(i, j int) bool { return c.all[i].ID < c.all[j].ID })
	for _, q := range c.all {
		c.byTopic[q.Topic] = append(c.byTopic[q.Topic], q)
	}
	return c, nil
}

// GetByID returns the question with the given id.
func (c *Catalog) GetByID(id int64) (model.Question, bool) {
	q, ok := c.byID[id]
	return q, ok
}

// ByTopic returns the questions of a topic ordered by id.
func (c *Catalog) ByTopic(topic string) []model.Question {
	return append([]model.Question(nil), c.byTopic[topic]...)
}

// All returns every question ordered by id.
func (c *Catalog) All() []model.Question {
	return append([]model.Question(nil), c.all...)
}

// Topics returns the distinct topics in alphabetical order.
func (c *Catalog) Topics() []string {
	topics := make([]string, 0, len(c.byTopic))
	for t := range c.byTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Len returns the number of questions.
func (c *Catalog) Len() int {
	return len(c.all)
}
