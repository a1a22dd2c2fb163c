// Package catalog holds the static question bank.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/jailbreak-labs/internal/domain"
)

// ErrUnknownQuestion is returned for a level or slot outside the catalog.
var ErrUnknownQuestion = errors.New("unknown question")

// Bank is an immutable index of question definitions by level and slot.
// It is safe for concurrent use.
type Bank struct {
	levels map[domain.Level][]domain.QuestionDefinition
}

// New validates defs and builds a Bank. Every level must have exactly one
// definition per slot, a non-empty lowercase hidden word and at least one hint.
func New(defs []domain.QuestionDefinition) (*Bank, error) {
	levels := make(map[domain.Level][]domain.QuestionDefinition, len(domain.Levels))
	for _, l := range domain.Levels {
		levels[l] = make([]domain.QuestionDefinition, domain.QuestionsPerLevel)
	}

	for _, d := range defs {
		if !d.Level.Valid() {
			return nil, fmt.Errorf("question %q: invalid level %q", d.Title, d.Level)
		}
		if !domain.ValidQuestionID(d.ID) {
			return nil, fmt.Errorf("question %q: invalid id %d", d.Title, d.ID)
		}
		word := strings.TrimSpace(d.HiddenWord)
		if word == "" || word != strings.ToLower(word) {
			return nil, fmt.Errorf("question %s/%d: hidden word must be non-empty lowercase", d.Level, d.ID)
		}
		if len(d.Hints) == 0 {
			return nil, fmt.Errorf("question %s/%d: no hints", d.Level, d.ID)
		}
		slot := &levels[d.Level][d.ID-1]
		if slot.ID != 0 {
			return nil, fmt.Errorf("question %s/%d: duplicate definition", d.Level, d.ID)
		}
		d.Hints = append([]string(nil), d.Hints...)
		*slot = d
	}

	for level, qs := range levels {
		for i, q := range qs {
			if q.ID == 0 {
				return nil, fmt.Errorf("level %s: missing question %d", level, i+1)
			}
		}
	}
	return &Bank{levels: levels}, nil
}

// Question returns the definition at (level, n) where n is 1-based.
func (b *Bank) Question(level domain.Level, n int) (domain.QuestionDefinition, error) {
	qs, ok := b.levels[level]
	if !ok || !domain.ValidQuestionID(n) {
		return domain.QuestionDefinition{}, fmt.Errorf("%w: %s/%d", ErrUnknownQuestion, level, n)
	}
	return qs[n-1], nil
}

// ForLevel returns the ordered definitions of a level. The slice is a copy.
func (b *Bank) ForLevel(level domain.Level) ([]domain.QuestionDefinition, error) {
	qs, ok := b.levels[level]
	if !ok {
		return nil, fmt.Errorf("%w: level %s", ErrUnknownQuestion, level)
	}
	out := make([]domain.QuestionDefinition, len(qs))
	copy(out, qs)
	return out, nil
}
