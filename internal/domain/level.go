// Package domain contains core domain types for the jailbreak game.
package domain

import (
	"fmt"
	"strings"
)

// Level is one of the three difficulty tiers.
type Level string

const (
	// LevelEasy is the first tier.
	LevelEasy Level = "easy"
	// LevelMedium is the second tier.
	LevelMedium Level = "medium"
	// LevelHard is the third tier.
	LevelHard Level = "hard"
)

// Game-wide limits.
const (
	QuestionsPerLevel = 5
	MaxPrompts        = 5
	HintsPerLevel     = 5
)

// Levels lists the tiers in unlock order.
var Levels = []Level{LevelEasy, LevelMedium, LevelHard}

// ParseLevel converts user input into a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown level %q", s)
	}
	return l, nil
}

// Valid reports whether l is one of the known tiers.
func (l Level) Valid() bool {
	switch l {
	case LevelEasy, LevelMedium, LevelHard:
		return true
	}
	return false
}

// ValidQuestionID reports whether id addresses one of the fixed slots.
func ValidQuestionID(id int) bool {
	return id >= 1 && id <= QuestionsPerLevel
}
