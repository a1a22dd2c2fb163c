// Package progress reconciles in-memory level sessions with durable profiles.
package progress

import (
	"github.com/ashureev/jailbreak-labs/internal/domain"
)

// ApplyCompletion credits c to p and reports whether p changed. A question
// already recorded as completed under p is never credited again.
func ApplyCompletion(p *domain.UserProfile, c domain.Completion) bool {
	existing := p.LevelProgressFor(c.Level)
	if existing.QuestionCompleted(c.QuestionID) {
		return false
	}

	p.TotalScore += c.Score
	p.QuestionsCompleted++
	p.LevelCompleted = c.Level

	merged := domain.MergeLevelProgress(existing, c.Snapshot)
	if merged == nil {
		merged = &domain.LevelProgress{Questions: make(map[int]*domain.QuestionProgress)}
	}
	q := merged.Questions[c.QuestionID]
	if q == nil {
		q = domain.NewQuestionProgress(c.QuestionID)
		merged.Questions[c.QuestionID] = q
	}
	if !q.IsCompleted {
		q.IsCompleted = true
		q.Score = c.Score
	}
	merged.Recount()
	merged.LastUpdated = c.At

	setLevel(p, c.Level, merged)
	p.UpdatedAt = c.At
	return true
}

// ApplyFinish records the level result. Cumulative totals are left alone:
// they only move through ApplyCompletion.
func ApplyFinish(p *domain.UserProfile, f domain.LevelFinish) bool {
	p.LevelCompleted = f.Level
	p.CompletionTime = f.ElapsedSeconds
	if f.Snapshot != nil {
		setLevel(p, f.Level, domain.MergeLevelProgress(p.LevelProgressFor(f.Level), f.Snapshot))
	}
	p.UpdatedAt = f.At
	return true
}

// ApplySnapshot overwrites the per-level document, keeping completed entries.
func ApplySnapshot(p *domain.UserProfile, level domain.Level, snap *domain.LevelProgress) bool {
	if snap == nil {
		return false
	}
	setLevel(p, level, domain.MergeLevelProgress(p.LevelProgressFor(level), snap))
	if snap.LastUpdated.After(p.UpdatedAt) {
		p.UpdatedAt = snap.LastUpdated
	}
	return true
}

func setLevel(p *domain.UserProfile, level domain.Level, lp *domain.LevelProgress) {
	if p.Progress == nil {
		p.Progress = make(map[domain.Level]*domain.LevelProgress)
	}
	p.Progress[level] = lp
}
