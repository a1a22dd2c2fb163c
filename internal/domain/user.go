package domain

import (
	"time"
)

// UserProfile is the durable, cross-level record of a player. TotalScore and
// QuestionsCompleted accumulate across every level ever played and only move
// through an atomic profile update.
type UserProfile struct {
	ID                 string                   `json:"id"`
	Email              string                   `json:"email"`
	Name               string                   `json:"name"`
	TotalScore         int                      `json:"totalScore"`
	QuestionsCompleted int                      `json:"questionsCompleted"`
	LevelCompleted     Level                    `json:"levelCompleted,omitempty"`
	CompletionTime     int                      `json:"completionTime"`
	Progress           map[Level]*LevelProgress `json:"progress,omitempty"`
	Version            int64                    `json:"-"`
	CreatedAt          time.Time                `json:"createdAt"`
	UpdatedAt          time.Time                `json:"updatedAt"`
}

// NewUserProfile synthesizes the default profile for an unknown user.
func NewUserProfile(userID string, now time.Time) *UserProfile {
	return &UserProfile{
		ID:        userID,
		Name:      DeriveName(userID),
		Progress:  make(map[Level]*LevelProgress),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DeriveName builds a display name from an opaque user id.
func DeriveName(userID string) string {
	if len(userID) > 13 {
		return "agent-" + userID[len(userID)-8:]
	}
	if userID == "" {
		return "agent-unknown"
	}
	return "agent-" + userID
}

// LevelProgressFor returns the nested progress for level, or nil.
func (p *UserProfile) LevelProgressFor(level Level) *LevelProgress {
	if p == nil || p.Progress == nil {
		return nil
	}
	return p.Progress[level]
}

// Clone returns a deep copy.
func (p *UserProfile) Clone() *UserProfile {
	c := *p
	c.Progress = make(map[Level]*LevelProgress, len(p.Progress))
	for level, lp := range p.Progress {
		c.Progress[level] = lp.Clone()
	}
	return &c
}

// LevelProgress is the durable per-level document stored under a profile.
type LevelProgress struct {
	CurrentQuestion    int                       `json:"currentQuestion"`
	TotalScore         int                       `json:"totalScore"`
	QuestionsCompleted int                       `json:"questionsCompleted"`
	HintsRemaining     int                       `json:"hintsRemaining"`
	LastUpdated        time.Time                 `json:"lastUpdated"`
	StartTime          time.Time                 `json:"startTime"`
	LevelStartTime     time.Time                 `json:"levelStartTime"`
	Questions          map[int]*QuestionProgress `json:"questions"`
}

// Clone returns a deep copy.
func (lp *LevelProgress) Clone() *LevelProgress {
	if lp == nil {
		return nil
	}
	c := *lp
	c.Questions = make(map[int]*QuestionProgress, len(lp.Questions))
	for id, q := range lp.Questions {
		c.Questions[id] = q.Clone()
	}
	return &c
}

// QuestionCompleted reports whether the document records id as completed.
func (lp *LevelProgress) QuestionCompleted(id int) bool {
	if lp == nil {
		return false
	}
	q := lp.Questions[id]
	return q != nil && q.IsCompleted
}

// Recount derives the level totals from the completed question entries.
func (lp *LevelProgress) Recount() {
	lp.TotalScore, lp.QuestionsCompleted = 0, 0
	for _, q := range lp.Questions {
		if q != nil && q.IsCompleted {
			lp.TotalScore += q.Score
			lp.QuestionsCompleted++
		}
	}
}

// MergeLevelProgress overlays a fresh in-memory snapshot onto the durable
// document. The snapshot wins for navigation and transcripts, but a question
// the durable side already records as completed is never reopened, the hint
// budget never grows back, and level totals are recounted from the merged
// questions.
func MergeLevelProgress(durable, snapshot *LevelProgress) *LevelProgress {
	if snapshot == nil {
		return durable.Clone()
	}
	merged := snapshot.Clone()
	if durable == nil {
		merged.Recount()
		return merged
	}

	for id, dq := range durable.Questions {
		sq := merged.Questions[id]
		switch {
		case dq == nil:
		case sq == nil:
			merged.Questions[id] = dq.Clone()
		case dq.IsCompleted && !sq.IsCompleted:
			merged.Questions[id] = dq.Clone()
		case dq.IsFailed && !sq.IsFailed:
			sq.IsFailed = true
		}
	}

	merged.Recount()
	merged.HintsRemaining = min(merged.HintsRemaining, durable.HintsRemaining)
	if merged.StartTime.IsZero() {
		merged.StartTime = durable.StartTime
	}
	if merged.LevelStartTime.IsZero() {
		merged.LevelStartTime = durable.LevelStartTime
	}
	return merged
}
