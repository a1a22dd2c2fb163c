package domain

import (
	"time"
)

// LevelSession is the in-memory state of one player working through a level.
type LevelSession struct {
	UserID             string                    `json:"userId"`
	Level              Level                     `json:"level"`
	CurrentQuestionID  int                       `json:"currentQuestion"`
	Questions          map[int]*QuestionProgress `json:"questions"`
	TotalScore         int                       `json:"totalScore"`
	QuestionsCompleted int                       `json:"questionsCompleted"`
	HintsRemaining     int                       `json:"hintsRemaining"`
	StartTime          time.Time                 `json:"startTime"`
	LevelStartTime     time.Time                 `json:"levelStartTime"`
	QuestionStartTime  time.Time                 `json:"questionStartTime"`
}

// NewLevelSession returns a fresh session with all slots pre-allocated.
func NewLevelSession(userID string, level Level, now time.Time) *LevelSession {
	s := &LevelSession{
		UserID:            userID,
		Level:             level,
		CurrentQuestionID: 1,
		Questions:         make(map[int]*QuestionProgress, QuestionsPerLevel),
		HintsRemaining:    HintsPerLevel,
		StartTime:         now,
		LevelStartTime:    now,
		QuestionStartTime: now,
	}
	for id := 1; id <= QuestionsPerLevel; id++ {
		s.Questions[id] = NewQuestionProgress(id)
	}
	return s
}

// RestoreLevelSession rebuilds a session from durable progress. Missing slots
// are filled with fresh ones so the result always has exactly five.
func RestoreLevelSession(userID string, level Level, saved *LevelProgress, now time.Time) *LevelSession {
	s := NewLevelSession(userID, level, now)
	if saved == nil {
		return s
	}

	for id, q := range saved.Questions {
		if !ValidQuestionID(id) || q == nil {
			continue
		}
		restored := q.Clone()
		restored.QuestionID = id
		s.Questions[id] = restored
	}

	if ValidQuestionID(saved.CurrentQuestion) {
		s.CurrentQuestionID = saved.CurrentQuestion
	}
	s.TotalScore = max(saved.TotalScore, 0)
	s.QuestionsCompleted = min(max(saved.QuestionsCompleted, 0), QuestionsPerLevel)
	s.HintsRemaining = min(max(saved.HintsRemaining, 0), HintsPerLevel)
	if !saved.StartTime.IsZero() {
		s.StartTime = saved.StartTime
	}
	if !saved.LevelStartTime.IsZero() {
		s.LevelStartTime = saved.LevelStartTime
	}
	return s
}

// Active returns the slot the cursor points at.
func (s *LevelSession) Active() *QuestionProgress {
	return s.Questions[s.CurrentQuestionID]
}

// NextOpenAfter returns the lowest slot id above id that is still open for
// play, or 0 when none is left.
func (s *LevelSession) NextOpenAfter(id int) int {
	for next := id + 1; next <= QuestionsPerLevel; next++ {
		if q := s.Questions[next]; q != nil && !q.Closed() {
			return next
		}
	}
	return 0
}

// Snapshot copies the session into its durable per-level document.
func (s *LevelSession) Snapshot(now time.Time) *LevelProgress {
	p := &LevelProgress{
		CurrentQuestion:    s.CurrentQuestionID,
		TotalScore:         s.TotalScore,
		QuestionsCompleted: s.QuestionsCompleted,
		HintsRemaining:     s.HintsRemaining,
		LastUpdated:        now,
		StartTime:          s.StartTime,
		LevelStartTime:     s.LevelStartTime,
		Questions:          make(map[int]*QuestionProgress, len(s.Questions)),
	}
	for id, q := range s.Questions {
		p.Questions[id] = q.Clone()
	}
	return p
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *LevelSession) Clone() *LevelSession {
	c := *s
	c.Questions = make(map[int]*QuestionProgress, len(s.Questions))
	for id, q := range s.Questions {
		c.Questions[id] = q.Clone()
	}
	return &c
}
