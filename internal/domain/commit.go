package domain

import "time"

// Completion is the durable fact "this player finished this question".
type Completion struct {
	UserID     string
	Level      Level
	QuestionID int
	Score      int
	Snapshot   *LevelProgress
	At         time.Time
}

// LevelFinish is the durable fact "this player left the level with these totals".
type LevelFinish struct {
	UserID         string
	Level          Level
	ElapsedSeconds int
	Snapshot       *LevelProgress
	At             time.Time
}
