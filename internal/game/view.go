package game

import (
	"time"

	"github.com/ashureev/jailbreak-labs/internal/catalog"
	"github.com/ashureev/jailbreak-labs/internal/domain"
)

// SlotView summarizes one question slot. Hidden words never appear here.
type SlotView struct {
	ID          int              `json:"id"`
	Title       string           `json:"title"`
	State       domain.SlotState `json:"state"`
	PromptsUsed int              `json:"promptsUsed"`
	Score       int              `json:"score"`
	Jailbroken  bool             `json:"jailbroken"`
	TimeSpent   int              `json:"timeSpent"`
}

// View is a read-only copy of a player's session.
type View struct {
	UserID             string           `json:"userId"`
	Level              domain.Level     `json:"level"`
	CurrentQuestion    int              `json:"currentQuestion"`
	Title              string           `json:"title"`
	State              domain.SlotState `json:"state"`
	Messages           []domain.Message `json:"messages"`
	PromptsUsed        int              `json:"promptsUsed"`
	PromptsRemaining   int              `json:"promptsRemaining"`
	HintsRemaining     int              `json:"hintsRemaining"`
	HintsRevealed      int              `json:"hintsRevealed"`
	TotalScore         int              `json:"totalScore"`
	QuestionsCompleted int              `json:"questionsCompleted"`
	ProgressPercentage float64          `json:"progressPercentage"`
	LevelDone          bool             `json:"levelDone"`
	Slots              []SlotView       `json:"slots"`
	StartTime          time.Time        `json:"startTime"`
	LevelStartTime     time.Time        `json:"levelStartTime"`
	QuestionStartTime  time.Time        `json:"questionStartTime"`
}

func buildView(m *Machine, bank *catalog.Bank, levelDone bool) *View {
	s := m.Session()
	active := s.Active()

	v := &View{
		UserID:             s.UserID,
		Level:              s.Level,
		CurrentQuestion:    s.CurrentQuestionID,
		State:              active.State(),
		Messages:           append([]domain.Message{}, active.Messages...),
		PromptsUsed:        active.PromptsUsed,
		PromptsRemaining:   max(0, domain.MaxPrompts-active.PromptsUsed),
		HintsRemaining:     s.HintsRemaining,
		HintsRevealed:      active.HintsRevealed,
		TotalScore:         s.TotalScore,
		QuestionsCompleted: s.QuestionsCompleted,
		ProgressPercentage: m.ProgressPercentage(),
		LevelDone:          levelDone,
		Slots:              make([]SlotView, 0, domain.QuestionsPerLevel),
		StartTime:          s.StartTime,
		LevelStartTime:     s.LevelStartTime,
		QuestionStartTime:  s.QuestionStartTime,
	}
	if active.Closed() {
		v.PromptsRemaining = 0
	}

	for id := 1; id <= domain.QuestionsPerLevel; id++ {
		q := s.Questions[id]
		slot := SlotView{
			ID:          id,
			State:       q.State(),
			PromptsUsed: q.PromptsUsed,
			Score:       q.Score,
			Jailbroken:  q.Jailbroken,
			TimeSpent:   q.TimeSpentSeconds,
		}
		if def, err := bank.Question(s.Level, id); err == nil {
			slot.Title = def.Title
		}
		if id == s.CurrentQuestionID {
			v.Title = slot.Title
		}
		v.Slots = append(v.Slots, slot)
	}
	return v
}
