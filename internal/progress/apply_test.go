package progress

import (
	"testing"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/domain"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func completedSnapshot(ids map[int]int) *domain.LevelProgress {
	lp := &domain.LevelProgress{
		CurrentQuestion: 1,
		HintsRemaining:  domain.HintsPerLevel,
		Questions:       make(map[int]*domain.QuestionProgress),
	}
	for id := 1; id <= domain.QuestionsPerLevel; id++ {
		lp.Questions[id] = domain.NewQuestionProgress(id)
	}
	for id, score := range ids {
		lp.Questions[id].IsCompleted = true
		lp.Questions[id].Jailbroken = true
		lp.Questions[id].Score = score
	}
	return lp
}

func TestApplyCompletionCreditsOnce(t *testing.T) {
	t.Parallel()

	p := domain.NewUserProfile("anon_1", testNow)
	c := domain.Completion{
		UserID:     "anon_1",
		Level:      domain.LevelEasy,
		QuestionID: 2,
		Score:      120,
		Snapshot:   completedSnapshot(map[int]int{2: 120}),
		At:         testNow,
	}

	if !ApplyCompletion(p, c) {
		t.Fatal("first ApplyCompletion() = false, want true")
	}
	if ApplyCompletion(p, c) {
		t.Fatal("second ApplyCompletion() = true, want false")
	}

	if p.TotalScore != 120 || p.QuestionsCompleted != 1 {
		t.Errorf("totals = (%d, %d), want (120, 1)", p.TotalScore, p.QuestionsCompleted)
	}
	if p.LevelCompleted != domain.LevelEasy {
		t.Errorf("LevelCompleted = %q, want easy", p.LevelCompleted)
	}
	lp := p.LevelProgressFor(domain.LevelEasy)
	if lp.TotalScore != 120 || lp.QuestionsCompleted != 1 {
		t.Errorf("level totals = (%d, %d), want (120, 1)", lp.TotalScore, lp.QuestionsCompleted)
	}
}

func TestApplyCompletionWithoutSnapshot(t *testing.T) {
	t.Parallel()

	p := domain.NewUserProfile("anon_1", testNow)
	c := domain.Completion{UserID: "anon_1", Level: domain.LevelHard, QuestionID: 4, Score: 70, At: testNow}

	if !ApplyCompletion(p, c) {
		t.Fatal("ApplyCompletion() = false, want true")
	}
	lp := p.LevelProgressFor(domain.LevelHard)
	if !lp.QuestionCompleted(4) {
		t.Fatal("question 4 not recorded as completed")
	}
	if lp.Questions[4].Score != 70 {
		t.Errorf("question score = %d, want 70", lp.Questions[4].Score)
	}
}

func TestApplyCompletionAccumulatesAcrossLevels(t *testing.T) {
	t.Parallel()

	p := domain.NewUserProfile("anon_1", testNow)
	ApplyCompletion(p, domain.Completion{Level: domain.LevelEasy, QuestionID: 1, Score: 120, At: testNow})
	ApplyCompletion(p, domain.Completion{Level: domain.LevelMedium, QuestionID: 1, Score: 90, At: testNow})

	if p.TotalScore != 210 || p.QuestionsCompleted != 2 {
		t.Errorf("totals = (%d, %d), want (210, 2)", p.TotalScore, p.QuestionsCompleted)
	}
	if p.LevelCompleted != domain.LevelMedium {
		t.Errorf("LevelCompleted = %q, want medium", p.LevelCompleted)
	}
}

func TestApplyFinishLeavesTotals(t *testing.T) {
	t.Parallel()

	p := domain.NewUserProfile("anon_1", testNow)
	ApplyCompletion(p, domain.Completion{Level: domain.LevelEasy, QuestionID: 1, Score: 120, At: testNow})

	snap := completedSnapshot(map[int]int{1: 120})
	ApplyFinish(p, domain.LevelFinish{Level: domain.LevelEasy, ElapsedSeconds: 340, Snapshot: snap, At: testNow})

	if p.TotalScore != 120 || p.QuestionsCompleted != 1 {
		t.Errorf("totals = (%d, %d), want (120, 1)", p.TotalScore, p.QuestionsCompleted)
	}
	if p.CompletionTime != 340 {
		t.Errorf("CompletionTime = %d, want 340", p.CompletionTime)
	}
}

func TestApplySnapshotKeepsDurableCompletion(t *testing.T) {
	t.Parallel()

	p := domain.NewUserProfile("anon_1", testNow)
	ApplyCompletion(p, domain.Completion{Level: domain.LevelEasy, QuestionID: 3, Score: 100, At: testNow})

	// A stale tab that never saw question 3 completed.
	stale := completedSnapshot(nil)
	stale.CurrentQuestion = 3
	if !ApplySnapshot(p, domain.LevelEasy, stale) {
		t.Fatal("ApplySnapshot() = false, want true")
	}

	lp := p.LevelProgressFor(domain.LevelEasy)
	if !lp.QuestionCompleted(3) {
		t.Error("durable completion of question 3 was reopened")
	}
	if lp.CurrentQuestion != 3 {
		t.Errorf("CurrentQuestion = %d, want 3", lp.CurrentQuestion)
	}
	if ApplySnapshot(p, domain.LevelEasy, nil) {
		t.Error("ApplySnapshot(nil) = true, want false")
	}
}
