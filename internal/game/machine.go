// Package game implements the level session state machine and the per-player
// controller that drives it.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/domain"
)

// Durable is the storage side of a session. Every method except LoadLevel is
// fire-and-forget: failures are handled by the implementation and never
// reach gameplay.
type Durable interface {
	// LoadLevel returns the saved progress for (userID, level), or nil.
	LoadLevel(ctx context.Context, userID string, level domain.Level) (*domain.LevelProgress, error)

	// Persist saves the per-level progress snapshot.
	Persist(userID string, level domain.Level, snap *domain.LevelProgress)

	// CommitCompletion credits a completed question to the profile exactly once.
	CommitCompletion(c domain.Completion)

	// FinishLevel records that the player left the level.
	FinishLevel(f domain.LevelFinish)
}

// Machine owns one LevelSession. It is not safe for concurrent use; the
// Controller serializes access.
type Machine struct {
	session *domain.LevelSession
	durable Durable
	now     func() time.Time
	logger  *slog.Logger
}

// StartLevel loads saved progress for (userID, level) and returns a machine
// positioned on it. A storage failure yields a fresh session.
func StartLevel(ctx context.Context, durable Durable, userID string, level domain.Level, now func() time.Time, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}

	saved, err := durable.LoadLevel(ctx, userID, level)
	if err != nil {
		logger.Warn("failed to load level progress, starting fresh",
			"user_id", userID, "level", level, "error", err)
		saved = nil
	}
	return NewMachine(userID, level, saved, durable, now, logger)
}

// NewMachine builds a machine from already loaded progress.
func NewMachine(userID string, level domain.Level, saved *domain.LevelProgress, durable Durable, now func() time.Time, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}

	t := now()
	s := domain.RestoreLevelSession(userID, level, saved, t)
	s.QuestionStartTime = t
	if s.Active().Closed() {
		if next := s.NextOpenAfter(0); next != 0 {
			s.CurrentQuestionID = next
		}
	}

	return &Machine{session: s, durable: durable, now: now, logger: logger}
}

// Session exposes the live session. Callers must not retain or mutate it.
func (m *Machine) Session() *domain.LevelSession { return m.session }

func (m *Machine) logAttrs(extra ...any) []any {
	attrs := []any{"user_id", m.session.UserID, "level", m.session.Level, "question_id", m.session.CurrentQuestionID}
	return append(attrs, extra...)
}

// StartQuestion moves the cursor to id. Closed slots are rejected.
func (m *Machine) StartQuestion(id int) error {
	if !domain.ValidQuestionID(id) {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, id)
	}
	if m.session.Questions[id].Closed() {
		m.logger.Warn("ignoring navigation to closed question", m.logAttrs("target", id)...)
		return ErrSlotClosed
	}

	m.session.CurrentQuestionID = id
	m.session.QuestionStartTime = m.now()
	m.Persist()
	return nil
}

// CanSend reports whether the active slot accepts another prompt.
func (m *Machine) CanSend() error {
	q := m.session.Active()
	if q.Closed() {
		return ErrSlotClosed
	}
	if q.PromptsUsed >= domain.MaxPrompts {
		return ErrBudgetExhausted
	}
	return nil
}

// RecordPrompt sets the active slot's prompt count. The count never moves
// backwards and is capped at the budget.
func (m *Machine) RecordPrompt(count int) error {
	q := m.session.Active()
	if q.Closed() {
		m.logger.Warn("ignoring prompt count on closed question", m.logAttrs()...)
		return ErrSlotClosed
	}
	count = min(count, domain.MaxPrompts)
	if count < q.PromptsUsed {
		m.logger.Warn("ignoring decreasing prompt count", m.logAttrs("have", q.PromptsUsed, "got", count)...)
		return nil
	}
	q.PromptsUsed = count
	return nil
}

// AppendMessages adds entries to the active transcript.
func (m *Machine) AppendMessages(msgs ...domain.Message) error {
	q := m.session.Active()
	if q.Closed() {
		return ErrSlotClosed
	}
	q.Messages = append(q.Messages, msgs...)
	return nil
}

// CompleteQuestion closes the active slot and credits its score. It is a
// no-op on a closed slot and then reports applied=false.
func (m *Machine) CompleteQuestion(jailbroken bool) (score int, applied bool) {
	q := m.session.Active()
	if q.Closed() {
		m.logger.Warn("ignoring completion of closed question", m.logAttrs()...)
		return 0, false
	}

	now := m.now()
	seconds := elapsedSeconds(now.Sub(m.session.QuestionStartTime))
	score = Score(q.PromptsUsed, seconds)

	q.IsCompleted = true
	q.Jailbroken = jailbroken
	q.TimeSpentSeconds = seconds
	q.Score = score
	m.session.QuestionsCompleted++
	m.session.TotalScore += score

	m.logger.Info("question completed", m.logAttrs("jailbroken", jailbroken, "score", score, "prompts", q.PromptsUsed, "seconds", seconds)...)

	m.durable.CommitCompletion(domain.Completion{
		UserID:     m.session.UserID,
		Level:      m.session.Level,
		QuestionID: q.QuestionID,
		Score:      score,
		Snapshot:   m.session.Snapshot(now),
		At:         now,
	})
	return score, true
}

// UseHint spends one unit of the level hint budget.
func (m *Machine) UseHint() bool {
	if m.session.HintsRemaining <= 0 {
		m.logger.Warn("ignoring hint request with empty budget", m.logAttrs()...)
		return false
	}
	m.session.HintsRemaining--
	return true
}

// HintOutcome describes a hint request.
type HintOutcome struct {
	Accepted  bool   `json:"accepted"`
	Hint      string `json:"hint,omitempty"`
	Message   string `json:"message"`
	Remaining int    `json:"remaining"`
}

// NoMoreHintsMessage is shown once a question's own hints run out.
const NoMoreHintsMessage = "No more hints available for this question."

// RevealHint shows the next hint of def for the active slot. The level budget
// is spent only when a hint is actually revealed.
func (m *Machine) RevealHint(def domain.QuestionDefinition) (HintOutcome, error) {
	q := m.session.Active()
	if q.Closed() {
		return HintOutcome{}, ErrSlotClosed
	}
	if m.session.HintsRemaining <= 0 {
		m.logger.Warn("ignoring hint request with empty budget", m.logAttrs()...)
		return HintOutcome{Remaining: 0}, nil
	}

	hint, ok := def.Hint(q.HintsRevealed)
	if !ok {
		q.Messages = append(q.Messages, domain.AgentMessage(NoMoreHintsMessage))
		m.Persist()
		return HintOutcome{Message: NoMoreHintsMessage, Remaining: m.session.HintsRemaining}, nil
	}

	m.UseHint()
	q.HintsRevealed++
	msg := fmt.Sprintf("HINT (%d remaining): %s", m.session.HintsRemaining, hint)
	q.Messages = append(q.Messages, domain.AgentMessage(msg))
	m.Persist()

	return HintOutcome{Accepted: true, Hint: hint, Message: msg, Remaining: m.session.HintsRemaining}, nil
}

// SkipQuestion marks the active slot as skipped without score.
func (m *Machine) SkipQuestion() error {
	q := m.session.Active()
	if q.Closed() {
		m.logger.Warn("ignoring skip of closed question", m.logAttrs()...)
		return ErrSlotClosed
	}
	q.IsFailed = true
	m.logger.Info("question skipped", m.logAttrs()...)
	m.Persist()
	return nil
}

// FinishLevel hands the level totals to storage.
func (m *Machine) FinishLevel() domain.LevelFinish {
	now := m.now()
	f := domain.LevelFinish{
		UserID:         m.session.UserID,
		Level:          m.session.Level,
		ElapsedSeconds: elapsedSeconds(now.Sub(m.session.LevelStartTime)),
		Snapshot:       m.session.Snapshot(now),
		At:             now,
	}
	m.durable.FinishLevel(f)
	return f
}

// Persist schedules a save of the current snapshot.
func (m *Machine) Persist() {
	m.durable.Persist(m.session.UserID, m.session.Level, m.session.Snapshot(m.now()))
}

// ProgressPercentage is questionsCompleted / 5 * 100.
func (m *Machine) ProgressPercentage() float64 {
	return float64(m.session.QuestionsCompleted) / float64(domain.QuestionsPerLevel) * 100
}

// QuestionsCompleted returns the level completion count.
func (m *Machine) QuestionsCompleted() int {
	return m.session.QuestionsCompleted
}
