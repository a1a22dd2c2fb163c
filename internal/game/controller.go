package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/arbiter"
	"github.com/ashureev/jailbreak-labs/internal/catalog"
	"github.com/ashureev/jailbreak-labs/internal/domain"
	"github.com/google/uuid"
)

// Arbiter judges player messages. *arbiter.Gateway implements it.
type Arbiter interface {
	MatchLocal(utterance, hiddenWord string) (arbiter.Verdict, bool)
	Evaluate(ctx context.Context, utterance, hiddenWord string, history []domain.Message) arbiter.Verdict
}

var _ Arbiter = (*arbiter.Gateway)(nil)

// ControllerConfig tunes controller timing.
type ControllerConfig struct {
	// AdvanceDelay is the pause between an exhausted question and the move to
	// the next slot. Zero or less advances immediately.
	AdvanceDelay time.Duration
	Now          func() time.Time
}

// Outcome is the result of an operation that may be rejected as a no-op.
type Outcome struct {
	Accepted bool  `json:"accepted"`
	View     *View `json:"session"`
}

// SendResult is the result of one chat turn.
type SendResult struct {
	Verdict      arbiter.Verdict `json:"verdict"`
	Solved       bool            `json:"solved"`
	Exhausted    bool            `json:"exhausted"`
	Completed    bool            `json:"completed"`
	Score        int             `json:"score"`
	NextQuestion int             `json:"nextQuestion"`
	LevelDone    bool            `json:"levelDone"`
	View         *View           `json:"session"`
}

// HintResult is the result of a hint request.
type HintResult struct {
	HintOutcome
	View *View `json:"session"`
}

// SkipResult is the result of skipping a question.
type SkipResult struct {
	Accepted     bool  `json:"accepted"`
	NextQuestion int   `json:"nextQuestion"`
	LevelDone    bool  `json:"levelDone"`
	View         *View `json:"session"`
}

// FinishResult is the result of leaving a level.
type FinishResult struct {
	Level              domain.Level `json:"level"`
	TotalScore         int          `json:"totalScore"`
	QuestionsCompleted int          `json:"questionsCompleted"`
	ElapsedSeconds     int          `json:"elapsedSeconds"`
}

// Controller serializes every operation of one player. Oracle calls run
// without holding the lock; their verdicts are applied only if the turn
// token still matches.
type Controller struct {
	userID  string
	bank    *catalog.Bank
	arbiter Arbiter
	durable Durable
	cfg     ControllerConfig
	logger  *slog.Logger

	mu         sync.Mutex
	machine    *Machine
	turn       string
	pending    string
	levelDone  bool
	advance    *time.Timer
	lastActive time.Time
}

// NewController creates a controller with no active level.
func NewController(userID string, bank *catalog.Bank, arb Arbiter, durable Durable, cfg ControllerConfig, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		userID:     userID,
		bank:       bank,
		arbiter:    arb,
		durable:    durable,
		cfg:        cfg,
		logger:     logger.With("user_id", userID),
		turn:       uuid.NewString(),
		lastActive: cfg.Now(),
	}
}

// UserID returns the owning player.
func (c *Controller) UserID() string { return c.userID }

// StartLevel loads or creates the session for level and makes it active.
func (c *Controller) StartLevel(ctx context.Context, level domain.Level) (*View, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}

	m := StartLevel(ctx, c.durable, c.userID, level, c.cfg.Now, c.logger)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopAdvanceLocked()
	c.machine = m
	c.levelDone = false
	c.rotateTurnLocked()
	c.touchLocked()

	c.logger.Info("level started", "level", level, "question_id", m.Session().CurrentQuestionID)
	return buildView(m, c.bank, false), nil
}

// View returns a copy of the active session.
func (c *Controller) View() (*View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine == nil {
		return nil, ErrNoSession
	}
	return buildView(c.machine, c.bank, c.levelDone), nil
}

// StartQuestion moves to slot id. Navigating to a closed slot is a no-op.
func (c *Controller) StartQuestion(id int) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine == nil {
		return Outcome{}, ErrNoSession
	}
	c.touchLocked()

	switch err := c.machine.StartQuestion(id); {
	case err == nil:
	case errors.Is(err, ErrSlotClosed):
		return Outcome{Accepted: false, View: buildView(c.machine, c.bank, c.levelDone)}, nil
	default:
		return Outcome{}, err
	}

	c.stopAdvanceLocked()
	c.levelDone = false
	c.rotateTurnLocked()
	return Outcome{Accepted: true, View: buildView(c.machine, c.bank, false)}, nil
}

// Send plays one chat turn on the active slot.
func (c *Controller) Send(ctx context.Context, text string) (SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SendResult{}, ErrEmptyMessage
	}

	c.mu.Lock()
	m := c.machine
	if m == nil {
		c.mu.Unlock()
		return SendResult{}, ErrNoSession
	}
	if c.pending != "" {
		c.mu.Unlock()
		return SendResult{}, ErrTurnInFlight
	}
	if err := m.CanSend(); err != nil {
		c.mu.Unlock()
		return SendResult{}, err
	}
	s := m.Session()
	def, err := c.bank.Question(s.Level, s.CurrentQuestionID)
	if err != nil {
		c.mu.Unlock()
		return SendResult{}, fmt.Errorf("lookup question: %w", err)
	}
	c.touchLocked()

	if v, ok := c.arbiter.MatchLocal(text, def.HiddenWord); ok {
		res := c.applyVerdictLocked(text, v)
		c.mu.Unlock()
		return res, nil
	}

	token := c.turn
	c.pending = token
	history := append([]domain.Message(nil), s.Active().Messages...)
	questionID := s.CurrentQuestionID
	c.mu.Unlock()

	verdict := c.arbiter.Evaluate(ctx, text, def.HiddenWord, history)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.turn != token {
		c.logger.Info("dropping stale verdict", "question_id", questionID, "source", verdict.Source)
		return SendResult{}, ErrStaleTurn
	}
	c.pending = ""
	c.touchLocked()
	return c.applyVerdictLocked(text, verdict), nil
}

// applyVerdictLocked records one accepted turn. The user message, any notice
// and the reply land together so a dropped verdict leaves no trace.
func (c *Controller) applyVerdictLocked(text string, v arbiter.Verdict) SendResult {
	m := c.machine
	s := m.Session()
	q := s.Active()
	prompts := q.PromptsUsed + 1

	if err := m.RecordPrompt(prompts); err != nil {
		c.logger.Warn("failed to record prompt", "question_id", s.CurrentQuestionID, "error", err)
	}
	msgs := []domain.Message{domain.UserMessage(text)}
	if v.Notice != "" {
		msgs = append(msgs, domain.SystemMessage(v.Notice))
	}
	msgs = append(msgs, domain.AgentMessage(v.Reply))
	if err := m.AppendMessages(msgs...); err != nil {
		c.logger.Warn("failed to append transcript", "question_id", s.CurrentQuestionID, "error", err)
	}

	res := SendResult{Verdict: v}
	switch {
	case v.Solved:
		res.Solved = true
		res.Score, res.Completed = m.CompleteQuestion(true)
		res.NextQuestion = s.NextOpenAfter(s.CurrentQuestionID)
	case prompts >= domain.MaxPrompts:
		res.Exhausted = true
		res.Score, res.Completed = m.CompleteQuestion(false)
		res.NextQuestion = s.NextOpenAfter(s.CurrentQuestionID)
		res.LevelDone = res.NextQuestion == 0
		c.scheduleAdvanceLocked(res.NextQuestion)
	default:
		m.Persist()
	}

	res.View = buildView(m, c.bank, c.levelDone)
	return res
}

// scheduleAdvanceLocked moves to next after the configured delay, unless the
// player navigates first. next == 0 ends the level.
func (c *Controller) scheduleAdvanceLocked(next int) {
	if next == 0 {
		c.levelDone = true
		return
	}
	if c.cfg.AdvanceDelay <= 0 {
		c.advanceLocked(next)
		return
	}

	c.stopAdvanceLocked()
	token := c.turn
	c.advance = time.AfterFunc(c.cfg.AdvanceDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.turn != token || c.machine == nil {
			return
		}
		c.advance = nil
		c.advanceLocked(next)
	})
}

func (c *Controller) advanceLocked(next int) {
	if err := c.machine.StartQuestion(next); err != nil {
		c.logger.Warn("auto-advance rejected", "target", next, "error", err)
		return
	}
	c.rotateTurnLocked()
}

// Hint reveals the next hint of the active question.
func (c *Controller) Hint() (HintResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine == nil {
		return HintResult{}, ErrNoSession
	}
	c.touchLocked()

	s := c.machine.Session()
	def, err := c.bank.Question(s.Level, s.CurrentQuestionID)
	if err != nil {
		return HintResult{}, fmt.Errorf("lookup question: %w", err)
	}

	out, err := c.machine.RevealHint(def)
	if err != nil && !errors.Is(err, ErrSlotClosed) {
		return HintResult{}, err
	}
	if errors.Is(err, ErrSlotClosed) {
		c.logger.Warn("ignoring hint on closed question", "question_id", s.CurrentQuestionID)
		out = HintOutcome{Remaining: s.HintsRemaining}
	}
	return HintResult{HintOutcome: out, View: buildView(c.machine, c.bank, c.levelDone)}, nil
}

// Skip abandons the active question and moves to the next open slot above it.
func (c *Controller) Skip() (SkipResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine == nil {
		return SkipResult{}, ErrNoSession
	}
	c.touchLocked()

	if err := c.machine.SkipQuestion(); err != nil {
		return SkipResult{Accepted: false, View: buildView(c.machine, c.bank, c.levelDone)}, nil
	}

	c.stopAdvanceLocked()
	s := c.machine.Session()
	next := s.NextOpenAfter(s.CurrentQuestionID)
	if next == 0 {
		c.levelDone = true
	} else if err := c.machine.StartQuestion(next); err != nil {
		c.logger.Warn("advance after skip rejected", "target", next, "error", err)
	}
	c.rotateTurnLocked()

	return SkipResult{
		Accepted:     true,
		NextQuestion: next,
		LevelDone:    next == 0,
		View:         buildView(c.machine, c.bank, c.levelDone),
	}, nil
}

// Finish records the level result and tears the session down.
func (c *Controller) Finish() (FinishResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine == nil {
		return FinishResult{}, ErrNoSession
	}

	f := c.machine.FinishLevel()
	s := c.machine.Session()
	res := FinishResult{
		Level:              s.Level,
		TotalScore:         s.TotalScore,
		QuestionsCompleted: s.QuestionsCompleted,
		ElapsedSeconds:     f.ElapsedSeconds,
	}
	c.logger.Info("level finished", "level", s.Level, "score", s.TotalScore, "completed", s.QuestionsCompleted)
	c.discardLocked()
	return res, nil
}

// Discard drops the in-memory session. Durable progress is kept.
func (c *Controller) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine != nil {
		c.machine.Persist()
	}
	c.discardLocked()
}

// Idle reports whether the controller has been unused for longer than ttl
// and has no turn in flight.
func (c *Controller) Idle(now time.Time, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending == "" && now.Sub(c.lastActive) > ttl
}

func (c *Controller) discardLocked() {
	c.stopAdvanceLocked()
	c.machine = nil
	c.levelDone = false
	c.rotateTurnLocked()
}

func (c *Controller) rotateTurnLocked() {
	c.turn = uuid.NewString()
	c.pending = ""
}

func (c *Controller) stopAdvanceLocked() {
	if c.advance != nil {
		c.advance.Stop()
		c.advance = nil
	}
}

func (c *Controller) touchLocked() {
	c.lastActive = c.cfg.Now()
}
