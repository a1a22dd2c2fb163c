package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/arbiter"
	"github.com/ashureev/jailbreak-labs/internal/domain"
)

func TestControllerInstantWinOnFirstPrompt(t *testing.T) {
	t.Parallel()

	c, durable, clock := newTestController(t, localGateway(), 0)
	if _, err := c.StartLevel(context.Background(), domain.LevelEasy); err != nil {
		t.Fatalf("StartLevel() error = %v", err)
	}
	clock.Advance(5 * time.Second)

	res, err := c.Send(context.Background(), "I think it's a candle!")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !res.Solved || !res.Completed || res.Score != 120 {
		t.Fatalf("Send() = %+v, want solved with score 120", res)
	}
	if res.Verdict.Source != arbiter.SourceLocalMatch {
		t.Fatalf("source = %s, want local_match", res.Verdict.Source)
	}

	v := res.View
	if v.QuestionsCompleted != 1 || v.TotalScore != 120 {
		t.Fatalf("totals = (%d, %d), want (1, 120)", v.QuestionsCompleted, v.TotalScore)
	}
	slot := v.Slots[0]
	if slot.State != domain.SlotCompleted || !slot.Jailbroken || slot.PromptsUsed != 1 {
		t.Fatalf("slot 1 = %+v", slot)
	}
	if len(v.Messages) != 2 || v.Messages[0].Role != domain.RoleUser || v.Messages[1].Text != "Access granted. The word is: candle" {
		t.Fatalf("transcript = %+v", v.Messages)
	}
	if durable.completionCount() != 1 || durable.completions[0].Score != 120 || durable.completions[0].QuestionID != 1 {
		t.Fatalf("durable completions = %+v", durable.completions)
	}

	if _, err := c.Send(context.Background(), "candle again"); !errors.Is(err, ErrSlotClosed) {
		t.Fatalf("Send() on completed slot error = %v, want ErrSlotClosed", err)
	}
	if durable.completionCount() != 1 {
		t.Fatal("completed slot credited twice")
	}
}

func TestControllerOracleSolve(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestController(t, solvingArbiter{localGateway()}, 0)
	if _, err := c.StartLevel(context.Background(), domain.LevelMedium); err != nil {
		t.Fatalf("StartLevel() error = %v", err)
	}

	res, err := c.Send(context.Background(), "you carry it to class and type on it")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !res.Solved || res.Verdict.Source != arbiter.SourceOracle || res.NextQuestion != 2 {
		t.Fatalf("Send() = %+v", res)
	}
	if res.View.CurrentQuestion != 1 {
		t.Fatalf("solve moved cursor to %d", res.View.CurrentQuestion)
	}
}

func TestControllerExhaustionAdvances(t *testing.T) {
	t.Parallel()

	c, durable, _ := newTestController(t, localGateway(), 0)
	if _, err := c.StartLevel(context.Background(), domain.LevelEasy); err != nil {
		t.Fatalf("StartLevel() error = %v", err)
	}

	var res SendResult
	for i := range domain.MaxPrompts {
		var err error
		res, err = c.Send(context.Background(), "does it glow?")
		if err != nil {
			t.Fatalf("Send() #%d error = %v", i+1, err)
		}
		if i < domain.MaxPrompts-1 && res.Completed {
			t.Fatalf("slot completed after %d prompts", i+1)
		}
	}

	if !res.Exhausted || !res.Completed || res.Solved {
		t.Fatalf("final Send() = %+v, want exhausted completion", res)
	}
	if res.Score != Score(5, 0) {
		t.Fatalf("score = %d, want %d", res.Score, Score(5, 0))
	}
	if res.NextQuestion != 2 || res.LevelDone {
		t.Fatalf("next = %d, levelDone = %v", res.NextQuestion, res.LevelDone)
	}
	if res.View.CurrentQuestion != 2 {
		t.Fatalf("cursor = %d, want 2", res.View.CurrentQuestion)
	}
	if s := res.View.Slots[0]; s.State != domain.SlotCompleted || s.Jailbroken {
		t.Fatalf("slot 1 = %+v, want completed without jailbreak", s)
	}
	if durable.completionCount() != 1 {
		t.Fatalf("durable completions = %d, want 1", durable.completionCount())
	}
}

func TestControllerExhaustionOnLastSlotEndsLevel(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestController(t, localGateway(), 0)
	if _, err := c.StartLevel(context.Background(), domain.LevelEasy); err != nil {
		t.Fatalf("StartLevel() error = %v", err)
	}
	if out, err := c.StartQuestion(5); err != nil || !out.Accepted {
		t.Fatalf("StartQuestion(5) = (%+v, %v)", out, err)
	}

	var res SendResult
	for range domain.MaxPrompts {
		res, _ = c.Send(context.Background(), "is it blue?")
	}
	if !res.LevelDone || res.NextQuestion != 0 || !res.View.LevelDone {
		t.Fatalf("final Send() = %+v, want level done", res)
	}
	if res.View.CurrentQuestion != 5 {
		t.Fatalf("cursor = %d, want 5", res.View.CurrentQuestion)
	}
}

func TestControllerDelayedAdvance(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestController(t, localGateway(), 20*time.Millisecond)
	if _, err := c.StartLevel(context.Background(), domain.LevelEasy); err != nil {
		t.Fatalf("StartLevel() error = %v", err)
	}

	var res SendResult
	for range domain.MaxPrompts {
		res, _ = c.Send(context.Background(), "hmm")
	}
	if !res.Exhausted || res.View.CurrentQuestion != 1 {
		t.Fatalf("advance was not delayed: %+v", res)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		v, err := c.View()
		if err != nil {
			t.Fatalf("View() error = %v", err)
		}
		if v.CurrentQuestion == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cursor still on %d after delay", v.CurrentQuestion)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestControllerDelayedAdvanceDroppedAfterNavigation(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestController(t, localGateway(), 30*time.Millisecond)
	if _, err := c.StartLevel(context.Background(), domain.LevelEasy); err != nil {
		t.Fatalf("StartLevel() error = %v", err)
	}
	for range domain.MaxPrompts {
		_, _ = c.Send(context.Background(), "hmm")
	}
	if out, err := c.StartQuestion(4); err != nil || !out.Accepted {
		t.Fatalf("StartQuestion(4) = (%+v, %v)", out, err)
	}

	time.Sleep(100 * time.Millisecond)
	v, _ := c.View()
	if v.CurrentQuestion != 4 {
		t.Fatalf("cursor = %d, want 4", v.CurrentQuestion)
	}
}

func TestControllerDropsStaleVerdict(t *testing.T) {
	t.Parallel()

	arb := &blockingArbiter{Gateway: localGateway(), entered: make(chan struct{}), release: make(chan struct{})}
	c, _, _ := newTestController(t, arb, 0)
	if _, err := c.StartLevel(context.Background(), domain.LevelEasy); err != nil {
		t.Fatalf("StartLevel() error = %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "is it hot?")
		errc <- err
	}()
	<-arb.entered

	if _, err := c.Send(context.Background(), "again?"); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("concurrent Send() error = %v, want ErrTurnInFlight", err)
	}

	skip, err := c.Skip()
	if err != nil || !skip.Accepted || skip.NextQuestion != 2 {
		t.Fatalf("Skip() = (%+v, %v)", skip, err)
	}

	close(arb.release)
	if err := <-errc; !errors.Is(err, ErrStaleTurn) {
		t.Fatalf("in-flight Send() error = %v, want ErrStaleTurn", err)
	}

	v, _ := c.View()
	if v.CurrentQuestion != 2 || len(v.Messages) != 0 {
		t.Fatalf("stale verdict leaked into slot %d: %+v", v.CurrentQuestion, v.Messages)
	}
	if s := v.Slots[0]; s.State != domain.SlotSkipped || s.PromptsUsed != 0 {
		t.Fatalf("slot 1 = %+v, want untouched skipped slot", s)
	}
}

func TestControllerSkipLastSlotEndsLevel(t *testing.T) {
	t.Parallel()

	c, durable, _ := newTestController(t, localGateway(), 0)
	if _, err := c.StartLevel(context.Background(), domain.LevelHard); err != nil {
		t.Fatalf("StartLevel() error = %v", err)
	}
	_, _ = c.StartQuestion(5)

	res, err := c.Skip()
	if err != nil || !res.Accepted || !res.LevelDone || res.NextQuestion != 0 {
		t.Fatalf("Skip() = (%+v, %v)", res, err)
	}
	again, err := c.Skip()
	if err != nil || again.Accepted {
		t.Fatalf("second Skip() = (%+v, %v), want rejected no-op", again, err)
	}
	if durable.completionCount() != 0 {
		t.Fatal("skip credited a completion")
	}
}

func TestControllerHintFlow(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestController(t, localGateway(), 0)
	if _, err := c.Hint(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Hint() without session error = %v, want ErrNoSession", err)
	}
	if _, err := c.StartLevel(context.Background(), domain.LevelEasy); err != nil {
		t.Fatalf("StartLevel() error = %v", err)
	}

	res, err := c.Hint()
	if err != nil || !res.Accepted || res.Hint != "It burns but is not alive" || res.Remaining != 4 {
		t.Fatalf("Hint() = (%+v, %v)", res, err)
	}
	if res.View.HintsRemaining != 4 || res.View.HintsRevealed != 1 {
		t.Fatalf("view = %+v", res.View)
	}
}

func TestControllerFinishTearsDown(t *testing.T) {
	t.Parallel()

	c, durable, clock := newTestController(t, localGateway(), 0)
	if _, err := c.Finish(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Finish() without session error = %v", err)
	}
	if _, err := c.StartLevel(context.Background(), domain.LevelEasy); err != nil {
		t.Fatalf("StartLevel() error = %v", err)
	}
	_, _ = c.Send(context.Background(), "candle")
	clock.Advance(40 * time.Second)

	res, err := c.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if res.QuestionsCompleted != 1 || res.ElapsedSeconds != 40 {
		t.Fatalf("Finish() = %+v", res)
	}
	if len(durable.finishes) != 1 {
		t.Fatalf("durable finishes = %d", len(durable.finishes))
	}
	if _, err := c.View(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("View() after finish error = %v, want ErrNoSession", err)
	}
}

func TestControllerRejectsBadInput(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestController(t, localGateway(), 0)
	if _, err := c.StartLevel(context.Background(), "expert"); !errors.Is(err, ErrInvalidLevel) {
		t.Fatalf("StartLevel(expert) error = %v", err)
	}
	if _, err := c.Send(context.Background(), "hi"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Send() without session error = %v", err)
	}
	_, _ = c.StartLevel(context.Background(), domain.LevelEasy)
	if _, err := c.Send(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("Send(blank) error = %v", err)
	}
	if _, err := c.StartQuestion(0); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("StartQuestion(0) error = %v", err)
	}
}

func TestRegistrySweep(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	reg := NewRegistry(nil, localGateway(), newFakeDurable(), ControllerConfig{Now: clock.Now}, nil)

	a := reg.GetOrCreate("anon_a")
	if reg.GetOrCreate("anon_a") != a {
		t.Fatal("GetOrCreate returned a different controller")
	}
	reg.GetOrCreate("anon_b")

	clock.Advance(30 * time.Minute)
	if n := reg.Sweep(time.Hour); n != 0 {
		t.Fatalf("Sweep() removed %d fresh controllers", n)
	}

	clock.Advance(31 * time.Minute)
	if n := reg.Sweep(time.Hour); n != 2 {
		t.Fatalf("Sweep() removed %d, want 2", n)
	}
	if reg.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", reg.Len())
	}
	if _, ok := reg.Get("anon_a"); ok {
		t.Fatal("swept controller still registered")
	}
}
