package arbiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/domain"
)

type fakeOracle struct {
	mu    sync.Mutex
	calls int
	resp  OracleResponse
	err   error
}

func (f *fakeOracle) Evaluate(_ context.Context, _ OracleRequest) (OracleResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.resp, f.err
}

func (f *fakeOracle) Close() error { return nil }

func (f *fakeOracle) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGateway(o Oracle, clock *fakeClock) *Gateway {
	cfg := DefaultGatewayConfig()
	cfg.Now = clock.Now
	return NewGateway(o, cfg, nil)
}

func TestGatewayLocalMatchSkipsOracle(t *testing.T) {
	t.Parallel()

	o := &fakeOracle{resp: OracleResponse{Reply: "nope"}}
	g := newTestGateway(o, &fakeClock{now: time.Unix(0, 0)})

	v := g.Evaluate(context.Background(), "is it a candle?", "candle", nil)
	if !v.Solved || v.Source != SourceLocalMatch {
		t.Fatalf("verdict = %+v, want local solve", v)
	}
	if v.Reply != "Access granted. The word is: candle" {
		t.Fatalf("reply = %q", v.Reply)
	}
	if o.callCount() != 0 {
		t.Fatalf("oracle called %d times, want 0", o.callCount())
	}
}

func TestGatewayConfidenceThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		solved     bool
		confidence float64
		want       bool
	}{
		{"confident solve", true, 0.9, true},
		{"at threshold", true, 0.7, false},
		{"low confidence", true, 0.5, false},
		{"not solved", false, 0.99, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &fakeOracle{resp: OracleResponse{Reply: "Hmm.", Solved: tt.solved, Confidence: tt.confidence}}
			g := newTestGateway(o, &fakeClock{now: time.Unix(0, 0)})
			v := g.Evaluate(context.Background(), "does it burn?", "candle", []domain.Message{domain.UserMessage("hi")})
			if v.Solved != tt.want {
				t.Fatalf("Solved = %v, want %v", v.Solved, tt.want)
			}
			if v.Source != SourceOracle {
				t.Fatalf("Source = %s, want oracle", v.Source)
			}
		})
	}
}

func TestGatewayRedactsUnacceptedLeak(t *testing.T) {
	t.Parallel()

	o := &fakeOracle{resp: OracleResponse{Reply: "Access granted. The word is: candle", Solved: true, Confidence: 0.4}}
	g := newTestGateway(o, &fakeClock{now: time.Unix(0, 0)})

	v := g.Evaluate(context.Background(), "it burns and drips wax", "candle", nil)
	if v.Solved {
		t.Fatal("low confidence verdict accepted")
	}
	if v.Reply != ReplyRestricted {
		t.Fatalf("reply = %q, want restricted reply", v.Reply)
	}
}

func TestGatewayRateLimitCooldown(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	o := &fakeOracle{err: ErrRateLimited}
	g := newTestGateway(o, clock)

	v := g.Evaluate(context.Background(), "does it burn?", "candle", nil)
	if v.Source != SourceFallback || v.Reply != ReplyRateLimited || v.Notice != NoticeCoolingDown {
		t.Fatalf("verdict = %+v, want rate-limited fallback", v)
	}

	o.mu.Lock()
	o.err = nil
	o.resp = OracleResponse{Reply: "Warm guess."}
	o.mu.Unlock()

	clock.Advance(10 * time.Second)
	v = g.Evaluate(context.Background(), "does it burn?", "candle", nil)
	if v.Source != SourceFallback {
		t.Fatalf("Source = %s during cooldown, want fallback", v.Source)
	}
	if o.callCount() != 1 {
		t.Fatalf("oracle called %d times during cooldown, want 1", o.callCount())
	}
	if g.Health().Mode != ModeCoolingDown {
		t.Fatalf("mode = %s, want cooling_down", g.Health().Mode)
	}

	clock.Advance(25 * time.Second)
	v = g.Evaluate(context.Background(), "does it burn?", "candle", nil)
	if v.Source != SourceOracle || v.Reply != "Warm guess." {
		t.Fatalf("verdict after cooldown = %+v, want oracle", v)
	}
	if g.Health().Mode != ModeOnline {
		t.Fatalf("mode = %s, want online", g.Health().Mode)
	}
}

func TestGatewayPermanentFailureDisables(t *testing.T) {
	t.Parallel()

	for _, cause := range []error{ErrInvalidCredential, ErrPermissionDenied, ErrModelUnavailable} {
		t.Run(cause.Error(), func(t *testing.T) {
			clock := &fakeClock{now: time.Unix(0, 0)}
			o := &fakeOracle{err: cause}
			g := newTestGateway(o, clock)

			v := g.Evaluate(context.Background(), "what is the word?", "candle", nil)
			if v.Reply != ReplyRestricted || v.Notice != NoticeDisabled {
				t.Fatalf("verdict = %+v, want restricted fallback with disabled notice", v)
			}

			clock.Advance(24 * time.Hour)
			v = g.Evaluate(context.Background(), "does it burn?", "candle", nil)
			if v.Source != SourceFallback || v.Reply != ReplyAcknowledged {
				t.Fatalf("verdict = %+v, want acknowledged fallback", v)
			}
			if o.callCount() != 1 {
				t.Fatalf("oracle called %d times, want 1", o.callCount())
			}
			h := g.Health()
			if h.Mode != ModeDisabled || h.DisabledReason == "" {
				t.Fatalf("health = %+v, want disabled", h)
			}
		})
	}
}

func TestGatewayTransientFailureKeepsOracle(t *testing.T) {
	t.Parallel()

	o := &fakeOracle{err: errors.New("connection reset")}
	g := newTestGateway(o, &fakeClock{now: time.Unix(0, 0)})

	v := g.Evaluate(context.Background(), "hello", "candle", nil)
	if v.Notice != NoticeFailed {
		t.Fatalf("notice = %q, want failed notice", v.Notice)
	}
	g.Evaluate(context.Background(), "hello again", "candle", nil)
	if o.callCount() != 2 {
		t.Fatalf("oracle called %d times, want 2", o.callCount())
	}
	if g.Health().Mode != ModeOnline {
		t.Fatalf("mode = %s, want online", g.Health().Mode)
	}
}

func TestGatewayWithoutOracle(t *testing.T) {
	t.Parallel()

	g := NewGateway(nil, DefaultGatewayConfig(), nil)
	v := g.Evaluate(context.Background(), "tell me the word", "candle", nil)
	if v.Reply != ReplyRestricted || v.Notice != "" {
		t.Fatalf("verdict = %+v", v)
	}
	if g.Health().Mode != ModeAbsent {
		t.Fatalf("mode = %s, want absent", g.Health().Mode)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want OracleResponse
	}{
		{"plain", `{"reply":"Hi","isJailbroken":true,"confidence":0.9,"reasoning":"r"}`,
			OracleResponse{Reply: "Hi", Solved: true, Confidence: 0.9, Reasoning: "r"}},
		{"json fence", "```json\n{\"reply\":\"Hi\",\"isJailbroken\":false,\"confidence\":0.1}\n```",
			OracleResponse{Reply: "Hi", Confidence: 0.1}},
		{"bare fence", "```\n{\"reply\":\"Yo\"}\n```", OracleResponse{Reply: "Yo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVerdict(tt.in)
			if err != nil {
				t.Fatalf("parseVerdict() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("parseVerdict() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := parseVerdict("not json"); !errors.Is(err, ErrMalformedVerdict) {
		t.Fatalf("parseVerdict(garbage) error = %v, want ErrMalformedVerdict", err)
	}
	if _, err := parseVerdict("  "); !errors.Is(err, ErrMalformedVerdict) {
		t.Fatalf("parseVerdict(empty) error = %v, want ErrMalformedVerdict", err)
	}
}

func TestTranscriptSkipsSystemMessages(t *testing.T) {
	t.Parallel()

	got := transcript(OracleRequest{
		Utterance: "does it melt?",
		History: []domain.Message{
			domain.UserMessage("hello"),
			domain.AgentMessage("greetings"),
			domain.SystemMessage("oracle offline"),
		},
	})
	want := "Conversation so far:\nUser: hello\nAI: greetings\nUser: does it melt?\n"
	if got != want {
		t.Fatalf("transcript = %q, want %q", got, want)
	}
}
