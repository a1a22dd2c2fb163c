package arbiter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/domain"
)

// Source names the path that produced a verdict.
type Source string

const (
	SourceLocalMatch Source = "local_match"
	SourceOracle     Source = "oracle"
	SourceFallback   Source = "fallback"
)

// Canned replies used whenever the oracle is not consulted.
const (
	ReplyRestricted   = "Access restricted. I can't reveal the hidden word directly."
	ReplyAcknowledged = "Query acknowledged. Ask about properties, usage, or characteristics to get clues."
	ReplyRateLimited  = "Rate limited. Switching to local assistant. Ask about properties or usage."
	replyGrantedFmt   = "Access granted. The word is: "
)

// Notices surfaced as system messages when the oracle is degraded.
const (
	NoticeCoolingDown = "Oracle is rate limited. The local assistant is answering for now."
	NoticeDisabled    = "Oracle is unavailable. The local assistant will answer for the rest of this session."
	NoticeFailed      = "Oracle did not answer. The local assistant replied instead."
)

// Verdict is the gateway's decision for one turn.
type Verdict struct {
	Reply      string  `json:"reply"`
	Solved     bool    `json:"solved"`
	Source     Source  `json:"source"`
	Notice     string  `json:"notice,omitempty"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model,omitempty"`
}

// GatewayConfig tunes oracle usage.
type GatewayConfig struct {
	Timeout       time.Duration
	Cooldown      time.Duration
	MinConfidence float64
	Now           func() time.Time
}

// DefaultGatewayConfig returns default configuration.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Timeout:       20 * time.Second,
		Cooldown:      30 * time.Second,
		MinConfidence: 0.7,
	}
}

// Gateway combines the local matcher with an optional oracle.
// It is safe for concurrent use.
type Gateway struct {
	oracle Oracle
	health *Health
	cfg    GatewayConfig
	logger *slog.Logger
}

// NewGateway creates a gateway. A nil oracle means local matching only.
func NewGateway(oracle Oracle, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		oracle: oracle,
		health: NewHealth(cfg.Cooldown, cfg.Now),
		cfg:    cfg,
		logger: logger,
	}
}

// MatchLocal runs the instant-win check. It never blocks.
func (g *Gateway) MatchLocal(utterance, hiddenWord string) (Verdict, bool) {
	if !ContainsWordGuess(utterance, hiddenWord) {
		return Verdict{}, false
	}
	return Verdict{
		Reply:      replyGrantedFmt + hiddenWord,
		Solved:     true,
		Source:     SourceLocalMatch,
		Confidence: 1,
	}, true
}

// Evaluate judges one turn. It never fails: oracle problems degrade to the
// local fallback and are reported through Verdict.Notice.
func (g *Gateway) Evaluate(ctx context.Context, utterance, hiddenWord string, history []domain.Message) Verdict {
	if v, ok := g.MatchLocal(utterance, hiddenWord); ok {
		return v
	}
	if g.oracle == nil {
		return g.fallback(utterance, false, "")
	}

	if err := g.health.Allow(); err != nil {
		if errors.Is(err, ErrRateLimited) {
			return g.fallback(utterance, true, NoticeCoolingDown)
		}
		return g.fallback(utterance, false, NoticeDisabled)
	}

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	resp, err := g.oracle.Evaluate(callCtx, OracleRequest{
		HiddenWord: hiddenWord,
		Utterance:  utterance,
		History:    history,
	})
	if err != nil {
		classified := g.health.ObserveFailure(err)
		g.logger.Warn("oracle call failed, using local fallback", "error", classified)
		switch {
		case errors.Is(classified, ErrRateLimited):
			return g.fallback(utterance, true, NoticeCoolingDown)
		case Permanent(classified):
			g.logger.Error("oracle disabled for process lifetime", "error", classified)
			return g.fallback(utterance, false, NoticeDisabled)
		default:
			return g.fallback(utterance, true, NoticeFailed)
		}
	}
	g.health.ObserveSuccess()

	solved := resp.Solved && resp.Confidence > g.cfg.MinConfidence
	reply := resp.Reply
	switch {
	case reply == "":
		reply = ReplyAcknowledged
	case !solved && ContainsWordGuess(reply, hiddenWord):
		// The word may only be shown on an accepted solve.
		g.logger.Warn("oracle reply leaked the hidden word without an accepted verdict",
			"model", resp.Model, "confidence", resp.Confidence)
		reply = ReplyRestricted
	}

	return Verdict{
		Reply:      reply,
		Solved:     solved,
		Source:     SourceOracle,
		Confidence: resp.Confidence,
		Model:      resp.Model,
	}
}

func (g *Gateway) fallback(utterance string, limited bool, notice string) Verdict {
	reply := ReplyAcknowledged
	switch {
	case IsDirectAsk(utterance):
		reply = ReplyRestricted
	case limited:
		reply = ReplyRateLimited
	}
	return Verdict{Reply: reply, Source: SourceFallback, Notice: notice}
}

// Health returns the oracle health snapshot.
func (g *Gateway) Health() HealthSnapshot {
	if g.oracle == nil {
		return HealthSnapshot{Mode: ModeAbsent}
	}
	return g.health.Snapshot()
}

// Close releases the oracle.
func (g *Gateway) Close() error {
	if g.oracle == nil {
		return nil
	}
	return g.oracle.Close()
}
