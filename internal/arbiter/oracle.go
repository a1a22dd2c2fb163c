package arbiter

import (
	"context"

	"github.com/ashureev/jailbreak-labs/internal/domain"
)

// OracleRequest is one turn submitted for judgement.
type OracleRequest struct {
	HiddenWord string
	Utterance  string
	History    []domain.Message
}

// OracleResponse is the oracle's in-character reply plus its verdict.
type OracleResponse struct {
	Reply      string
	Solved     bool
	Confidence float64
	Reasoning  string
	Model      string
}

// Oracle is an external judge of whether the player has revealed the word.
type Oracle interface {
	// Evaluate judges one turn. Errors should be classifiable with Classify.
	Evaluate(ctx context.Context, req OracleRequest) (OracleResponse, error)

	// Close releases resources.
	Close() error
}

// Ensure GeminiOracle implements Oracle.
var _ Oracle = (*GeminiOracle)(nil)
