package game

import "errors"

var (
	// ErrNoSession is returned when the player has no active level.
	ErrNoSession = errors.New("no active level session")
	// ErrSlotClosed is returned when the active slot is completed or skipped.
	ErrSlotClosed = errors.New("question slot is closed")
	// ErrBudgetExhausted is returned once the prompt budget is spent.
	ErrBudgetExhausted = errors.New("prompt budget exhausted")
	// ErrStaleTurn is returned when a verdict arrives after the slot changed.
	ErrStaleTurn = errors.New("turn superseded")
	// ErrTurnInFlight is returned for a send while another send is pending.
	ErrTurnInFlight = errors.New("a message is already being evaluated")
	// ErrInvalidSlot is returned for a question id outside 1..5.
	ErrInvalidSlot = errors.New("invalid question slot")
	// ErrInvalidLevel is returned for an unknown difficulty tier.
	ErrInvalidLevel = errors.New("invalid level")
	// ErrEmptyMessage is returned for a blank chat message.
	ErrEmptyMessage = errors.New("message is empty")
)
