package domain

// QuestionDefinition is one catalog entry. It is never mutated after load.
type QuestionDefinition struct {
	Level      Level    `json:"level"`
	ID         int      `json:"id"`
	Title      string   `json:"title"`
	HiddenWord string   `json:"-"`
	Hints      []string `json:"-"`
}

// Hint returns the hint at position i (0-based).
// Returns false once the ordered list is exhausted.
func (q QuestionDefinition) Hint(i int) (string, bool) {
	if i < 0 || i >= len(q.Hints) {
		return "", false
	}
	return q.Hints[i], true
}

// Role tags who authored a transcript message.
type Role string

const (
	// RoleUser marks messages typed by the player.
	RoleUser Role = "user"
	// RoleAgent marks replies from the guarded agent, including hints.
	RoleAgent Role = "agent"
	// RoleSystem marks in-conversation notices such as oracle degradation.
	RoleSystem Role = "system"
)

// Message is a single transcript entry.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// UserMessage builds a player message.
func UserMessage(text string) Message { return Message{Role: RoleUser, Text: text} }

// AgentMessage builds an agent reply.
func AgentMessage(text string) Message { return Message{Role: RoleAgent, Text: text} }

// SystemMessage builds a notice.
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Text: text} }

// SlotState is the lifecycle position of a question slot.
type SlotState string

const (
	SlotNotStarted SlotState = "not_started"
	SlotInProgress SlotState = "in_progress"
	SlotCompleted  SlotState = "completed"
	SlotSkipped    SlotState = "skipped"
)

// QuestionProgress is the per-session state of one slot.
//
// Once IsCompleted is set, PromptsUsed, Messages and Jailbroken are frozen.
type QuestionProgress struct {
	QuestionID       int       `json:"questionId"`
	PromptsUsed      int       `json:"promptsUsed"`
	IsCompleted      bool      `json:"isCompleted"`
	IsFailed         bool      `json:"isFailed"`
	TimeSpentSeconds int       `json:"timeSpent"`
	Messages         []Message `json:"messages"`
	Jailbroken       bool      `json:"jailbroken"`
	HintsRevealed    int       `json:"hintsRevealed"`
	Score            int       `json:"score"`
}

// NewQuestionProgress returns an untouched slot.
func NewQuestionProgress(id int) *QuestionProgress {
	return &QuestionProgress{QuestionID: id, Messages: []Message{}}
}

// State derives the slot's lifecycle state from its flags.
func (q *QuestionProgress) State() SlotState {
	switch {
	case q.IsCompleted:
		return SlotCompleted
	case q.IsFailed:
		return SlotSkipped
	case q.PromptsUsed > 0 || len(q.Messages) > 0 || q.HintsRevealed > 0:
		return SlotInProgress
	default:
		return SlotNotStarted
	}
}

// Closed reports whether the slot is terminal for play.
func (q *QuestionProgress) Closed() bool {
	return q.IsCompleted || q.IsFailed
}

// Clone returns a deep copy.
func (q *QuestionProgress) Clone() *QuestionProgress {
	if q == nil {
		return nil
	}
	c := *q
	c.Messages = append([]Message(nil), q.Messages...)
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return &c
}
