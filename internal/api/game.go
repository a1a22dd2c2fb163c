package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/ashureev/jailbreak-labs/internal/domain"
	"github.com/ashureev/jailbreak-labs/internal/game"
	"github.com/ashureev/jailbreak-labs/internal/identity"
	"github.com/go-chi/chi/v5"
)

const (
	maxChatBody    = 16 << 10
	maxMessageRune = 1000
)

// GameHandler exposes the level session operations.
type GameHandler struct {
	*Handler
	throttle *Throttle
}

// NewGameHandler creates a game handler. A nil throttle disables send limits.
func NewGameHandler(base *Handler, throttle *Throttle) *GameHandler {
	return &GameHandler{Handler: base, throttle: throttle}
}

// RegisterRoutes registers game routes.
func (h *GameHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/levels", h.ListLevels)
		r.Post("/levels/{level}/start", h.StartLevel)
		r.Get("/session", h.GetSession)
		r.Delete("/session", h.DiscardSession)
		r.Post("/questions/{id}/start", h.StartQuestion)
		r.With(h.sendLimit).Post("/chat", h.Chat)
		r.Post("/hint", h.Hint)
		r.Post("/skip", h.Skip)
		r.Post("/finish", h.Finish)
	})
}

func (h *GameHandler) sendLimit(next http.Handler) http.Handler {
	if h.throttle == nil {
		return next
	}
	return h.throttle.Middleware(next)
}

// controller returns the caller's live controller or writes 404.
func (h *GameHandler) controller(w http.ResponseWriter, r *http.Request) (*game.Controller, bool) {
	uid, ok := userID(w, r)
	if !ok {
		return nil, false
	}
	c, ok := h.registry.Get(uid)
	if !ok {
		gameError(w, r, game.ErrNoSession)
		return nil, false
	}
	return c, true
}

// GetMe returns the caller's identity and durable totals.
func (h *GameHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	resp := map[string]interface{}{
		"userId":             uid,
		"name":               identity.NameFromContext(r.Context()),
		"totalScore":         0,
		"questionsCompleted": 0,
	}
	profile, err := h.repo.GetProfile(r.Context(), uid)
	if err != nil {
		slog.Warn("Failed to load profile", "user_id", uid, "error", err)
	}
	if profile != nil {
		resp["name"] = profile.Name
		resp["totalScore"] = profile.TotalScore
		resp["questionsCompleted"] = profile.QuestionsCompleted
		resp["levelCompleted"] = profile.LevelCompleted
		resp["completionTime"] = profile.CompletionTime
	}
	JSON(w, http.StatusOK, resp)
}

type questionSummary struct {
	ID    int              `json:"id"`
	Title string           `json:"title"`
	State domain.SlotState `json:"state"`
	Score int              `json:"score"`
}

type levelSummary struct {
	Level              domain.Level      `json:"level"`
	CurrentQuestion    int               `json:"currentQuestion"`
	TotalScore         int               `json:"totalScore"`
	QuestionsCompleted int               `json:"questionsCompleted"`
	HintsRemaining     int               `json:"hintsRemaining"`
	Questions          []questionSummary `json:"questions"`
}

// ListLevels returns the catalog with the caller's saved progress per level.
func (h *GameHandler) ListLevels(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	profile, err := h.repo.GetProfile(r.Context(), uid)
	if err != nil {
		// Storage down: show the catalog without saved progress.
		slog.Warn("Failed to load profile for level list", "user_id", uid, "error", err)
	}

	levels := make([]levelSummary, 0, len(domain.Levels))
	for _, level := range domain.Levels {
		defs, err := h.bank.ForLevel(level)
		if err != nil {
			gameError(w, r, err)
			return
		}
		levels = append(levels, summarizeLevel(level, defs, profile.LevelProgressFor(level)))
	}
	JSON(w, http.StatusOK, map[string]interface{}{"levels": levels})
}

func summarizeLevel(level domain.Level, defs []domain.QuestionDefinition, saved *domain.LevelProgress) levelSummary {
	s := levelSummary{
		Level:           level,
		CurrentQuestion: 1,
		HintsRemaining:  domain.HintsPerLevel,
		Questions:       make([]questionSummary, 0, len(defs)),
	}
	if saved != nil {
		s.CurrentQuestion = max(1, saved.CurrentQuestion)
		s.TotalScore = saved.TotalScore
		s.QuestionsCompleted = saved.QuestionsCompleted
		s.HintsRemaining = saved.HintsRemaining
	}
	for _, def := range defs {
		q := questionSummary{ID: def.ID, Title: def.Title, State: domain.SlotNotStarted}
		if saved != nil {
			if p := saved.Questions[def.ID]; p != nil {
				q.State = p.State()
				q.Score = p.Score
			}
		}
		s.Questions = append(s.Questions, q)
	}
	return s
}

// StartLevel loads or creates the caller's session for a level.
func (h *GameHandler) StartLevel(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	level, err := domain.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.registry.GetOrCreate(uid).StartLevel(r.Context(), level)
	if err != nil {
		gameError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"session": view})
}

// GetSession returns the caller's active session, transcript included.
func (h *GameHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	view, err := c.View()
	if err != nil {
		gameError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"session": view})
}

// DiscardSession drops the caller's in-memory session.
func (h *GameHandler) DiscardSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	h.registry.Remove(uid)
	w.WriteHeader(http.StatusNoContent)
}

// StartQuestion navigates to a question slot.
func (h *GameHandler) StartQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "question id must be a number")
		return
	}
	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	out, err := c.StartQuestion(id)
	if err != nil {
		gameError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, out)
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat plays one turn against the hidden word.
func (h *GameHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if utf8.RuneCountInString(req.Message) > maxMessageRune {
		Error(w, http.StatusBadRequest, "message too long")
		return
	}
	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	// The turn completes even if the client goes away mid-evaluation.
	res, err := c.Send(context.WithoutCancel(r.Context()), req.Message)
	if err != nil {
		gameError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Hint reveals the next hint for the active question.
func (h *GameHandler) Hint(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	res, err := c.Hint()
	if err != nil {
		gameError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Skip abandons the active question.
func (h *GameHandler) Skip(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	res, err := c.Skip()
	if err != nil {
		gameError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Finish records the level result and ends the session.
func (h *GameHandler) Finish(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	res, err := c.Finish()
	if err != nil {
		gameError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}
