package api

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/domain"
	"github.com/go-chi/chi/v5"
)

// LeaderboardEntry is one ranked player. Opaque user ids stay private; the
// board shows display names only.
type LeaderboardEntry struct {
	Rank               int          `json:"rank"`
	Name               string       `json:"name"`
	TotalScore         int          `json:"totalScore"`
	QuestionsCompleted int          `json:"questionsCompleted"`
	LevelCompleted     domain.Level `json:"levelCompleted,omitempty"`
	CompletionTime     int          `json:"completionTime"`
}

// LeaderboardStats aggregates over every listed player.
type LeaderboardStats struct {
	Participants     int `json:"participants"`
	AverageScore     int `json:"averageScore"`
	AverageQuestions int `json:"averageQuestions"`
}

// Leaderboard is a ranked snapshot of all players.
type Leaderboard struct {
	Entries     []LeaderboardEntry `json:"entries"`
	Stats       LeaderboardStats   `json:"stats"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

// BuildLeaderboard ranks profiles by cumulative score, highest first, with
// 1-based ranks. Equal scores keep their input order.
func BuildLeaderboard(profiles []*domain.UserProfile, now time.Time) Leaderboard {
	sorted := slices.Clone(profiles)
	slices.SortStableFunc(sorted, func(a, b *domain.UserProfile) int {
		return cmp.Compare(b.TotalScore, a.TotalScore)
	})

	lb := Leaderboard{
		Entries:     make([]LeaderboardEntry, 0, len(sorted)),
		GeneratedAt: now,
	}
	var scoreSum, questionSum int
	for i, p := range sorted {
		lb.Entries = append(lb.Entries, LeaderboardEntry{
			Rank:               i + 1,
			Name:               p.Name,
			TotalScore:         p.TotalScore,
			QuestionsCompleted: p.QuestionsCompleted,
			LevelCompleted:     p.LevelCompleted,
			CompletionTime:     p.CompletionTime,
		})
		scoreSum += p.TotalScore
		questionSum += p.QuestionsCompleted
	}

	if n := len(sorted); n > 0 {
		lb.Stats = LeaderboardStats{
			Participants:     n,
			AverageScore:     int(math.Round(float64(scoreSum) / float64(n))),
			AverageQuestions: int(math.Round(float64(questionSum) / float64(n))),
		}
	}
	return lb
}

// LeaderboardHandler serves the leaderboard and its live feed.
type LeaderboardHandler struct {
	*Handler
	hub   *Hub
	limit int
	now   func() time.Time
}

// NewLeaderboardHandler creates a leaderboard handler listing up to limit
// players (all when limit <= 0). origins are websocket origin patterns.
func NewLeaderboardHandler(base *Handler, limit int, origins []string) *LeaderboardHandler {
	h := &LeaderboardHandler{Handler: base, limit: limit, now: time.Now}
	h.hub = NewHub(h.Snapshot, origins, nil)
	return h
}

// Hub returns the live feed hub.
func (h *LeaderboardHandler) Hub() *Hub { return h.hub }

// RegisterRoutes registers leaderboard routes.
func (h *LeaderboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/leaderboard", h.GetLeaderboard)
	r.Get("/ws/leaderboard", h.hub.ServeHTTP)
}

// Snapshot builds the current leaderboard from storage.
func (h *LeaderboardHandler) Snapshot(ctx context.Context) (Leaderboard, error) {
	profiles, err := h.repo.ListProfiles(ctx, h.limit)
	if err != nil {
		return Leaderboard{}, fmt.Errorf("list profiles: %w", err)
	}
	return BuildLeaderboard(profiles, h.now().UTC()), nil
}

// GetLeaderboard returns the current leaderboard.
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.Snapshot(r.Context())
	if err != nil {
		slog.Error("Failed to build leaderboard", "error", err)
		Error(w, http.StatusServiceUnavailable, "leaderboard unavailable")
		return
	}
	JSON(w, http.StatusOK, lb)
}
