package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/domain"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const profilesTable = "users"

// SupabaseStore implements Repository on a Supabase (PostgREST) table with
// the same columns as the SQLite schema; progress_json is a jsonb column.
type SupabaseStore struct {
	client *supa.Client
}

var _ Repository = (*SupabaseStore)(nil)

type profileRow struct {
	UserID             string                                 `json:"user_id"`
	Email              string                                 `json:"email"`
	Name               string                                 `json:"name"`
	TotalScore         int                                    `json:"total_score"`
	QuestionsCompleted int                                    `json:"questions_completed"`
	LevelCompleted     string                                 `json:"level_completed"`
	CompletionTime     int                                    `json:"completion_time"`
	Progress           map[domain.Level]*domain.LevelProgress `json:"progress_json"`
	Version            int64                                  `json:"version"`
	CreatedAt          time.Time                              `json:"created_at"`
	UpdatedAt          time.Time                              `json:"updated_at"`
}

func toRow(p *domain.UserProfile) profileRow {
	progress := p.Progress
	if progress == nil {
		progress = map[domain.Level]*domain.LevelProgress{}
	}
	return profileRow{
		UserID:             p.ID,
		Email:              p.Email,
		Name:               p.Name,
		TotalScore:         p.TotalScore,
		QuestionsCompleted: p.QuestionsCompleted,
		LevelCompleted:     string(p.LevelCompleted),
		CompletionTime:     p.CompletionTime,
		Progress:           progress,
		Version:            p.Version,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func (r profileRow) profile() *domain.UserProfile {
	progress := r.Progress
	if progress == nil {
		progress = make(map[domain.Level]*domain.LevelProgress)
	}
	return &domain.UserProfile{
		ID:                 r.UserID,
		Email:              r.Email,
		Name:               r.Name,
		TotalScore:         r.TotalScore,
		QuestionsCompleted: r.QuestionsCompleted,
		LevelCompleted:     domain.Level(r.LevelCompleted),
		CompletionTime:     r.CompletionTime,
		Progress:           progress,
		Version:            r.Version,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// NewSupabase creates a Supabase-backed repository.
func NewSupabase(url, key string) (*SupabaseStore, error) {
	client, err := supa.NewClient(url, key, &supa.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

// Ping issues a trivial query against the profiles table.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var rows []profileRow
	if _, err := s.client.From(profilesTable).Select("user_id", "", false).Limit(1, "").ExecuteTo(&rows); err != nil {
		return fmt.Errorf("ping supabase: %w", err)
	}
	return nil
}

// GetProfile retrieves a profile by user ID.
func (s *SupabaseStore) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []profileRow
	_, err := s.client.From(profilesTable).
		Select("*", "", false).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].profile(), nil
}

// EnsureProfile inserts p unless the user already has a profile.
func (s *SupabaseStore) EnsureProfile(ctx context.Context, p *domain.UserProfile) error {
	err := s.insertProfile(ctx, p)
	if errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}

// UpdateProfile applies fn under an optimistic version check.
func (s *SupabaseStore) UpdateProfile(ctx context.Context, userID string, fn func(*domain.UserProfile) (bool, error)) (*domain.UserProfile, bool, error) {
	return updateProfile(ctx, s, userID, fn, nil)
}

func (s *SupabaseStore) insertProfile(ctx context.Context, p *domain.UserProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := toRow(p)
	row.Version = 1

	var inserted []profileRow
	_, err := s.client.From(profilesTable).
		Insert(row, false, "", "representation", "").
		ExecuteTo(&inserted)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *SupabaseStore) replaceProfile(ctx context.Context, p *domain.UserProfile, expected int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := toRow(p)
	row.Version = expected + 1

	var updated []profileRow
	_, err := s.client.From(profilesTable).
		Update(row, "representation", "").
		Eq("user_id", p.ID).
		Eq("version", strconv.FormatInt(expected, 10)).
		ExecuteTo(&updated)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if len(updated) == 0 {
		return ErrConflict
	}
	return nil
}

// ListProfiles returns profiles ordered by total score, best first.
func (s *SupabaseStore) ListProfiles(ctx context.Context, limit int) ([]*domain.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := s.client.From(profilesTable).
		Select("*", "", false).
		Order("total_score", &postgrest.OrderOpts{Ascending: false}).
		Order("updated_at", &postgrest.OrderOpts{Ascending: true})
	if limit > 0 {
		query = query.Limit(limit, "")
	}

	var rows []profileRow
	if _, err := query.ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	profiles := make([]*domain.UserProfile, 0, len(rows))
	for _, r := range rows {
		profiles = append(profiles, r.profile())
	}
	return profiles, nil
}

// Close is a no-op; the PostgREST client holds no persistent connection.
func (s *SupabaseStore) Close() error {
	return nil
}

// isUniqueViolation matches Postgres error 23505 as relayed by PostgREST.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key"))
}
