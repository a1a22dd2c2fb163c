package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/domain"
	"github.com/ashureev/jailbreak-labs/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

const profileColumns = `user_id, email, name, total_score, questions_completed,
	level_completed, completion_time, progress_json, version, created_at, updated_at`

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets the leaderboard read while the sync worker writes.
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		total_score INTEGER NOT NULL DEFAULT 0,
		questions_completed INTEGER NOT NULL DEFAULT 0,
		level_completed TEXT NOT NULL DEFAULT '',
		completion_time INTEGER NOT NULL DEFAULT 0,
		progress_json TEXT NOT NULL DEFAULT '{}',
		version INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_total_score ON users(total_score DESC);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*domain.UserProfile, error) {
	var (
		p                    domain.UserProfile
		level, progressJSON  string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&p.ID, &p.Email, &p.Name, &p.TotalScore, &p.QuestionsCompleted,
		&level, &p.CompletionTime, &progressJSON, &p.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.LevelCompleted = domain.Level(level)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	p.Progress = make(map[domain.Level]*domain.LevelProgress)
	if progressJSON != "" {
		if err := json.Unmarshal([]byte(progressJSON), &p.Progress); err != nil {
			return nil, fmt.Errorf("decode progress for %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func encodeProgress(p *domain.UserProfile) (string, error) {
	progress := p.Progress
	if progress == nil {
		progress = map[domain.Level]*domain.LevelProgress{}
	}
	raw, err := json.Marshal(progress)
	if err != nil {
		return "", fmt.Errorf("encode progress for %s: %w", p.ID, err)
	}
	return string(raw), nil
}

// GetProfile retrieves a profile by user ID.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM users WHERE user_id = ?`, userID)

	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}
	return p, nil
}

// EnsureProfile inserts p unless the user already has a profile.
func (s *SQLiteStore) EnsureProfile(ctx context.Context, p *domain.UserProfile) error {
	err := s.insertProfile(ctx, p)
	if errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}

// UpdateProfile applies fn under an optimistic version check.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, userID string, fn func(*domain.UserProfile) (bool, error)) (*domain.UserProfile, bool, error) {
	return updateProfile(ctx, s, userID, fn, shared.IsSQLiteConflictError)
}

func (s *SQLiteStore) insertProfile(ctx context.Context, p *domain.UserProfile) error {
	progressJSON, err := encodeProgress(p)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO users (` + profileColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(user_id) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		p.ID, p.Email, p.Name, p.TotalScore, p.QuestionsCompleted,
		string(p.LevelCompleted), p.CompletionTime, progressJSON,
		p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}

func (s *SQLiteStore) replaceProfile(ctx context.Context, p *domain.UserProfile, expected int64) error {
	progressJSON, err := encodeProgress(p)
	if err != nil {
		return err
	}

	query := `
	UPDATE users SET
		email = ?, name = ?, total_score = ?, questions_completed = ?,
		level_completed = ?, completion_time = ?, progress_json = ?,
		version = version + 1, updated_at = ?
	WHERE user_id = ? AND version = ?`

	result, err := s.db.ExecContext(ctx, query,
		p.Email, p.Name, p.TotalScore, p.QuestionsCompleted,
		string(p.LevelCompleted), p.CompletionTime, progressJSON,
		p.UpdatedAt.Unix(), p.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Debug("profile update affected 0 rows", "user_id", p.ID, "expected_version", expected)
		return ErrConflict
	}
	return nil
}

// ListProfiles returns profiles ordered by total score, best first. Ties go
// to whoever reached the score earlier.
func (s *SQLiteStore) ListProfiles(ctx context.Context, limit int) ([]*domain.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM users ORDER BY total_score DESC, updated_at ASC, user_id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close profile rows", "error", closeErr)
		}
	}()

	var profiles []*domain.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile row: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}

	return profiles, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
