// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/domain"
)

// ErrConflict is returned when a version-checked write lost to a concurrent
// writer and the retry budget ran out.
var ErrConflict = errors.New("profile version conflict")

// Repository defines the interface for persisting player profiles.
type Repository interface {
	// GetProfile retrieves a profile by user ID. It returns nil, nil when the
	// user has no profile yet.
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)

	// EnsureProfile inserts p unless a profile for p.ID already exists.
	EnsureProfile(ctx context.Context, p *domain.UserProfile) error

	// UpdateProfile applies fn to the current profile (a fresh default one
	// if absent) and writes the result atomically. Concurrent writers are
	// serialized with an optimistic version check; fn may run more than once.
	UpdateProfile(ctx context.Context, userID string, fn func(*domain.UserProfile) (bool, error)) (*domain.UserProfile, bool, error)

	// ListProfiles returns up to limit profiles ordered by total score.
	// A limit <= 0 returns every profile.
	ListProfiles(ctx context.Context, limit int) ([]*domain.UserProfile, error)

	// Ping verifies connectivity and returns an error if storage is unreachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

const (
	maxConflictRetries = 8
	conflictBaseDelay  = 10 * time.Millisecond
)

// versioned is the minimal write surface both backends expose to the shared
// read-modify-write loop.
type versioned interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	// insertProfile returns ErrConflict if the row already exists.
	insertProfile(ctx context.Context, p *domain.UserProfile) error
	// replaceProfile returns ErrConflict unless the stored version is expected.
	replaceProfile(ctx context.Context, p *domain.UserProfile, expected int64) error
}

// updateProfile runs the optimistic read-modify-write loop. retryable reports
// backend errors that deserve another attempt besides ErrConflict.
func updateProfile(
	ctx context.Context,
	b versioned,
	userID string,
	fn func(*domain.UserProfile) (bool, error),
	retryable func(error) bool,
) (*domain.UserProfile, bool, error) {
	delay := conflictBaseDelay
	var lastErr error

	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		current, err := b.GetProfile(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		exists := current != nil
		if !exists {
			current = domain.NewUserProfile(userID, time.Now().UTC())
		}

		working := current.Clone()
		changed, err := fn(working)
		if err != nil {
			return nil, false, fmt.Errorf("apply update: %w", err)
		}
		if !changed {
			return current, false, nil
		}
		if working.UpdatedAt.IsZero() {
			working.UpdatedAt = time.Now().UTC()
		}

		if exists {
			err = b.replaceProfile(ctx, working, current.Version)
			working.Version = current.Version + 1
		} else {
			err = b.insertProfile(ctx, working)
			working.Version = 1
		}
		if err == nil {
			return working, true, nil
		}
		if !errors.Is(err, ErrConflict) && (retryable == nil || !retryable(err)) {
			return nil, false, err
		}

		lastErr = err
		slog.Debug("profile write conflicted, retrying",
			"user_id", userID, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, false, fmt.Errorf("update profile %s: %w", userID, ctx.Err())
		}
		delay *= 2
	}

	return nil, false, fmt.Errorf("%w: user %s after %d attempts: %w", ErrConflict, userID, maxConflictRetries, lastErr)
}
