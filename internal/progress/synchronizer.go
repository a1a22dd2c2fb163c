package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/jailbreak-labs/internal/domain"
	"github.com/google/uuid"
)

// ErrCommitExhausted is returned when a durable write gave up after retries.
var ErrCommitExhausted = errors.New("durable write retries exhausted")

// ProfileStore is the storage the synchronizer needs.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	UpdateProfile(ctx context.Context, userID string, fn func(*domain.UserProfile) (bool, error)) (*domain.UserProfile, bool, error)
}

// Config tunes the synchronizer.
type Config struct {
	QueueSize      int
	MaxAttempts    int
	BaseDelay      time.Duration
	EnqueueTimeout time.Duration
	WriteTimeout   time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:      256,
		MaxAttempts:    5,
		BaseDelay:      50 * time.Millisecond,
		EnqueueTimeout: 2 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

// CommitHook observes completions that changed the durable profile.
type CommitHook func(c domain.Completion, profile *domain.UserProfile)

type jobKind int

const (
	jobPersist jobKind = iota
	jobCompletion
	jobFinish
)

func (k jobKind) String() string {
	switch k {
	case jobPersist:
		return "persist"
	case jobCompletion:
		return "completion"
	case jobFinish:
		return "finish"
	}
	return "unknown"
}

type job struct {
	id         string
	kind       jobKind
	userID     string
	level      domain.Level
	snapshot   *domain.LevelProgress
	completion domain.Completion
	finish     domain.LevelFinish
}

type pendingKey struct {
	userID string
	level  domain.Level
}

// Stats reports queue activity.
type Stats struct {
	Queued    int   `json:"queued"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Synchronizer pushes session state to storage from a single background
// worker so writes for one player land in the order they were issued.
// Enqueue methods never block gameplay for longer than EnqueueTimeout.
type Synchronizer struct {
	store  ProfileStore
	cfg    Config
	logger *slog.Logger
	jobs   chan job

	hookMu sync.RWMutex
	hook   CommitHook

	pendingMu sync.Mutex
	pending   map[pendingKey]*domain.LevelProgress

	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// New creates a synchronizer. Call Run to start the worker.
func New(store ProfileStore, cfg Config, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = def.EnqueueTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Synchronizer{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		jobs:    make(chan job, cfg.QueueSize),
		pending: make(map[pendingKey]*domain.LevelProgress),
	}
}

// OnCommit registers a hook called after a completion is credited.
func (s *Synchronizer) OnCommit(h CommitHook) {
	s.hookMu.Lock()
	s.hook = h
	s.hookMu.Unlock()
}

// LoadLevel returns the durable progress for (userID, level), overlaid with
// any snapshot still waiting in the queue.
func (s *Synchronizer) LoadLevel(ctx context.Context, userID string, level domain.Level) (*domain.LevelProgress, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	saved := profile.LevelProgressFor(level).Clone()

	s.pendingMu.Lock()
	queued := s.pending[pendingKey{userID, level}]
	s.pendingMu.Unlock()

	if queued != nil {
		return domain.MergeLevelProgress(saved, queued), nil
	}
	return saved, nil
}

// Persist queues a per-level snapshot write.
func (s *Synchronizer) Persist(userID string, level domain.Level, snap *domain.LevelProgress) {
	s.remember(userID, level, snap)
	s.enqueue(job{kind: jobPersist, userID: userID, level: level, snapshot: snap})
}

// CommitCompletion queues an idempotent completion credit.
func (s *Synchronizer) CommitCompletion(c domain.Completion) {
	s.remember(c.UserID, c.Level, c.Snapshot)
	s.enqueue(job{kind: jobCompletion, userID: c.UserID, level: c.Level, completion: c})
}

// FinishLevel queues the level result write.
func (s *Synchronizer) FinishLevel(f domain.LevelFinish) {
	s.remember(f.UserID, f.Level, f.Snapshot)
	s.enqueue(job{kind: jobFinish, userID: f.UserID, level: f.Level, finish: f})
}

func (s *Synchronizer) remember(userID string, level domain.Level, snap *domain.LevelProgress) {
	if snap == nil {
		return
	}
	s.pendingMu.Lock()
	s.pending[pendingKey{userID, level}] = snap
	s.pendingMu.Unlock()
}

func (s *Synchronizer) forget(userID string, level domain.Level, snap *domain.LevelProgress) {
	if snap == nil {
		return
	}
	key := pendingKey{userID, level}
	s.pendingMu.Lock()
	if s.pending[key] == snap {
		delete(s.pending, key)
	}
	s.pendingMu.Unlock()
}

func (s *Synchronizer) enqueue(j job) {
	j.id = uuid.NewString()
	timer := time.NewTimer(s.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case s.jobs <- j:
	case <-timer.C:
		s.dropped.Add(1)
		s.logger.Error("sync queue full, dropping write",
			"job_id", j.id, "kind", j.kind.String(), "user_id", j.userID, "level", j.level)
	}
}

// Run processes queued writes until ctx is done, then drains what is left.
func (s *Synchronizer) Run(ctx context.Context) error {
	s.logger.Info("Progress synchronizer started", "queue_size", s.cfg.QueueSize, "max_attempts", s.cfg.MaxAttempts)

	for {
		select {
		case j := <-s.jobs:
			// A write already picked up finishes even if shutdown starts.
			s.process(context.WithoutCancel(ctx), j)
		case <-ctx.Done():
			s.drain()
			s.logger.Info("Progress synchronizer stopped", "reason", ctx.Err())
			return nil
		}
	}
}

func (s *Synchronizer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout*2)
	defer cancel()

	for {
		select {
		case j := <-s.jobs:
			s.process(ctx, j)
		default:
			return
		}
	}
}

func (s *Synchronizer) process(ctx context.Context, j job) {
	var err error
	switch j.kind {
	case jobPersist:
		err = s.withRetry(ctx, j, func(ctx context.Context) error {
			return s.write(ctx, j.userID, func(p *domain.UserProfile) (bool, error) {
				return ApplySnapshot(p, j.level, j.snapshot), nil
			})
		})
		s.forget(j.userID, j.level, j.snapshot)
	case jobCompletion:
		err = s.withRetry(ctx, j, func(ctx context.Context) error {
			_, err := s.Commit(ctx, j.completion)
			return err
		})
		s.forget(j.userID, j.level, j.completion.Snapshot)
	case jobFinish:
		err = s.withRetry(ctx, j, func(ctx context.Context) error {
			return s.write(ctx, j.userID, func(p *domain.UserProfile) (bool, error) {
				return ApplyFinish(p, j.finish), nil
			})
		})
		s.forget(j.userID, j.level, j.finish.Snapshot)
	}

	if err != nil {
		s.failed.Add(1)
		s.logger.Error("durable write failed, in-memory session stays authoritative",
			"job_id", j.id, "kind", j.kind.String(), "user_id", j.userID, "level", j.level, "error", err)
		return
	}
	s.processed.Add(1)
}

// Commit credits c to the durable profile in one atomic read-modify-write.
// applied is false when the question was already credited.
func (s *Synchronizer) Commit(ctx context.Context, c domain.Completion) (applied bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	profile, changed, err := s.store.UpdateProfile(ctx, c.UserID, func(p *domain.UserProfile) (bool, error) {
		return ApplyCompletion(p, c), nil
	})
	if err != nil {
		return false, fmt.Errorf("commit completion: %w", err)
	}

	attrs := []any{"user_id", c.UserID, "level", c.Level, "question_id", c.QuestionID, "score", c.Score}
	if !changed {
		s.logger.Info("completion already credited, skipping", attrs...)
		return false, nil
	}
	s.logger.Info("completion committed", append(attrs, "total_score", profile.TotalScore)...)

	s.hookMu.RLock()
	hook := s.hook
	s.hookMu.RUnlock()
	if hook != nil {
		hook(c, profile)
	}
	return true, nil
}

func (s *Synchronizer) write(ctx context.Context, userID string, fn func(*domain.UserProfile) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	if _, _, err := s.store.UpdateProfile(ctx, userID, fn); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// withRetry runs fn with exponential backoff until it succeeds, the attempt
// budget is spent, or ctx ends.
func (s *Synchronizer) withRetry(ctx context.Context, j job, fn func(context.Context) error) error {
	delay := s.cfg.BaseDelay
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= s.cfg.MaxAttempts || ctx.Err() != nil {
			return fmt.Errorf("%w: %s after %d attempts: %w", ErrCommitExhausted, j.kind, attempt, err)
		}

		s.logger.Debug("durable write failed, retrying",
			"job_id", j.id, "kind", j.kind.String(), "user_id", j.userID, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %s canceled after %d attempts: %w", ErrCommitExhausted, j.kind, attempt, err)
		}
		delay *= 2
	}
}

// Stats returns queue counters.
func (s *Synchronizer) Stats() Stats {
	return Stats{
		Queued:    len(s.jobs),
		Processed: s.processed.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
	}
}
