package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/irrbb/internal/engine"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	Enabled         bool
}

// Manager owns the database connection and the runs repository. A disabled
// manager is valid and persists nothing.
type Manager struct {
	db     *sqlx.DB
	config Config
	runs   RunsRepo
}

// RepoFactory builds the repository from an open connection. Injected so the
// manager stays driver-agnostic and testable.
type RepoFactory func(db *sqlx.DB, timeout time.Duration) RunsRepo

// NewManager opens the database connection and wires the runs repository.
func NewManager(config Config, factory RepoFactory) (*Manager, error) {
	if !config.Enabled {
		return &Manager{config: config}, nil
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when persistence is enabled")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Manager{
		db:     db,
		config: config,
		runs:   WithBreaker(factory(db, config.QueryTimeout)),
	}, nil
}

// Runs returns the runs repository, or nil when persistence is disabled.
func (m *Manager) Runs() RunsRepo { return m.runs }

// IsEnabled reports whether persistence is active.
func (m *Manager) IsEnabled() bool { return m.config.Enabled && m.db != nil }

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// breakerRepo shields the engine from a failing database: after repeated
// write failures the breaker opens and saves fail fast instead of holding the
// calculation path on connection timeouts.
type breakerRepo struct {
	inner   RunsRepo
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps a repository in a circuit breaker.
func WithBreaker(inner RunsRepo) RunsRepo {
	settings := gobreaker.Settings{
		Name:        "results-db",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	}
	return &breakerRepo{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerRepo) SaveReport(ctx context.Context, report *engine.Report) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.inner.SaveReport(ctx, report)
	})
	return err
}

func (b *breakerRepo) GetRun(ctx context.Context, runID string) (*Run, []ScenarioRow, error) {
	var run *Run
	var rows []ScenarioRow
	_, err := b.breaker.Execute(func() (interface{}, error) {
		var innerErr error
		run, rows, innerErr = b.inner.GetRun(ctx, runID)
		return nil, innerErr
	})
	return run, rows, err
}

func (b *breakerRepo) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	_, err := b.breaker.Execute(func() (interface{}, error) {
		var innerErr error
		runs, innerErr = b.inner.ListRuns(ctx, limit)
		return nil, innerErr
	})
	return runs, err
}

func (b *breakerRepo) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}
