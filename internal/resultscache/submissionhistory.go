package resultscache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/buildmesh/enginecore/internal/core"
)

// SubmissionHistorySink appends finished BuildResults to a durable
// Postgres table, keyed by (submission_id, configuration_id), for
// post-mortem audit across coordinator restarts.
// It is purely additive: nothing in the Results Cache's read path
// consults it.
type SubmissionHistorySink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSubmissionHistorySink connects to dsn and returns a sink ready to
// record completed results. Callers should call Migrate once before the
// first Record.
func NewSubmissionHistorySink(ctx context.Context, dsn string, logger *slog.Logger) (*SubmissionHistorySink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("resultscache: connect submission history store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("resultscache: ping submission history store: %w", err)
	}
	return &SubmissionHistorySink{pool: pool, logger: logger.With("component", "submissionhistory")}, nil
}

// Migrate applies any pending submission_history schema migrations,
// using pgx's database/sql driver adapter so goose (which only speaks
// database/sql) can drive the same Postgres instance as the pgxpool.
func (s *SubmissionHistorySink) Migrate() error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("resultscache: set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("resultscache: apply submission history migrations: %w", err)
	}
	return nil
}

// Record appends one finished result. Failures here are logged, never
// surfaced to the build itself: the audit trail is best-effort and must
// never make a successful build fail because its history couldn't be
// written.
func (s *SubmissionHistorySink) Record(ctx context.Context, result *core.BuildResult) {
	var exceptionMessage *string
	if result.Exception != nil {
		msg := result.Exception.Message
		exceptionMessage = &msg
	}

	const stmt = `
		INSERT INTO submission_history
			(submission_id, configuration_id, global_request_id, overall_result, exception_message)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (submission_id, configuration_id) DO UPDATE SET
			overall_result = EXCLUDED.overall_result,
			exception_message = EXCLUDED.exception_message,
			recorded_at = now()`

	_, err := s.pool.Exec(ctx, stmt,
		result.SubmissionID,
		int32(result.ConfigurationID),
		int64(result.GlobalRequestID),
		int16(result.OverallResult()),
		exceptionMessage,
	)
	if err != nil {
		s.logger.Warn("failed to record submission history", "error", err, "submission_id", result.SubmissionID)
	}
}

// Close releases the underlying pool.
func (s *SubmissionHistorySink) Close() {
	s.pool.Close()
}
