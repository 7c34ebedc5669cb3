package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/blake2b"
)

// Run status values.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// CallbackFailure is one deferred callback that raised during a run.
type CallbackFailure struct {
	Timer   uint64
	Message string
}

// Run is the journal record of one script execution.
type Run struct {
	Script     string
	Digest     [32]byte
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Error      string

	Allocations      int
	ReleasedClose    int
	ReleasedGC       int
	ReleasedTeardown int
	TimersFired      int
	Failures         []CallbackFailure
}

// Digest returns the blake2b-256 digest of a script source.
func Digest(src []byte) [32]byte {
	return blake2b.Sum256(src)
}

// NewRun starts a record for script with the given source.
func NewRun(script string, src []byte, started time.Time) *Run {
	return &Run{Script: script, Digest: Digest(src), StartedAt: started}
}

// Finish stamps the end time and derives the status from err.
func (r *Run) Finish(finished time.Time, err error, cancelled bool) {
	r.FinishedAt = finished
	switch {
	case cancelled:
		r.Status = StatusCancelled
	case err != nil:
		r.Status = StatusFailed
	default:
		r.Status = StatusOK
	}
	if err != nil {
		r.Error = err.Error()
	}
}

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// Record writes the run and its callback failures in one transaction and
// returns the new run id.
func (r *JournalRepo) Record(ctx context.Context, run *Run) (int64, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO script_runs (script, digest, started_at, finished_at, status, error,
		     allocations, released_close, released_gc, released_teardown, timers_fired, callback_failures)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		run.Script, run.Digest[:], run.StartedAt, run.FinishedAt, run.Status, run.Error,
		run.Allocations, run.ReleasedClose, run.ReleasedGC, run.ReleasedTeardown, run.TimersFired,
		len(run.Failures),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("journal insert run: %w", err)
	}

	for i, f := range run.Failures {
		if _, err := tx.Exec(ctx,
			`INSERT INTO script_run_failures (run_id, seq, timer, message) VALUES ($1, $2, $3, $4)`,
			id, i, int64(f.Timer), f.Message,
		); err != nil {
			return 0, fmt.Errorf("journal insert failure: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("journal commit: %w", err)
	}
	return id, nil
}

// LastDigest returns the digest recorded for the most recent run of script, or
// nil if the script has never been recorded.
func (r *JournalRepo) LastDigest(ctx context.Context, script string) ([]byte, error) {
	var digest []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT digest FROM script_runs WHERE script = $1 ORDER BY id DESC LIMIT 1`,
		script,
	).Scan(&digest)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal last digest: %w", err)
	}
	return digest, nil
}
