package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outcome values stored in game_results.outcome.
const (
	OutcomeWon       = "won"
	OutcomeLost      = "lost"
	OutcomeAbandoned = "abandoned"
)

// ErrResultExists is returned when a result for the same game and player was already recorded.
var ErrResultExists = errors.New("game result already recorded")

// ErrInvalidResult is returned when a result fails validation before reaching the database.
var ErrInvalidResult = errors.New("invalid game result")

// Result is one player's outcome of one game.
type Result struct {
	ID        int64
	GameID    string
	PlayerID  string
	Outcome   string
	StartedAt time.Time
	EndedAt   time.Time
}

// ValidOutcome reports whether outcome is one of the Outcome constants.
func ValidOutcome(outcome string) bool {
	switch outcome {
	case OutcomeWon, OutcomeLost, OutcomeAbandoned:
		return true
	default:
		return false
	}
}

// Validate checks the fields the schema constrains.
func (r Result) Validate() error {
	switch {
	case r.GameID == "":
		return fmt.Errorf("%w: game id is empty", ErrInvalidResult)
	case r.PlayerID == "":
		return fmt.Errorf("%w: player id is empty", ErrInvalidResult)
	case !ValidOutcome(r.Outcome):
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidResult, r.Outcome)
	case r.EndedAt.Before(r.StartedAt):
		return fmt.Errorf("%w: ended before it started", ErrInvalidResult)
	}
	return nil
}

// ResultRepository stores game results.
type ResultRepository struct {
	db *pgxpool.Pool
}

// NewResultRepository creates a ResultRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewResultRepository(db *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{db: db}
}

// Record inserts r and returns it with ID set.
//
// Precondition: r.Validate() returns nil.
// Postcondition: Returns the stored result, ErrInvalidResult, or ErrResultExists on a duplicate (game, player).
func (r *ResultRepository) Record(ctx context.Context, res Result) (Result, error) {
	if err := res.Validate(); err != nil {
		return Result{}, err
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO game_results (game_id, player_id, outcome, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		res.GameID, res.PlayerID, res.Outcome, res.StartedAt, res.EndedAt,
	).Scan(&res.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return Result{}, ErrResultExists
		}
		return Result{}, fmt.Errorf("inserting game result: %w", err)
	}
	return res, nil
}

// RecordResult adapts Record to the game server's result hook.
func (r *ResultRepository) RecordResult(ctx context.Context, gameID, playerID, outcome string, startedAt, endedAt time.Time) error {
	_, err := r.Record(ctx, Result{
		GameID:    gameID,
		PlayerID:  playerID,
		Outcome:   outcome,
		StartedAt: startedAt,
		EndedAt:   endedAt,
	})
	return err
}

// ListByPlayer returns up to limit results for playerID, most recent first.
//
// Precondition: limit must be > 0.
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *ResultRepository) ListByPlayer(ctx context.Context, playerID string, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("listing game results: limit must be positive, got %d", limit)
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, game_id, player_id, outcome, started_at, ended_at
		FROM game_results WHERE player_id = $1
		ORDER BY ended_at DESC, id DESC
		LIMIT $2`,
		playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing game results: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var res Result
		err := row.Scan(&res.ID, &res.GameID, &res.PlayerID, &res.Outcome, &res.StartedAt, &res.EndedAt)
		return res, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning game results: %w", err)
	}
	return results, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
