package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/battleship/internal/storage/postgres"
	"github.com/cory-johannsen/battleship/internal/testutil"
)

func TestResultRepository_RecordAndList(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	repo := postgres.NewResultRepository(pc.RawPool)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, gameID := range []string{"g1", "g2", "g3"} {
		started := base.Add(time.Duration(i) * time.Hour)
		res, err := repo.Record(ctx, postgres.Result{
			GameID:    gameID,
			PlayerID:  "alice",
			Outcome:   postgres.OutcomeWon,
			StartedAt: started,
			EndedAt:   started.Add(15 * time.Minute),
		})
		require.NoError(t, err)
		assert.NotZero(t, res.ID)
	}
	require.NoError(t, repo.RecordResult(ctx, "g1", "bob", postgres.OutcomeLost, base, base.Add(time.Minute)))

	got, err := repo.ListByPlayer(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "g3", got[0].GameID)
	assert.Equal(t, "g2", got[1].GameID)

	got, err = repo.ListByPlayer(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, postgres.OutcomeLost, got[0].Outcome)

	got, err = repo.ListByPlayer(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResultRepository_DuplicateRejected(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	repo := postgres.NewResultRepository(pc.RawPool)
	ctx := context.Background()

	now := time.Now().UTC()
	res := postgres.Result{GameID: "g1", PlayerID: "alice", Outcome: postgres.OutcomeAbandoned, StartedAt: now, EndedAt: now}
	_, err := repo.Record(ctx, res)
	require.NoError(t, err)
	_, err = repo.Record(ctx, res)
	assert.ErrorIs(t, err, postgres.ErrResultExists)
}

func TestPool_HealthRequiresResultsSchema(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	ctx := context.Background()

	assert.ErrorIs(t, pc.Pool.Health(ctx, 5*time.Second), postgres.ErrSchemaMissing)

	pc.ApplyMigrations(t)
	require.NoError(t, pc.Pool.Health(ctx, 5*time.Second))

	var app string
	require.NoError(t, pc.RawPool.QueryRow(ctx, `SELECT current_setting('application_name')`).Scan(&app))
	assert.Equal(t, postgres.ApplicationName, app)
}
