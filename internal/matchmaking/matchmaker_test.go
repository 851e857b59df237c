package matchmaking_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/battleship/internal/broker/brokertest"
	"github.com/cory-johannsen/battleship/internal/matchmaking"
)

const queueKey = "openGames"

func TestFindOrCreateGame_EmptyQueueMintsID(t *testing.T) {
	mem := brokertest.NewMemory()
	mm := matchmaking.NewMatchmaker(mem, queueKey, zaptest.NewLogger(t))

	id, isNew, err := mm.FindOrCreateGame(context.Background())
	require.NoError(t, err)
	assert.True(t, isNew)
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "new ids are uuids")
	assert.Empty(t, mem.List(queueKey), "finding never advertises")
}

func TestFindOrCreateGame_PairsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	mem := brokertest.NewMemory()
	mm := matchmaking.NewMatchmaker(mem, queueKey, zaptest.NewLogger(t))

	first, isNew, err := mm.FindOrCreateGame(ctx)
	require.NoError(t, err)
	require.True(t, isNew)
	require.NoError(t, mm.Advertise(ctx, first))

	second, isNew, err := mm.FindOrCreateGame(ctx)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first, second)
	assert.Empty(t, mem.List(queueKey))

	third, isNew, err := mm.FindOrCreateGame(ctx)
	require.NoError(t, err)
	assert.True(t, isNew, "a matched game is never handed out again")
	assert.NotEqual(t, first, third)
}

func TestFindOrCreateGame_OldestFirst(t *testing.T) {
	ctx := context.Background()
	mem := brokertest.NewMemory()
	mm := matchmaking.NewMatchmaker(mem, queueKey, zaptest.NewLogger(t))
	require.NoError(t, mm.Advertise(ctx, "g1"))
	require.NoError(t, mm.Advertise(ctx, "g2"))

	id, _, err := mm.FindOrCreateGame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "g1", id)
}

func TestMatchmaker_WrapsBrokerErrors(t *testing.T) {
	ctx := context.Background()
	mem := brokertest.NewMemory()
	mem.Fail()
	mm := matchmaking.NewMatchmaker(mem, queueKey, zaptest.NewLogger(t))

	_, _, err := mm.FindOrCreateGame(ctx)
	assert.ErrorIs(t, err, brokertest.ErrClosed)
	assert.ErrorIs(t, mm.Advertise(ctx, "g"), brokertest.ErrClosed)
	assert.ErrorIs(t, mm.Retract(ctx, "g"), brokertest.ErrClosed)
}

func TestTicket_AdvertiseOnceRetractOwn(t *testing.T) {
	ctx := context.Background()
	mem := brokertest.NewMemory()
	mm := matchmaking.NewMatchmaker(mem, queueKey, zaptest.NewLogger(t))

	created, err := mm.Open(ctx)
	require.NoError(t, err)
	require.True(t, created.IsNew())
	require.NoError(t, created.Advertise(ctx))
	require.NoError(t, created.Advertise(ctx))
	assert.Equal(t, []string{created.GameID()}, mem.List(queueKey))

	require.NoError(t, mm.Advertise(ctx, "someone-else"))
	matched, err := mm.Open(ctx)
	require.NoError(t, err)
	assert.False(t, matched.IsNew())
	assert.Equal(t, created.GameID(), matched.GameID())
	assert.ErrorIs(t, matched.Advertise(ctx), matchmaking.ErrMatched)

	require.NoError(t, matched.Retract(ctx))
	assert.Equal(t, []string{"someone-else"}, mem.List(queueKey), "matched ticket retracts nothing")

	require.NoError(t, created.Retract(ctx))
	require.NoError(t, created.Retract(ctx))
	assert.Equal(t, []string{"someone-else"}, mem.List(queueKey))
}

func TestTicket_RetractWithdrawsUnmatchedGame(t *testing.T) {
	ctx := context.Background()
	mem := brokertest.NewMemory()
	mm := matchmaking.NewMatchmaker(mem, queueKey, zaptest.NewLogger(t))

	tk, err := mm.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, tk.Advertise(ctx))
	require.NoError(t, tk.Retract(ctx))
	assert.Empty(t, mem.List(queueKey))
}

// Property: among any number of sessions that create-and-advertise or match,
// every advertised id is matched at most once.
func TestPropertyEachGameMatchedAtMostOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		mem := brokertest.NewMemory()
		mm := matchmaking.NewMatchmaker(mem, queueKey, zap.NewNop())

		matchedBy := map[string]int{}
		advertised := map[string]bool{}
		sessions := rapid.IntRange(1, 30).Draw(t, "sessions")
		for i := 0; i < sessions; i++ {
			tk, err := mm.Open(ctx)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if tk.IsNew() {
				if err := tk.Advertise(ctx); err != nil {
					t.Fatalf("advertise: %v", err)
				}
				advertised[tk.GameID()] = true
				continue
			}
			if !advertised[tk.GameID()] {
				t.Fatalf("matched unknown game %s", tk.GameID())
			}
			matchedBy[tk.GameID()]++
			if matchedBy[tk.GameID()] > 1 {
				t.Fatalf("game %s matched twice", tk.GameID())
			}
		}
		if open := len(mem.List(queueKey)); open > 1 {
			t.Fatalf("%d open games left; sequential sessions leave at most one", open)
		}
	})
}
