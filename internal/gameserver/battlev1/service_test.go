package battlev1_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/cory-johannsen/battleship/internal/gameserver/battlev1"
)

// echoServer answers every move with the same vector and every report with the same state.
type echoServer struct {
	battlev1.UnimplementedBattleshipsServer
}

func (echoServer) Game(stream battlev1.Battleships_GameServer) error {
	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case req.GetJoin() != nil:
			err = stream.Send(battlev1.TurnResponse(battlev1.TurnBegin))
		case req.GetMove() != nil:
			err = stream.Send(battlev1.MoveResponse(req.GetMove().Vector))
		case req.GetReport() != nil:
			err = stream.Send(battlev1.ReportResponse(req.GetReport().State))
		}
		if err != nil {
			return err
		}
	}
}

func dial(t *testing.T, srv battlev1.BattleshipsServer) battlev1.BattleshipsClient {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := grpc.NewServer()
	battlev1.RegisterBattleshipsServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return battlev1.NewBattleshipsClient(conn)
}

func TestGameStream_JSONCodecEndToEnd(t *testing.T) {
	client := dial(t, echoServer{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Game(ctx)
	require.NoError(t, err)

	require.NoError(t, stream.Send(battlev1.JoinRequest("alice")))
	resp, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, battlev1.TurnBegin, resp.GetTurn())

	require.NoError(t, stream.Send(battlev1.MoveRequest("c5")))
	resp, err = stream.Recv()
	require.NoError(t, err)
	require.NotNil(t, resp.GetMove())
	assert.Equal(t, "c5", resp.GetMove().Vector)

	require.NoError(t, stream.Send(battlev1.ReportRequest(battlev1.StatusHit)))
	resp, err = stream.Recv()
	require.NoError(t, err)
	require.NotNil(t, resp.GetReport())
	assert.Equal(t, battlev1.StatusHit, resp.GetReport().State)

	require.NoError(t, stream.CloseSend())
	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestGameStream_Unimplemented(t *testing.T) {
	client := dial(t, battlev1.UnimplementedBattleshipsServer{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Game(ctx)
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestRequest_WireShape(t *testing.T) {
	data, err := json.Marshal(battlev1.MoveRequest("a1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"move":{"vector":"a1"}}`, string(data))

	data, err = json.Marshal(battlev1.TurnResponse(battlev1.TurnStart))
	require.NoError(t, err)
	assert.JSONEq(t, `{"turn":"START_TURN"}`, string(data))
}

func TestGetters_NilSafe(t *testing.T) {
	var req *battlev1.Request
	assert.Nil(t, req.GetJoin())
	assert.Nil(t, req.GetMove())
	assert.Nil(t, req.GetReport())

	var resp *battlev1.Response
	assert.Equal(t, battlev1.TurnState(""), resp.GetTurn())
	assert.Nil(t, resp.GetMove())
}

func TestStatusState_Valid(t *testing.T) {
	for _, s := range []battlev1.StatusState{battlev1.StatusMiss, battlev1.StatusHit, battlev1.StatusDefeat} {
		assert.True(t, s.Valid(), "%s", s)
	}
	assert.False(t, battlev1.StatusState("SUNK").Valid())
}
