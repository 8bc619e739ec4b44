package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partyround/game-rooms-backend/internal/game"
	"github.com/partyround/game-rooms-backend/pkg/types"
)

type seqCodes struct{ i int }

func (s *seqCodes) NewCode() (string, error) {
	s.i++
	return fmt.Sprintf("RM%04d", s.i), nil
}

type stubApplier struct {
	fn func(room *game.Room, actor *game.Player, move json.RawMessage) (json.RawMessage, error)
}

func (s *stubApplier) ApplyMove(room *game.Room, actor *game.Player, move json.RawMessage) (json.RawMessage, error) {
	if s.fn == nil {
		return move, nil
	}
	return s.fn(room, actor, move)
}

type fixture struct {
	hub      *Hub
	registry *game.Registry
	store    *game.Store
	turns    *game.Coordinator
	outs     map[string]chan types.ServerMessage
}

func newFixture(t *testing.T, applier MoveApplier) *fixture {
	t.Helper()
	registry := game.NewRegistry()
	store := game.NewStore(&seqCodes{}, 20, 2, 5)
	assigner := game.NewAssigner(registry, rand.New(rand.NewSource(1)))
	turns := game.NewCoordinator(registry)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := New(ctx, nil, registry, store, assigner, turns, 2, applier)
	return &fixture{
		hub:      h,
		registry: registry,
		store:    store,
		turns:    turns,
		outs:     make(map[string]chan types.ServerMessage),
	}
}

// connect registers a client connection and consumes its Welcome.
func (f *fixture) connect(t *testing.T, connID, name string) chan types.ServerMessage {
	t.Helper()
	out := make(chan types.ServerMessage, 32)
	f.outs[connID] = out
	f.hub.Inbox() <- Register{ConnID: connID, Name: name, Outbox: out}

	welcome := recv(t, out)
	require.Equal(t, types.MsgWelcome, welcome.Type)
	require.NotEmpty(t, welcome.PlayerID)
	return out
}

func (f *fixture) request(connID string, req types.ClientMessage) {
	f.hub.Inbox() <- FromClient{ConnID: connID, Req: req}
}

func recv(t *testing.T, ch <-chan types.ServerMessage) types.ServerMessage {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "outbox closed unexpectedly")
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return types.ServerMessage{}
	}
}

// recvType drains messages until one of the wanted type arrives.
func recvType(t *testing.T, ch <-chan types.ServerMessage, msgType string) types.ServerMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		m := recv(t, ch)
		if m.Type == msgType {
			return m
		}
	}
	t.Fatalf("no %s message after draining 20 messages", msgType)
	return types.ServerMessage{}
}

// connOnTeam picks a member connection from the given team.
func connOnTeam(t *testing.T, snap *game.RoomSnapshot, teamID int) string {
	t.Helper()
	for _, p := range snap.Players {
		if p.TeamID == teamID {
			return p.ConnID
		}
	}
	t.Fatalf("no player on team %d", teamID)
	return ""
}

func TestHub_CreateJoinStartEndTurn(t *testing.T) {
	f := newFixture(t, nil)
	c1 := f.connect(t, "c1", "P1")
	c2 := f.connect(t, "c2", "P2")
	f.connect(t, "c3", "P3")

	f.request("c1", types.ClientMessage{Type: types.ReqCreateRoom})
	created := recvType(t, c1, types.MsgRoomCreated)
	require.NotNil(t, created.Room)
	code := created.Room.Code
	assert.Equal(t, "c1", created.Room.HostConn)

	f.request("c2", types.ClientMessage{Type: types.ReqJoinRoom, RoomCode: code})
	joined := recvType(t, c2, types.MsgRoomJoined)
	assert.Len(t, joined.Room.Players, 2)

	f.request("c3", types.ClientMessage{Type: types.ReqJoinRoom, RoomCode: code})
	recvType(t, f.outs["c3"], types.MsgRoomJoined)

	// Only the host may start.
	f.request("c2", types.ClientMessage{Type: types.ReqStartGame, RoomCode: code})
	notHost := recvType(t, c2, types.MsgError)
	assert.Equal(t, types.ReasonNotHost, notHost.Reason)

	f.request("c1", types.ClientMessage{Type: types.ReqStartGame, RoomCode: code, NumTeams: 2})
	started := recvType(t, c2, types.MsgGameStarted)
	require.NotNil(t, started.Room)
	require.NotNil(t, started.Turn)
	require.Len(t, started.Room.Teams, 2)

	sizes := []int{len(started.Room.Teams[0].Members), len(started.Room.Teams[1].Members)}
	assert.ElementsMatch(t, []int{2, 1}, sizes)
	assert.Equal(t, 0, started.Turn.TeamID)
	assert.True(t, started.Room.Started)

	// Two end-turns over two teams bring the rotation back to team 0.
	first := connOnTeam(t, started.Room, 0)
	f.request(first, types.ClientMessage{Type: types.ReqEndTurn, RoomCode: code})
	changed := recvType(t, f.outs[first], types.MsgTurnChanged)
	assert.Equal(t, 0, changed.PrevTeam)
	assert.Equal(t, 1, changed.Turn.TeamID)
	assert.Equal(t, 1, changed.Turn.Counter)

	// Team 0 is a valid previous team; the wire form must carry it
	// explicitly rather than dropping the zero value.
	payload, err := json.Marshal(changed)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"prev_team":0`)

	// The first rotation was broadcast to every member; drain it from
	// the next sender's queue before asserting on the second one.
	second := connOnTeam(t, started.Room, 1)
	firstChange := recvType(t, f.outs[second], types.MsgTurnChanged)
	require.Equal(t, 1, firstChange.Turn.Counter)

	f.request(second, types.ClientMessage{Type: types.ReqEndTurn, RoomCode: code})
	changed = recvType(t, f.outs[second], types.MsgTurnChanged)
	assert.Equal(t, 1, changed.PrevTeam)
	assert.Equal(t, 0, changed.Turn.TeamID)
	assert.Equal(t, 2, changed.Turn.Counter)
}

func TestHub_SoloCreateThenLeaveDeletesRoom(t *testing.T) {
	f := newFixture(t, nil)
	c1 := f.connect(t, "c1", "P1")

	f.request("c1", types.ClientMessage{Type: types.ReqCreateRoom})
	created := recvType(t, c1, types.MsgRoomCreated)
	code := created.Room.Code
	require.True(t, f.store.Exists(code))

	f.request("c1", types.ClientMessage{Type: types.ReqLeaveRoom, RoomCode: code})
	recvType(t, c1, types.MsgAck)

	assert.False(t, f.store.Exists(code))

	// Leaving again is idempotent.
	f.request("c1", types.ClientMessage{Type: types.ReqLeaveRoom, RoomCode: code})
	ack := recvType(t, c1, types.MsgAck)
	assert.True(t, ack.Success)
}

func TestHub_HostDisconnectTransfersHost(t *testing.T) {
	f := newFixture(t, nil)
	c1 := f.connect(t, "c1", "P1")
	c2 := f.connect(t, "c2", "P2")

	f.request("c1", types.ClientMessage{Type: types.ReqCreateRoom})
	code := recvType(t, c1, types.MsgRoomCreated).Room.Code
	f.request("c2", types.ClientMessage{Type: types.ReqJoinRoom, RoomCode: code})
	recvType(t, c2, types.MsgRoomJoined)

	f.hub.Inbox() <- Unregister{ConnID: "c1"}

	left := recvType(t, c2, types.MsgPlayerLeft)
	require.NotNil(t, left.Room)
	assert.Equal(t, "c2", left.Room.HostConn)
	assert.Len(t, left.Room.Players, 1)

	_, ok := f.registry.ByConnection("c1")
	assert.False(t, ok, "disconnect removes the player record")
}

func TestHub_JoinFailures(t *testing.T) {
	f := newFixture(t, nil)
	c1 := f.connect(t, "c1", "P1")
	c2 := f.connect(t, "c2", "P2")
	c3 := f.connect(t, "c3", "P3")

	f.request("c1", types.ClientMessage{Type: types.ReqJoinRoom, RoomCode: "NOPE22"})
	msg := recvType(t, c1, types.MsgError)
	assert.Equal(t, types.ReasonRoomNotFound, msg.Reason)

	f.request("c1", types.ClientMessage{Type: types.ReqCreateRoom})
	code := recvType(t, c1, types.MsgRoomCreated).Room.Code
	f.request("c2", types.ClientMessage{Type: types.ReqJoinRoom, RoomCode: code})
	recvType(t, c2, types.MsgRoomJoined)

	f.request("c1", types.ClientMessage{Type: types.ReqStartGame, RoomCode: code})
	recvType(t, c1, types.MsgGameStarted)

	f.request("c3", types.ClientMessage{Type: types.ReqJoinRoom, RoomCode: code})
	msg = recvType(t, c3, types.MsgError)
	assert.Equal(t, types.ReasonGameAlreadyStarted, msg.Reason)
}

// startTwoPlayerGame returns the room code and the started snapshot.
func startTwoPlayerGame(t *testing.T, f *fixture) (string, *game.RoomSnapshot) {
	t.Helper()
	c1 := f.connect(t, "c1", "P1")
	c2 := f.connect(t, "c2", "P2")

	f.request("c1", types.ClientMessage{Type: types.ReqCreateRoom})
	code := recvType(t, c1, types.MsgRoomCreated).Room.Code
	f.request("c2", types.ClientMessage{Type: types.ReqJoinRoom, RoomCode: code})
	recvType(t, c2, types.MsgRoomJoined)
	f.request("c1", types.ClientMessage{Type: types.ReqStartGame, RoomCode: code})
	started := recvType(t, c2, types.MsgGameStarted)
	return code, started.Room
}

func TestHub_MoveRejectedWhileLocked(t *testing.T) {
	f := newFixture(t, nil)
	code, snap := startTwoPlayerGame(t, f)

	room, ok := f.store.Get(code)
	require.True(t, ok)
	require.NoError(t, f.turns.Lock(room))

	// Locked rejects the current team and the waiting team alike.
	for _, conn := range []string{connOnTeam(t, snap, 0), connOnTeam(t, snap, 1)} {
		f.request(conn, types.ClientMessage{Type: types.ReqMakeMove, RoomCode: code, Move: json.RawMessage(`{"x":1}`)})
		msg := recvType(t, f.outs[conn], types.MsgError)
		assert.Equal(t, types.ReasonLocked, msg.Reason)
	}

	f.turns.Unlock(room)

	mover := connOnTeam(t, snap, 0)
	f.request(mover, types.ClientMessage{Type: types.ReqMakeMove, RoomCode: code, Move: json.RawMessage(`{"x":1}`)})
	made := recvType(t, f.outs[mover], types.MsgMoveMade)
	assert.JSONEq(t, `{"x":1}`, string(made.Move))
	recvType(t, f.outs[mover], types.MsgAck)
}

func TestHub_MoveRejections(t *testing.T) {
	f := newFixture(t, nil)
	code, snap := startTwoPlayerGame(t, f)

	wrong := connOnTeam(t, snap, 1)
	f.request(wrong, types.ClientMessage{Type: types.ReqMakeMove, RoomCode: code})
	msg := recvType(t, f.outs[wrong], types.MsgError)
	assert.Equal(t, types.ReasonWrongTeam, msg.Reason)

	mover := connOnTeam(t, snap, 0)
	f.request(mover, types.ClientMessage{Type: types.ReqMakeMove, RoomCode: "NOPE22"})
	msg = recvType(t, f.outs[mover], types.MsgError)
	assert.Equal(t, types.ReasonRoomNotFound, msg.Reason)
}

func TestHub_MoveBeforeStartRejected(t *testing.T) {
	f := newFixture(t, nil)
	c1 := f.connect(t, "c1", "P1")

	f.request("c1", types.ClientMessage{Type: types.ReqCreateRoom})
	code := recvType(t, c1, types.MsgRoomCreated).Room.Code

	f.request("c1", types.ClientMessage{Type: types.ReqMakeMove, RoomCode: code})
	msg := recvType(t, c1, types.MsgError)
	assert.Equal(t, types.ReasonNotStarted, msg.Reason)
}

func TestHub_ApplierFailureReleasesLock(t *testing.T) {
	applier := &stubApplier{fn: func(_ *game.Room, _ *game.Player, _ json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("rejected by game logic")
	}}
	f := newFixture(t, applier)
	code, snap := startTwoPlayerGame(t, f)
	mover := connOnTeam(t, snap, 0)

	f.request(mover, types.ClientMessage{Type: types.ReqMakeMove, RoomCode: code})
	msg := recvType(t, f.outs[mover], types.MsgError)
	assert.Equal(t, types.ReasonInternal, msg.Reason)

	// The failed move must not leave the room stuck.
	applier.fn = nil
	f.request(mover, types.ClientMessage{Type: types.ReqMakeMove, RoomCode: code, Move: json.RawMessage(`{}`)})
	recvType(t, f.outs[mover], types.MsgMoveMade)
}

func TestHub_ApplierPanicReleasesLock(t *testing.T) {
	applier := &stubApplier{fn: func(_ *game.Room, _ *game.Player, _ json.RawMessage) (json.RawMessage, error) {
		panic("boom")
	}}
	f := newFixture(t, applier)
	code, snap := startTwoPlayerGame(t, f)
	mover := connOnTeam(t, snap, 0)

	f.request(mover, types.ClientMessage{Type: types.ReqMakeMove, RoomCode: code})
	msg := recvType(t, f.outs[mover], types.MsgError)
	assert.Equal(t, types.ReasonInternal, msg.Reason)

	applier.fn = nil
	f.request(mover, types.ClientMessage{Type: types.ReqMakeMove, RoomCode: code, Move: json.RawMessage(`{}`)})
	recvType(t, f.outs[mover], types.MsgMoveMade)
}

func TestHub_MoveStoresGameState(t *testing.T) {
	f := newFixture(t, nil)
	code, snap := startTwoPlayerGame(t, f)
	mover := connOnTeam(t, snap, 0)

	f.request(mover, types.ClientMessage{Type: types.ReqMakeMove, RoomCode: code, Move: json.RawMessage(`{"cell":4}`)})
	recvType(t, f.outs[mover], types.MsgAck)

	f.request(mover, types.ClientMessage{Type: types.ReqGetRoomInfo, RoomCode: code})
	info := recvType(t, f.outs[mover], types.MsgRoomInfo)
	assert.JSONEq(t, `{"cell":4}`, string(info.Room.GameState))
}

func TestHub_RoomInfo(t *testing.T) {
	f := newFixture(t, nil)
	code, _ := startTwoPlayerGame(t, f)

	// The HTTP API path: a RoomInfo message with a reply channel.
	reply := make(chan types.ServerMessage, 1)
	f.hub.Inbox() <- RoomInfo{Code: code, Reply: reply}
	msg := recv(t, reply)
	require.Equal(t, types.MsgRoomInfo, msg.Type)
	require.NotNil(t, msg.Room)
	require.NotNil(t, msg.Turn, "turn info present once started")
	assert.Equal(t, 0, msg.Turn.TeamID)

	f.hub.Inbox() <- RoomInfo{Code: "NOPE22", Reply: reply}
	msg = recv(t, reply)
	assert.Equal(t, types.ReasonRoomNotFound, msg.Reason)
}

func TestHub_StartGameFailures(t *testing.T) {
	f := newFixture(t, nil)
	c1 := f.connect(t, "c1", "P1")
	c2 := f.connect(t, "c2", "P2")

	f.request("c1", types.ClientMessage{Type: types.ReqStartGame, RoomCode: "NOPE22"})
	msg := recvType(t, c1, types.MsgError)
	assert.Equal(t, types.ReasonRoomNotFound, msg.Reason)

	f.request("c1", types.ClientMessage{Type: types.ReqCreateRoom})
	code := recvType(t, c1, types.MsgRoomCreated).Room.Code

	// One player is below the start minimum.
	f.request("c1", types.ClientMessage{Type: types.ReqStartGame, RoomCode: code})
	msg = recvType(t, c1, types.MsgError)
	assert.Equal(t, types.ReasonInsufficientPlayers, msg.Reason)

	f.request("c2", types.ClientMessage{Type: types.ReqJoinRoom, RoomCode: code})
	recvType(t, c2, types.MsgRoomJoined)
	f.request("c1", types.ClientMessage{Type: types.ReqStartGame, RoomCode: code})
	recvType(t, c1, types.MsgGameStarted)

	f.request("c1", types.ClientMessage{Type: types.ReqStartGame, RoomCode: code})
	msg = recvType(t, c1, types.MsgError)
	assert.Equal(t, types.ReasonAlreadyStarted, msg.Reason)
}

func TestHub_StartGameClampsTeamCountToPlayers(t *testing.T) {
	f := newFixture(t, nil)
	c1 := f.connect(t, "c1", "P1")
	c2 := f.connect(t, "c2", "P2")

	f.request("c1", types.ClientMessage{Type: types.ReqCreateRoom})
	code := recvType(t, c1, types.MsgRoomCreated).Room.Code
	f.request("c2", types.ClientMessage{Type: types.ReqJoinRoom, RoomCode: code})
	recvType(t, c2, types.MsgRoomJoined)

	f.request("c1", types.ClientMessage{Type: types.ReqStartGame, RoomCode: code, NumTeams: 5})
	started := recvType(t, c2, types.MsgGameStarted)
	require.Len(t, started.Room.Teams, 2, "never more teams than players")
	for _, tm := range started.Room.Teams {
		assert.Len(t, tm.Members, 1)
	}

	// Every slot in the rotation is occupied, so the turn can always
	// be ended.
	mover := connOnTeam(t, started.Room, 0)
	f.request(mover, types.ClientMessage{Type: types.ReqEndTurn, RoomCode: code})
	changed := recvType(t, f.outs[mover], types.MsgTurnChanged)
	assert.Equal(t, 1, changed.Turn.TeamID)
}

func TestHub_UnknownRequestType(t *testing.T) {
	f := newFixture(t, nil)
	c1 := f.connect(t, "c1", "P1")

	f.request("c1", types.ClientMessage{Type: "Teleport"})
	msg := recvType(t, c1, types.MsgError)
	assert.Equal(t, types.ReasonBadRequest, msg.Reason)
}

func TestHub_GetState(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t, "c1", "P1")
	f.connect(t, "c2", "P2")

	reply := make(chan View, 1)
	f.hub.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		assert.Equal(t, 2, v.NumClients)
		assert.Equal(t, 2, v.NumPlayers)
		assert.Equal(t, 0, v.NumRooms)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for view")
	}
}
