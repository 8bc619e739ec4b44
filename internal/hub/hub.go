// Package hub is the dispatch layer between the websocket transport
// and the coordination core. A single goroutine drains the inbox, so
// every request runs as one synchronous unit of work: no handler is
// ever interleaved mid-mutation with another.
package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/partyround/game-rooms-backend/internal/game"
	"github.com/partyround/game-rooms-backend/pkg/types"
)

type Msg interface{ isHubMsg() }

// Register announces a new connection. The hub creates the player
// record and replies with a Welcome on the outbox.
type Register struct {
	ConnID string
	Name   string
	Outbox chan types.ServerMessage
}

// Unregister tears a connection down: leave-room, close the outbox,
// delete the player record.
type Unregister struct{ ConnID string }

// FromClient carries one decoded client request.
type FromClient struct {
	ConnID string
	Req    types.ClientMessage
}

// RoomInfo asks for a room's serialized state. Used by the HTTP API so
// reads are serialized with mutations on the hub goroutine.
type RoomInfo struct {
	Code  string
	Reply chan types.ServerMessage
}

// GetState reflects internal counters without data races. Test-only.
type GetState struct{ Reply chan View }

type Shutdown struct{}

func (Register) isHubMsg()   {}
func (Unregister) isHubMsg() {}
func (FromClient) isHubMsg() {}
func (RoomInfo) isHubMsg()   {}
func (GetState) isHubMsg()   {}
func (Shutdown) isHubMsg()   {}

type View struct {
	NumClients int
	NumRooms   int
	NumPlayers int
}

// MoveApplier is supplied by the host application to evolve game state.
// The hub holds the room's turn lock for the duration of ApplyMove and
// releases it on every exit path, panics included.
type MoveApplier interface {
	ApplyMove(room *game.Room, actor *game.Player, move json.RawMessage) (json.RawMessage, error)
}

// passthroughApplier stores the raw move payload as the room's opaque
// game state. Stands in until the host application plugs in its own.
type passthroughApplier struct{}

func (passthroughApplier) ApplyMove(_ *game.Room, _ *game.Player, move json.RawMessage) (json.RawMessage, error) {
	return move, nil
}

type Hub struct {
	inbox   chan Msg
	clients map[string]chan types.ServerMessage

	players *game.Registry
	rooms   *game.Store
	teams   *game.Assigner
	turns   *game.Coordinator
	moves   MoveApplier

	defaultTeams int
	log          *zap.Logger
	ctx          context.Context
	cancel       context.CancelFunc
}

// New starts the hub loop. A nil applier falls back to the passthrough
// one; a nil logger is replaced with a no-op logger.
func New(parent context.Context, log *zap.Logger, players *game.Registry, rooms *game.Store,
	teams *game.Assigner, turns *game.Coordinator, defaultTeams int, applier MoveApplier) *Hub {

	if log == nil {
		log = zap.NewNop()
	}
	if applier == nil {
		applier = passthroughApplier{}
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:        make(chan Msg, 64),
		clients:      make(map[string]chan types.ServerMessage),
		players:      players,
		rooms:        rooms,
		teams:        teams,
		turns:        turns,
		moves:        applier,
		defaultTeams: defaultTeams,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Register:
				p := h.players.CreatePlayer(msg.ConnID, msg.Name)
				h.clients[msg.ConnID] = msg.Outbox
				h.send(msg.ConnID, types.ServerMessage{
					Type:     types.MsgWelcome,
					Success:  true,
					PlayerID: p.ID,
					ConnID:   p.ConnID,
				})
				h.log.Info("client registered",
					zap.String("conn", msg.ConnID), zap.String("player", p.ID))

			case Unregister:
				h.players.SetConnected(msg.ConnID, false)
				h.leaveRoom(msg.ConnID)
				if ch, ok := h.clients[msg.ConnID]; ok {
					close(ch)
					delete(h.clients, msg.ConnID)
				}
				h.players.Remove(msg.ConnID)
				h.log.Info("client unregistered", zap.String("conn", msg.ConnID))

			case FromClient:
				h.handle(msg.ConnID, msg.Req)

			case RoomInfo:
				msg.Reply <- h.roomInfo(msg.Code)

			case GetState:
				msg.Reply <- View{
					NumClients: len(h.clients),
					NumRooms:   h.rooms.Count(),
					NumPlayers: h.players.CountConnected(),
				}

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
	h.cancel()
}

func (h *Hub) handle(connID string, req types.ClientMessage) {
	p, ok := h.players.ByConnection(connID)
	if !ok {
		h.send(connID, types.Failure(game.ErrUnknownPlayer))
		return
	}

	switch req.Type {
	case types.ReqCreateRoom:
		h.createRoom(p)
	case types.ReqJoinRoom:
		h.joinRoom(p, req.RoomCode)
	case types.ReqLeaveRoom:
		h.leaveRoom(connID)
		h.send(connID, types.ServerMessage{Type: types.MsgAck, Success: true})
	case types.ReqStartGame:
		h.startGame(p, req)
	case types.ReqMakeMove:
		h.makeMove(p, req)
	case types.ReqEndTurn:
		h.endTurn(p, req)
	case types.ReqGetRoomInfo:
		h.send(connID, h.roomInfo(req.RoomCode))
	default:
		h.send(connID, types.ServerMessage{
			Type:    types.MsgError,
			Reason:  types.ReasonBadRequest,
			Message: fmt.Sprintf("unknown request type %q", req.Type),
		})
	}
}

func (h *Hub) createRoom(p *game.Player) {
	// A connection holds at most one room membership; creating while
	// in a room implies leaving it first.
	if p.RoomCode != "" {
		h.leaveRoom(p.ConnID)
	}

	room, err := h.rooms.CreateRoom(p.ConnID)
	if err != nil {
		h.send(p.ConnID, types.Failure(err))
		return
	}
	if err := h.rooms.AddPlayer(room.Code, p); err != nil {
		h.send(p.ConnID, types.Failure(err))
		return
	}
	h.players.SetRoom(p.ConnID, room.Code)

	snap := room.Snapshot()
	h.send(p.ConnID, types.ServerMessage{Type: types.MsgRoomCreated, Success: true, Room: &snap})
	h.log.Info("room created", zap.String("room", room.Code), zap.String("host", p.ConnID))
}

func (h *Hub) joinRoom(p *game.Player, code string) {
	if err := h.rooms.AddPlayer(code, p); err != nil {
		h.send(p.ConnID, types.Failure(err))
		return
	}
	h.players.SetRoom(p.ConnID, code)

	room, _ := h.rooms.Get(code)
	snap := room.Snapshot()
	h.send(p.ConnID, types.ServerMessage{Type: types.MsgRoomJoined, Success: true, Room: &snap})
	h.broadcast(room, types.ServerMessage{
		Type: types.MsgPlayerJoined, Success: true, PlayerID: p.ID, Room: &snap,
	})
}

// leaveRoom detaches the connection from its current room, if any.
// Idempotent: an absent player or membership is a no-op.
func (h *Hub) leaveRoom(connID string) {
	p, ok := h.players.ByConnection(connID)
	if !ok || p.RoomCode == "" {
		return
	}
	code := p.RoomCode
	room, _ := h.rooms.Get(code)

	rep := h.rooms.RemovePlayer(code, connID)
	h.players.SetRoom(connID, "")
	h.players.SetTeam(connID, game.NoTeam)
	if !rep.Removed {
		return
	}

	if rep.RoomDeleted {
		h.log.Info("room deleted", zap.String("room", code))
		return
	}
	if rep.HostChanged {
		h.log.Info("host transferred",
			zap.String("room", code), zap.String("host", rep.NewHost))
	}
	snap := room.Snapshot()
	h.broadcast(room, types.ServerMessage{
		Type: types.MsgPlayerLeft, Success: true, PlayerID: p.ID, Room: &snap,
	})
}

func (h *Hub) startGame(p *game.Player, req types.ClientMessage) {
	room, ok := h.rooms.Get(req.RoomCode)
	if !ok {
		h.send(p.ConnID, types.Failure(game.ErrRoomNotFound))
		return
	}
	if room.HostConn != p.ConnID {
		h.send(p.ConnID, types.Failure(game.ErrNotHost))
		return
	}
	if err := h.rooms.StartGame(req.RoomCode); err != nil {
		h.send(p.ConnID, types.Failure(err))
		return
	}

	n := req.NumTeams
	if n <= 0 {
		n = h.defaultTeams
	}
	members := room.MemberPlayers()
	// An empty team would stall the rotation: nobody could ever pass
	// turn validation on its slot. Never create more teams than
	// players.
	if n > len(members) {
		n = len(members)
	}
	teams := h.teams.CreateTeams(n)
	h.teams.AssignPlayers(members, teams)
	h.teams.Balance(teams)
	room.SetTeams(teams)

	if err := h.turns.Initialize(room); err != nil {
		h.send(p.ConnID, types.Failure(err))
		return
	}
	info, _ := h.turns.Info(room)
	snap := room.Snapshot()
	h.broadcast(room, types.ServerMessage{
		Type: types.MsgGameStarted, Success: true, Room: &snap, Turn: &info,
	})
	h.send(p.ConnID, types.ServerMessage{Type: types.MsgAck, Success: true, Turn: &info})
	h.log.Info("game started",
		zap.String("room", room.Code), zap.Int("teams", n), zap.Int("players", len(snap.Players)))
}

func (h *Hub) makeMove(p *game.Player, req types.ClientMessage) {
	room, ok := h.rooms.Get(req.RoomCode)
	if !ok {
		h.send(p.ConnID, types.Failure(game.ErrRoomNotFound))
		return
	}
	if _, err := h.turns.ValidateTurn(room, p.ConnID); err != nil {
		h.send(p.ConnID, types.Failure(err))
		return
	}
	if err := h.turns.Lock(room); err != nil {
		h.send(p.ConnID, types.Failure(err))
		return
	}
	if err := h.applyMove(room, p, req.Move); err != nil {
		h.send(p.ConnID, types.Failure(err))
		return
	}

	h.broadcast(room, types.ServerMessage{
		Type: types.MsgMoveMade, Success: true, PlayerID: p.ID, Move: req.Move,
	})
	h.send(p.ConnID, types.ServerMessage{Type: types.MsgAck, Success: true})
}

// applyMove runs the host application's move logic inside the turn
// lock. The lock is released on every exit path; a panicking applier
// is contained to this room and surfaced as an error.
func (h *Hub) applyMove(room *game.Room, p *game.Player, move json.RawMessage) (err error) {
	defer h.turns.Unlock(room)
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("move applier panicked",
				zap.String("room", room.Code), zap.Any("panic", r))
			err = fmt.Errorf("apply move: %v", r)
		}
	}()

	next, err := h.moves.ApplyMove(room, p, move)
	if err != nil {
		return err
	}
	if next != nil {
		room.SetGameState(next)
	}
	return nil
}

func (h *Hub) endTurn(p *game.Player, req types.ClientMessage) {
	room, ok := h.rooms.Get(req.RoomCode)
	if !ok {
		h.send(p.ConnID, types.Failure(game.ErrRoomNotFound))
		return
	}
	if _, err := h.turns.ValidateTurn(room, p.ConnID); err != nil {
		h.send(p.ConnID, types.Failure(err))
		return
	}

	prev, _ := h.turns.CurrentTeamID(room)
	info, err := h.turns.Advance(room)
	if err != nil {
		h.send(p.ConnID, types.Failure(err))
		return
	}

	h.broadcast(room, types.ServerMessage{
		Type: types.MsgTurnChanged, Success: true, PrevTeam: prev, Turn: &info,
	})
	h.send(p.ConnID, types.ServerMessage{Type: types.MsgAck, Success: true, Turn: &info})
}

func (h *Hub) roomInfo(code string) types.ServerMessage {
	room, ok := h.rooms.Get(code)
	if !ok {
		return types.Failure(game.ErrRoomNotFound)
	}
	snap := room.Snapshot()
	msg := types.ServerMessage{Type: types.MsgRoomInfo, Success: true, Room: &snap}
	if info, started := h.turns.Info(room); started {
		msg.Turn = &info
	}
	return msg
}

func (h *Hub) broadcast(room *game.Room, msg types.ServerMessage) {
	for _, conn := range room.MemberConns() {
		h.send(conn, msg)
	}
}

// send delivers on the client's outbox. A full outbox means the client
// stopped draining; drop it rather than stall the loop.
func (h *Hub) send(connID string, msg types.ServerMessage) {
	ch, ok := h.clients[connID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		close(ch)
		delete(h.clients, connID)
		h.log.Warn("dropped slow client", zap.String("conn", connID))
	}
}
