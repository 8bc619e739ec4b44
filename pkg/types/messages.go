package types

import (
	"encoding/json"
	"errors"

	"github.com/partyround/game-rooms-backend/internal/game"
)

// Client -> Server request types.
const (
	ReqCreateRoom  = "CreateRoom"
	ReqJoinRoom    = "JoinRoom"
	ReqLeaveRoom   = "LeaveRoom"
	ReqStartGame   = "StartGame"
	ReqMakeMove    = "MakeMove"
	ReqEndTurn     = "EndTurn"
	ReqGetRoomInfo = "GetRoomInfo"
)

// Server -> Client message types. Replies go to the acting connection;
// the rest are room broadcasts.
const (
	MsgWelcome     = "Welcome"
	MsgRoomCreated = "RoomCreated"
	MsgRoomJoined  = "RoomJoined"
	MsgAck         = "Ack"
	MsgRoomInfo    = "RoomInfo"
	MsgError       = "Error"

	MsgPlayerJoined = "PlayerJoined"
	MsgPlayerLeft   = "PlayerLeft"
	MsgGameStarted  = "GameStarted"
	MsgTurnChanged  = "TurnChanged"
	MsgMoveMade     = "MoveMade"
)

type ClientMessage struct {
	Type     string          `json:"type"`
	RoomCode string          `json:"room_code,omitempty"`
	NumTeams int             `json:"num_teams,omitempty"`
	Move     json.RawMessage `json:"move,omitempty"`
}

type ServerMessage struct {
	Type     string             `json:"type"`
	Success  bool               `json:"success"`
	Reason   string             `json:"reason,omitempty"`
	Message  string             `json:"message,omitempty"`
	PlayerID string             `json:"player_id,omitempty"`
	ConnID   string             `json:"conn_id,omitempty"`
	Room     *game.RoomSnapshot `json:"room,omitempty"`
	Turn     *game.TurnInfo     `json:"turn,omitempty"`
	// PrevTeam is only meaningful on TurnChanged; 0 is a valid team
	// id, so the field must not be omitted when zero.
	PrevTeam int                `json:"prev_team"`
	Move     json.RawMessage    `json:"move,omitempty"`
}

// Wire reason codes for the failure taxonomy.
const (
	ReasonRoomNotFound        = "RoomNotFound"
	ReasonTeamNotFound        = "TeamNotFound"
	ReasonUnknownPlayer       = "UnknownPlayer"
	ReasonAlreadyStarted      = "AlreadyStarted"
	ReasonGameAlreadyStarted  = "GameAlreadyStarted"
	ReasonNotStarted          = "NotStarted"
	ReasonNotHost             = "NotHost"
	ReasonLocked              = "Locked"
	ReasonWrongTeam           = "WrongTeam"
	ReasonRoomFull            = "RoomFull"
	ReasonInsufficientPlayers = "InsufficientPlayers"
	ReasonResourceExhausted   = "ResourceExhausted"
	ReasonBadRequest          = "BadRequest"
	ReasonInternal            = "Internal"
)

// ReasonFor maps a coordination error to its wire reason code.
func ReasonFor(err error) string {
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		return ReasonRoomNotFound
	case errors.Is(err, game.ErrTeamNotFound):
		return ReasonTeamNotFound
	case errors.Is(err, game.ErrUnknownPlayer):
		return ReasonUnknownPlayer
	case errors.Is(err, game.ErrAlreadyStarted):
		return ReasonAlreadyStarted
	case errors.Is(err, game.ErrGameAlreadyStarted):
		return ReasonGameAlreadyStarted
	case errors.Is(err, game.ErrNotStarted):
		return ReasonNotStarted
	case errors.Is(err, game.ErrNotHost):
		return ReasonNotHost
	case errors.Is(err, game.ErrTurnLocked):
		return ReasonLocked
	case errors.Is(err, game.ErrWrongTeam):
		return ReasonWrongTeam
	case errors.Is(err, game.ErrRoomFull):
		return ReasonRoomFull
	case errors.Is(err, game.ErrInsufficientPlayers):
		return ReasonInsufficientPlayers
	case errors.Is(err, game.ErrCodeSpaceExhausted):
		return ReasonResourceExhausted
	default:
		return ReasonInternal
	}
}

// Failure builds an error reply for the acting connection.
func Failure(err error) ServerMessage {
	return ServerMessage{
		Type:    MsgError,
		Success: false,
		Reason:  ReasonFor(err),
		Message: err.Error(),
	}
}
