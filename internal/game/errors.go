package game

import "errors"

var ErrRoomNotFound = errors.New("room not found")
var ErrRoomFull = errors.New("room is full")
var ErrAlreadyStarted = errors.New("game already started")
var ErrGameAlreadyStarted = errors.New("cannot join, game already started")
var ErrInsufficientPlayers = errors.New("not enough players to start")
var ErrNotHost = errors.New("only the host can start the game")
var ErrNotStarted = errors.New("game not started")
var ErrTurnLocked = errors.New("a move is already being processed")
var ErrWrongTeam = errors.New("not this team's turn")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrTeamNotFound = errors.New("team not found")
var ErrCodeSpaceExhausted = errors.New("could not allocate a unique room code")
