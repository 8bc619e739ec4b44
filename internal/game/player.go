package game

import (
	"sync"

	"github.com/google/uuid"
)

// NoTeam marks a player that has not been assigned to any team.
const NoTeam = -1

// Player is the registry's record for one live connection. A player is
// created when the connection is established and removed only when it
// terminates; leaving a room does not delete the record.
type Player struct {
	ID        string `json:"id"`
	ConnID    string `json:"conn_id"`
	Name      string `json:"name"`
	RoomCode  string `json:"room_code,omitempty"`
	TeamID    int    `json:"team_id"`
	Connected bool   `json:"connected"`
}

// Registry tracks connected players keyed by connection id. All lookups
// report absence with a bool; no registry operation returns an error.
type Registry struct {
	mu      sync.RWMutex
	players map[string]*Player
}

func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

// CreatePlayer registers a player for connID. Re-registering a known
// connection returns the existing record unchanged.
func (r *Registry) CreatePlayer(connID, name string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[connID]; ok {
		return p
	}
	p := &Player{
		ID:        uuid.NewString(),
		ConnID:    connID,
		Name:      name,
		TeamID:    NoTeam,
		Connected: true,
	}
	r.players[connID] = p
	return p
}

func (r *Registry) ByConnection(connID string) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[connID]
	return p, ok
}

// ByID finds a player by its stable id. Linear scan; fine at the scale
// of a few thousand concurrent connections.
func (r *Registry) ByID(id string) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// SetRoom records the player's current room. An empty code clears it.
func (r *Registry) SetRoom(connID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[connID]; ok {
		p.RoomCode = code
	}
}

// SetTeam records the player's current team. NoTeam clears it.
func (r *Registry) SetTeam(connID string, teamID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[connID]; ok {
		p.TeamID = teamID
	}
}

// SetConnected flips the player's connected flag. Transports flip it
// false when the connection drops; a transport with a reconnection
// grace period flips it back on resume instead of re-registering.
func (r *Registry) SetConnected(connID string, connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[connID]; ok {
		p.Connected = connected
	}
}

// Remove deletes the player record. Subsequent lookups report absent.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, connID)
}

func (r *Registry) CountConnected() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.players {
		if p.Connected {
			n++
		}
	}
	return n
}
