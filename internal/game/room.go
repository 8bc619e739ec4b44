package game

import (
	"encoding/json"
	"sync"
	"time"
)

// Team is one slot in the turn rotation. ID is the team's fixed ordinal;
// the rotation order is the order of Room.Teams.
type Team struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"` // connection ids
}

// TurnState is the embedded round-robin state. The current team is
// Teams[Counter % len(Teams)]. Mutated only by the Coordinator.
type TurnState struct {
	Counter     int
	Locked      bool
	Initialized bool
}

// Room is an ephemeral session. It exists from the create-room request
// until its member set becomes empty, at which point the store deletes
// it immediately.
type Room struct {
	Code      string
	HostConn  string
	Players   map[string]*Player // keyed by connection id
	Teams     []*Team
	Turn      TurnState
	Started   bool
	CreatedAt time.Time
	GameState json.RawMessage // opaque; owned by the host application

	joinOrder []string // connection ids, join order; drives host failover

	mu sync.Mutex
}

// SetTeams installs the team list at game start.
func (r *Room) SetTeams(teams []*Team) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Teams = teams
}

// SetGameState replaces the opaque game-state blob.
func (r *Room) SetGameState(state json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.GameState = state
}

// MemberConns returns the member connection ids in join order.
func (r *Room) MemberConns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.joinOrder))
	copy(out, r.joinOrder)
	return out
}

// MemberPlayers returns the member records in join order.
func (r *Room) MemberPlayers() []*Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Player, 0, len(r.joinOrder))
	for _, conn := range r.joinOrder {
		if p, ok := r.Players[conn]; ok {
			out = append(out, p)
		}
	}
	return out
}

// PlayerSnapshot is the wire view of one room member.
type PlayerSnapshot struct {
	ID        string `json:"id"`
	ConnID    string `json:"conn_id"`
	Name      string `json:"name"`
	TeamID    int    `json:"team_id"`
	Connected bool   `json:"connected"`
}

// TeamSnapshot is the wire view of one team.
type TeamSnapshot struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// RoomSnapshot is the serialized room broadcast to members and returned
// from the info endpoints.
type RoomSnapshot struct {
	Code      string           `json:"code"`
	HostConn  string           `json:"host"`
	Players   []PlayerSnapshot `json:"players"`
	Teams     []TeamSnapshot   `json:"teams,omitempty"`
	Started   bool             `json:"started"`
	Turn      int              `json:"turn"`
	GameState json.RawMessage  `json:"game_state,omitempty"`
}

// Snapshot captures the room's serializable state. Players appear in
// join order so clients render a stable roster.
func (r *Room) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := RoomSnapshot{
		Code:      r.Code,
		HostConn:  r.HostConn,
		Players:   make([]PlayerSnapshot, 0, len(r.joinOrder)),
		Started:   r.Started,
		Turn:      r.Turn.Counter,
		GameState: r.GameState,
	}
	for _, conn := range r.joinOrder {
		p, ok := r.Players[conn]
		if !ok {
			continue
		}
		snap.Players = append(snap.Players, PlayerSnapshot{
			ID:        p.ID,
			ConnID:    p.ConnID,
			Name:      p.Name,
			TeamID:    p.TeamID,
			Connected: p.Connected,
		})
	}
	for _, t := range r.Teams {
		members := make([]string, len(t.Members))
		copy(members, t.Members)
		snap.Teams = append(snap.Teams, TeamSnapshot{ID: t.ID, Name: t.Name, Members: members})
	}
	return snap
}
