package game

// TurnInfo is the read-only view of a room's turn state.
type TurnInfo struct {
	Counter   int    `json:"counter"`
	TeamID    int    `json:"team_id"`
	TeamName  string `json:"team_name"`
	Locked    bool   `json:"locked"`
	TeamCount int    `json:"team_count"`
}

// Coordinator drives the round-robin turn state machine embedded in a
// room: NotStarted -> Unlocked(0), Unlocked(k) <-> Locked(k),
// Unlocked(k) -> Unlocked(k+1). The lock brackets move application so
// a second move cannot validate while one is mid-flight.
type Coordinator struct {
	registry *Registry
}

func NewCoordinator(registry *Registry) *Coordinator {
	return &Coordinator{registry: registry}
}

// Initialize moves the room to Unlocked(0). Valid exactly once, after
// the room has started and its teams are set.
func (c *Coordinator) Initialize(r *Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Started || len(r.Teams) == 0 {
		return ErrNotStarted
	}
	if r.Turn.Initialized {
		return ErrAlreadyStarted
	}
	r.Turn = TurnState{Counter: 0, Locked: false, Initialized: true}
	return nil
}

// ValidateTurn is a pure predicate over the current state; it never
// transitions. On acceptance it yields the current team id.
func (c *Coordinator) ValidateTurn(r *Room, connID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Turn.Initialized {
		return 0, ErrNotStarted
	}
	if r.Turn.Locked {
		return 0, ErrTurnLocked
	}
	p, ok := c.registry.ByConnection(connID)
	if !ok {
		return 0, ErrUnknownPlayer
	}
	current := r.Turn.Counter % len(r.Teams)
	if p.TeamID != current {
		return 0, ErrWrongTeam
	}
	return current, nil
}

// Lock enters the move-application critical section.
func (c *Coordinator) Lock(r *Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Turn.Initialized {
		return ErrNotStarted
	}
	if r.Turn.Locked {
		return ErrTurnLocked
	}
	r.Turn.Locked = true
	return nil
}

// Unlock leaves the critical section. It must run on every exit path
// of move application; an abandoned lock stalls the room permanently.
// Unlocking an unlocked room is a no-op.
func (c *Coordinator) Unlock(r *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Turn.Locked = false
}

// Advance steps Unlocked(k) to Unlocked(k+1) and returns the new info.
func (c *Coordinator) Advance(r *Room) (TurnInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Turn.Initialized {
		return TurnInfo{}, ErrNotStarted
	}
	if r.Turn.Locked {
		return TurnInfo{}, ErrTurnLocked
	}
	r.Turn.Counter++
	return c.infoLocked(r), nil
}

// SetTurn forces the rotation to the given team and clears the lock.
// The counter is reset to the team's ordinal, discarding its prior
// magnitude.
func (c *Coordinator) SetTurn(r *Room, teamID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Turn.Initialized {
		return ErrNotStarted
	}
	found := false
	for _, t := range r.Teams {
		if t.ID == teamID {
			found = true
			break
		}
	}
	if !found {
		return ErrTeamNotFound
	}
	r.Turn.Counter = teamID
	r.Turn.Locked = false
	return nil
}

// CurrentTeam returns the team whose turn it is.
func (c *Coordinator) CurrentTeam(r *Room) (*Team, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Turn.Initialized || len(r.Teams) == 0 {
		return nil, false
	}
	return r.Teams[r.Turn.Counter%len(r.Teams)], true
}

// CurrentTeamID returns the current team's ordinal.
func (c *Coordinator) CurrentTeamID(r *Room) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Turn.Initialized || len(r.Teams) == 0 {
		return 0, false
	}
	return r.Turn.Counter % len(r.Teams), true
}

// Info returns the full turn view, or false before initialization.
func (c *Coordinator) Info(r *Room) (TurnInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Turn.Initialized {
		return TurnInfo{}, false
	}
	return c.infoLocked(r), true
}

func (c *Coordinator) infoLocked(r *Room) TurnInfo {
	idx := r.Turn.Counter % len(r.Teams)
	return TurnInfo{
		Counter:   r.Turn.Counter,
		TeamID:    r.Teams[idx].ID,
		TeamName:  r.Teams[idx].Name,
		Locked:    r.Turn.Locked,
		TeamCount: len(r.Teams),
	}
}
