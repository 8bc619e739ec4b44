package game

import (
	"sync"
	"time"
)

// CodeGenerator produces candidate room codes. The store retries on
// collision up to a bounded attempt count.
type CodeGenerator interface {
	NewCode() (string, error)
}

// RemovalReport describes what RemovePlayer did. Removal is idempotent,
// so a report with Removed=false just means there was nothing to do.
type RemovalReport struct {
	Removed     bool
	RoomDeleted bool
	HostChanged bool
	NewHost     string
}

// Store owns all live rooms, keyed by code. Room membership is mutated
// only through the store so the empty-room and single-host invariants
// hold at every return.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	codes        CodeGenerator
	maxPlayers   int
	minPlayers   int
	codeAttempts int
}

func NewStore(codes CodeGenerator, maxPlayers, minPlayers, codeAttempts int) *Store {
	return &Store{
		rooms:        make(map[string]*Room),
		codes:        codes,
		maxPlayers:   maxPlayers,
		minPlayers:   minPlayers,
		codeAttempts: codeAttempts,
	}
}

// CreateRoom allocates a fresh code and stores an empty room with the
// given host. Returns ErrCodeSpaceExhausted once the attempt budget is
// spent; it never retries unboundedly.
func (s *Store) CreateRoom(hostConn string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.codeAttempts; i++ {
		code, err := s.codes.NewCode()
		if err != nil {
			return nil, err
		}
		if _, taken := s.rooms[code]; taken {
			continue
		}
		room := &Room{
			Code:      code,
			HostConn:  hostConn,
			Players:   make(map[string]*Player),
			CreatedAt: time.Now(),
		}
		s.rooms[code] = room
		return room, nil
	}
	return nil, ErrCodeSpaceExhausted
}

// AddPlayer inserts the player into the room's member set.
func (s *Store) AddPlayer(code string, p *Player) error {
	s.mu.RLock()
	room, ok := s.rooms[code]
	s.mu.RUnlock()
	if !ok {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Started {
		return ErrGameAlreadyStarted
	}
	if _, present := room.Players[p.ConnID]; present {
		return nil
	}
	if len(room.Players) >= s.maxPlayers {
		return ErrRoomFull
	}
	room.Players[p.ConnID] = p
	room.joinOrder = append(room.joinOrder, p.ConnID)
	return nil
}

// RemovePlayer takes the player out of the room and any team. Deletes
// the room the moment it becomes empty; otherwise, if the removed
// player was host, hands host to the earliest remaining member by join
// order. A missing room or player is a no-op.
func (s *Store) RemovePlayer(code, connID string) RemovalReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[code]
	if !ok {
		return RemovalReport{}
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if _, present := room.Players[connID]; !present {
		return RemovalReport{}
	}

	delete(room.Players, connID)
	for i, c := range room.joinOrder {
		if c == connID {
			room.joinOrder = append(room.joinOrder[:i], room.joinOrder[i+1:]...)
			break
		}
	}
	for _, t := range room.Teams {
		for i, c := range t.Members {
			if c == connID {
				t.Members = append(t.Members[:i], t.Members[i+1:]...)
				break
			}
		}
	}

	rep := RemovalReport{Removed: true}
	if len(room.Players) == 0 {
		delete(s.rooms, code)
		rep.RoomDeleted = true
		return rep
	}
	if room.HostConn == connID {
		room.HostConn = room.joinOrder[0]
		rep.HostChanged = true
		rep.NewHost = room.HostConn
	}
	return rep
}

// StartGame flips the room's started flag. The flag is monotonic; a
// second start fails with ErrAlreadyStarted.
func (s *Store) StartGame(code string) error {
	s.mu.RLock()
	room, ok := s.rooms[code]
	s.mu.RUnlock()
	if !ok {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Started {
		return ErrAlreadyStarted
	}
	if len(room.Players) < s.minPlayers {
		return ErrInsufficientPlayers
	}
	room.Started = true
	return nil
}

func (s *Store) Get(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	return room, ok
}

func (s *Store) Exists(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[code]
	return ok
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
