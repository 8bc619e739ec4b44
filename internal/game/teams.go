package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// teamLabels are the predefined display names. Team counts beyond the
// label list fall back to generated names.
var teamLabels = []string{"Red", "Blue", "Green", "Yellow", "Purple", "Orange"}

// Assigner partitions a room's players into balanced teams and keeps
// each player's registry record in sync with its team membership.
type Assigner struct {
	registry *Registry
	rng      *rand.Rand
}

// NewAssigner builds an assigner with a crypto-seeded shuffle source.
// Pass a non-nil rng to make assignment deterministic in tests.
func NewAssigner(registry *Registry, rng *rand.Rand) *Assigner {
	if rng == nil {
		rng = rand.New(rand.NewSource(newSeed()))
	}
	return &Assigner{registry: registry, rng: rng}
}

func newSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand failing means the platform is broken; a zero
		// seed only costs shuffle quality, not correctness.
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// CreateTeams returns n teams with ordinal ids 0..n-1.
func (a *Assigner) CreateTeams(n int) []*Team {
	teams := make([]*Team, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Team %d", i+1)
		if i < len(teamLabels) {
			name = teamLabels[i]
		}
		teams = append(teams, &Team{ID: i, Name: name, Members: []string{}})
	}
	return teams
}

// AssignPlayers shuffles the players uniformly (Fisher-Yates) and deals
// them out round-robin by shuffled index mod team count, so initial
// team sizes already differ by at most one. Each player's registry
// record is updated with its team.
func (a *Assigner) AssignPlayers(players []*Player, teams []*Team) {
	if len(teams) == 0 {
		return
	}
	shuffled := make([]*Player, len(players))
	copy(shuffled, players)
	a.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	for i, p := range shuffled {
		t := teams[i%len(teams)]
		t.Members = append(t.Members, p.ConnID)
		a.registry.SetTeam(p.ConnID, t.ID)
	}
}

// Balance restores the size invariant after ad-hoc membership changes:
// while the largest and smallest teams differ by more than one member,
// move one member from the largest to the smallest. Every move shrinks
// the largest team and grows the smallest, so the gap strictly
// decreases and the loop terminates.
func (a *Assigner) Balance(teams []*Team) {
	if len(teams) < 2 {
		return
	}
	for {
		largest, smallest := teams[0], teams[0]
		for _, t := range teams[1:] {
			if len(t.Members) > len(largest.Members) {
				largest = t
			}
			if len(t.Members) < len(smallest.Members) {
				smallest = t
			}
		}
		if len(largest.Members)-len(smallest.Members) <= 1 {
			return
		}
		conn := largest.Members[len(largest.Members)-1]
		largest.Members = largest.Members[:len(largest.Members)-1]
		smallest.Members = append(smallest.Members, conn)
		a.registry.SetTeam(conn, smallest.ID)
	}
}

// Reassign moves a player to the team with the given id, dropping any
// existing membership first.
func (a *Assigner) Reassign(teams []*Team, connID string, newTeamID int) error {
	target, ok := a.TeamByID(teams, newTeamID)
	if !ok {
		return ErrTeamNotFound
	}
	for _, t := range teams {
		for i, c := range t.Members {
			if c == connID {
				t.Members = append(t.Members[:i], t.Members[i+1:]...)
				break
			}
		}
	}
	target.Members = append(target.Members, connID)
	a.registry.SetTeam(connID, target.ID)
	return nil
}

// PlayerTeam finds the team holding the given connection, if any.
func (a *Assigner) PlayerTeam(teams []*Team, connID string) (*Team, bool) {
	for _, t := range teams {
		for _, c := range t.Members {
			if c == connID {
				return t, true
			}
		}
	}
	return nil, false
}

func (a *Assigner) TeamByID(teams []*Team, id int) (*Team, bool) {
	for _, t := range teams {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}
