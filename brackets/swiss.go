package brackets

import (
	"context"
	"fmt"
	"sort"

	"github.com/bracketlab/bracket-engine/models"
)

type SwissGenerator struct{}

func NewSwissGenerator() Generator {
	return &SwissGenerator{}
}

func (g *SwissGenerator) Name() string { return "Swiss" }

// Generate emits round 1 only: the top seed half plays the bottom half, no
// rematch constraint applies yet. Later rounds are paired incrementally by
// the progression engine once the current round completes. With an odd
// entrant count the lowest seed receives the round's bye.
func (g *SwissGenerator) Generate(ctx context.Context, params GenerateParams) ([]*models.BracketNode, error) {
	entrants := EnsureSeeds(params.Entrants)
	if len(entrants) < 2 {
		return nil, fmt.Errorf("swiss system requires at least 2 entrants, got %d", len(entrants))
	}

	n := len(entrants)
	half := n / 2
	nodes := make([]*models.BracketNode, 0, half+n%2)
	id := 1
	for i := 0; i < half; i++ {
		nodes = append(nodes, swissNode(params.Competition.ID, id, 1, i+1,
			entrants[i].ID, intPtr(entrants[i+half].ID)))
		id++
	}
	if n%2 == 1 {
		bye := swissNode(params.Competition.ID, id, 1, half+1, entrants[n-1].ID, nil)
		bye.Status = models.NodeStatusCompleted
		bye.WinnerID = intPtr(entrants[n-1].ID)
		nodes = append(nodes, bye)
	}
	return nodes, nil
}

func swissNode(competitionID, id, round, position, slotA int, slotB *int) *models.BracketNode {
	node := &models.BracketNode{
		ID:            id,
		CompetitionID: competitionID,
		Round:         round,
		Position:      position,
		SwissRound:    intPtr(round),
		SlotA:         intPtr(slotA),
		SlotB:         slotB,
		Status:        models.NodeStatusScheduled,
	}
	if slotB == nil {
		node.Status = models.NodeStatusPending
	}
	return node
}

// PairSwissRound pairs the next Swiss round: entrants with equal or nearest
// cumulative competition points meet, and no pairing may repeat. The
// standings slice must already be in rank order. Backtracking guarantees a
// rematch-free perfect matching whenever one exists; if none does, the
// remaining entrants are paired in order as a last resort.
func PairSwissRound(competitionID int, standings []*models.Entrant, played map[[2]int]bool, round, startID int) []*models.BracketNode {
	pool := make([]*models.Entrant, len(standings))
	copy(pool, standings)

	var byeEntrant *models.Entrant
	if len(pool)%2 == 1 {
		// The lowest-ranked entrant that has not yet had a bye sits out.
		for i := len(pool) - 1; i >= 0; i-- {
			if !played[pairKey(pool[i].ID, 0)] {
				byeEntrant = pool[i]
				pool = append(pool[:i:i], pool[i+1:]...)
				break
			}
		}
		if byeEntrant == nil {
			byeEntrant = pool[len(pool)-1]
			pool = pool[:len(pool)-1]
		}
	}

	pairs := matchPool(pool, played)
	if pairs == nil {
		// No rematch-free matching exists; fall back to adjacent pairing.
		pairs = make([][2]*models.Entrant, 0, len(pool)/2)
		for i := 0; i+1 < len(pool); i += 2 {
			pairs = append(pairs, [2]*models.Entrant{pool[i], pool[i+1]})
		}
	}

	nodes := make([]*models.BracketNode, 0, len(pairs)+1)
	id := startID
	for i, pair := range pairs {
		nodes = append(nodes, swissNode(competitionID, id, round, i+1, pair[0].ID, intPtr(pair[1].ID)))
		id++
	}
	if byeEntrant != nil {
		bye := swissNode(competitionID, id, round, len(pairs)+1, byeEntrant.ID, nil)
		bye.Status = models.NodeStatusCompleted
		bye.WinnerID = intPtr(byeEntrant.ID)
		nodes = append(nodes, bye)
	}
	return nodes
}

// matchPool finds a rematch-free perfect matching, preferring opponents
// nearest in the standings. Returns nil when no such matching exists.
func matchPool(pool []*models.Entrant, played map[[2]int]bool) [][2]*models.Entrant {
	if len(pool) == 0 {
		return [][2]*models.Entrant{}
	}
	first := pool[0]
	for i := 1; i < len(pool); i++ {
		if played[pairKey(first.ID, pool[i].ID)] {
			continue
		}
		rest := make([]*models.Entrant, 0, len(pool)-2)
		rest = append(rest, pool[1:i]...)
		rest = append(rest, pool[i+1:]...)
		if tail := matchPool(rest, played); tail != nil {
			return append([][2]*models.Entrant{{first, pool[i]}}, tail...)
		}
	}
	return nil
}

// PlayedPairs indexes every pairing that has already occurred, including
// byes (keyed against entrant 0).
func PlayedPairs(nodes []*models.BracketNode) map[[2]int]bool {
	played := make(map[[2]int]bool)
	for _, n := range nodes {
		if n.SlotA == nil {
			continue
		}
		if n.SlotB == nil {
			played[pairKey(*n.SlotA, 0)] = true
			continue
		}
		played[pairKey(*n.SlotA, *n.SlotB)] = true
	}
	return played
}

func pairKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// sortStable is a seed-ordered view used by tests; exported pairing APIs
// expect the caller to rank entrants first.
func sortStable(entrants []*models.Entrant) {
	sort.SliceStable(entrants, func(i, j int) bool {
		return entrants[i].SeedValue() < entrants[j].SeedValue()
	})
}
