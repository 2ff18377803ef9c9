package brackets

import (
	"context"
	"fmt"

	"github.com/bracketlab/bracket-engine/models"
)

type SingleEliminationGenerator struct{}

func NewSingleEliminationGenerator() Generator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) Name() string { return "SingleElimination" }

func (g *SingleEliminationGenerator) Generate(ctx context.Context, params GenerateParams) ([]*models.BracketNode, error) {
	entrants := EnsureSeeds(params.Entrants)
	if len(entrants) < 2 {
		return nil, fmt.Errorf("single elimination requires at least 2 entrants, got %d", len(entrants))
	}
	nodes := buildKnockout(params.Competition.ID, entrants, 1, 0)
	return nodes, nil
}

// buildKnockout constructs a complete main-bracket arena for the given
// seed-ordered entrant list. The bracket is sized to the next power of two:
// size-1 nodes across log2(size) rounds, with top seeds receiving first-round
// byes when the list is short. Node ids start at startID and rounds at
// roundOffset+1, so the same builder serves initial generation and the
// knockout phase appended after a group stage.
func buildKnockout(competitionID int, entrants []*models.Entrant, startID, roundOffset int) []*models.BracketNode {
	n := len(entrants)
	size := nextPowerOfTwo(n)
	rounds := 0
	for s := size; s > 1; s >>= 1 {
		rounds++
	}

	nodes := make([]*models.BracketNode, 0, size-1)
	byRoundPos := make(map[[2]int]*models.BracketNode, size-1)

	id := startID
	for r := 1; r <= rounds; r++ {
		matches := size >> r
		for p := 1; p <= matches; p++ {
			node := &models.BracketNode{
				ID:            id,
				CompetitionID: competitionID,
				Round:         r + roundOffset,
				Position:      p,
				Branch:        models.BranchMain,
				Status:        models.NodeStatusPending,
			}
			id++
			nodes = append(nodes, node)
			byRoundPos[[2]int{r + roundOffset, p}] = node
		}
	}

	// Forward links: every node except the final feeds its parent's slot.
	for r := 1; r < rounds; r++ {
		matches := size >> r
		for p := 1; p <= matches; p++ {
			node := byRoundPos[[2]int{r + roundOffset, p}]
			parent := byRoundPos[[2]int{r + roundOffset + 1, (p + 1) / 2}]
			node.NextNodeID = intPtr(parent.ID)
			if p%2 == 1 {
				node.NextSlot = intPtr(1)
			} else {
				node.NextSlot = intPtr(2)
			}
		}
	}

	// Round-1 seeding. Seeds beyond the entrant count are byes; the seed
	// order guarantees two byes never meet because size < 2n.
	order := seedOrder(size)
	for p := 1; p <= size/2; p++ {
		node := byRoundPos[[2]int{1 + roundOffset, p}]
		seedA := order[2*p-2]
		seedB := order[2*p-1]
		if seedA <= n {
			node.SlotA = intPtr(entrants[seedA-1].ID)
		}
		if seedB <= n {
			node.SlotB = intPtr(entrants[seedB-1].ID)
		}
		switch {
		case node.SlotA != nil && node.SlotB != nil:
			node.Status = models.NodeStatusScheduled
		case node.SlotA != nil:
			completeBye(node, byRoundPos, *node.SlotA)
		case node.SlotB != nil:
			completeBye(node, byRoundPos, *node.SlotB)
		}
	}

	return nodes
}

// completeBye marks a generation-time bye as already decided and advances
// the lone entrant into the parent slot.
func completeBye(node *models.BracketNode, byRoundPos map[[2]int]*models.BracketNode, entrantID int) {
	node.Status = models.NodeStatusCompleted
	node.WinnerID = intPtr(entrantID)
	if node.NextNodeID == nil {
		return
	}
	parent := byRoundPos[[2]int{node.Round + 1, (node.Position + 1) / 2}]
	if *node.NextSlot == 1 {
		parent.SlotA = intPtr(entrantID)
	} else {
		parent.SlotB = intPtr(entrantID)
	}
	if parent.SlotA != nil && parent.SlotB != nil {
		parent.Status = models.NodeStatusScheduled
	}
}
