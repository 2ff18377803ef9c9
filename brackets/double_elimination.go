package brackets

import (
	"context"
	"fmt"

	"github.com/bracketlab/bracket-engine/models"
)

type DoubleEliminationGenerator struct{}

func NewDoubleEliminationGenerator() Generator {
	return &DoubleEliminationGenerator{}
}

func (g *DoubleEliminationGenerator) Name() string { return "DoubleElimination" }

// Generate builds the main bracket exactly like single elimination, then a
// consolation bracket sized to absorb every main-bracket loser exactly once,
// and a grand final where the consolation winner meets the undefeated main
// champion. The reset final that follows a consolation-side grand-final win
// is not generated here; the progression engine creates it on demand.
func (g *DoubleEliminationGenerator) Generate(ctx context.Context, params GenerateParams) ([]*models.BracketNode, error) {
	entrants := EnsureSeeds(params.Entrants)
	if len(entrants) < 2 {
		return nil, fmt.Errorf("double elimination requires at least 2 entrants, got %d", len(entrants))
	}
	competitionID := params.Competition.ID

	main := buildKnockout(competitionID, entrants, 1, 0)
	size := nextPowerOfTwo(len(entrants))
	k := 0
	for s := size; s > 1; s >>= 1 {
		k++
	}
	mainFinal := main[len(main)-1]
	nextID := len(main) + 1

	if k == 1 {
		// Two entrants: the opening game doubles as the winners final, its
		// loser goes straight to the grand final's consolation slot.
		gf := grandFinalNode(competitionID, nextID)
		mainFinal.NextNodeID = intPtr(gf.ID)
		mainFinal.NextSlot = intPtr(1)
		mainFinal.LoserNextNodeID = intPtr(gf.ID)
		mainFinal.LoserNextSlot = intPtr(2)
		return append(main, gf), nil
	}

	lbRounds := 2 * (k - 1)
	byJP := make(map[[2]int]*models.BracketNode)
	var lb []*models.BracketNode
	id := nextID
	for j := 1; j <= lbRounds; j++ {
		matches := size >> ((j+1)/2 + 1)
		for p := 1; p <= matches; p++ {
			node := &models.BracketNode{
				ID:            id,
				CompetitionID: competitionID,
				Round:         j,
				Position:      p,
				Branch:        models.BranchConsolation,
				Status:        models.NodeStatusPending,
			}
			id++
			lb = append(lb, node)
			byJP[[2]int{j, p}] = node
		}
	}
	gf := grandFinalNode(competitionID, id)

	// Consolation winner links. Odd rounds pair consolation survivors, even
	// rounds absorb the matching main-bracket losers, and the last round
	// feeds the grand final's second slot.
	for _, node := range lb {
		j, p := node.Round, node.Position
		switch {
		case j == lbRounds:
			node.NextNodeID = intPtr(gf.ID)
			node.NextSlot = intPtr(2)
		case j%2 == 1:
			node.NextNodeID = intPtr(byJP[[2]int{j + 1, p}].ID)
			node.NextSlot = intPtr(1)
		default:
			node.NextNodeID = intPtr(byJP[[2]int{j + 1, (p + 1) / 2}].ID)
			if p%2 == 1 {
				node.NextSlot = intPtr(1)
			} else {
				node.NextSlot = intPtr(2)
			}
		}
	}

	mainFinal.NextNodeID = intPtr(gf.ID)
	mainFinal.NextSlot = intPtr(1)

	// Main-bracket loser drops. Round 1 losers pair up in consolation round
	// 1; later rounds drop into the even consolation round of matching size,
	// with alternating rounds reversed to delay rematches.
	for _, node := range main {
		r, p := node.Round, node.Position
		if r == 1 {
			node.LoserNextNodeID = intPtr(byJP[[2]int{1, (p + 1) / 2}].ID)
			if p%2 == 1 {
				node.LoserNextSlot = intPtr(1)
			} else {
				node.LoserNextSlot = intPtr(2)
			}
			continue
		}
		j := 2 * (r - 1)
		matches := size >> ((j+1)/2 + 1)
		target := p
		if r%2 == 0 {
			target = matches - p + 1
		}
		node.LoserNextNodeID = intPtr(byJP[[2]int{j, target}].ID)
		node.LoserNextSlot = intPtr(2)
	}

	kept := pruneConsolation(main, lb, gf)

	nodes := make([]*models.BracketNode, 0, len(main)+len(kept)+1)
	nodes = append(nodes, main...)
	nodes = append(nodes, kept...)
	nodes = append(nodes, gf)
	renumber(nodes)
	return nodes, nil
}

func grandFinalNode(competitionID, id int) *models.BracketNode {
	return &models.BracketNode{
		ID:            id,
		CompetitionID: competitionID,
		Round:         1,
		Position:      1,
		Branch:        models.BranchGrandFinal,
		Status:        models.NodeStatusPending,
	}
}

// inboundLink identifies a source node's forward link into a consolation
// node: the winner link of a consolation node or the loser link of a main
// node.
type inboundLink struct {
	source *models.BracketNode
	loser  bool
}

func (l inboundLink) retarget(nodeID, slot int) {
	if l.loser {
		l.source.LoserNextNodeID = intPtr(nodeID)
		l.source.LoserNextSlot = intPtr(slot)
	} else {
		l.source.NextNodeID = intPtr(nodeID)
		l.source.NextSlot = intPtr(slot)
	}
}

// pruneConsolation removes consolation nodes that can never host a game
// because main-bracket byes produce no loser. A node with a single live feed
// becomes a pass-through: its feed is re-pointed at the node's own winner
// target. Nodes are processed in round order so every source is already
// resolved when its target is examined.
func pruneConsolation(main, lb []*models.BracketNode, gf *models.BracketNode) []*models.BracketNode {
	inbound := make(map[int][]inboundLink)
	for _, m := range main {
		if m.LoserNextNodeID == nil {
			continue
		}
		if m.Status == models.NodeStatusCompleted {
			// Generation-time bye: this node never yields a loser.
			m.LoserNextNodeID = nil
			m.LoserNextSlot = nil
			continue
		}
		inbound[*m.LoserNextNodeID] = append(inbound[*m.LoserNextNodeID], inboundLink{source: m, loser: true})
	}

	dropped := make(map[int]bool)
	var kept []*models.BracketNode
	for _, node := range lb {
		links := inbound[node.ID]
		switch len(links) {
		case 0:
			dropped[node.ID] = true
		case 1:
			// Pass-through: forward the lone feed to this node's target.
			dropped[node.ID] = true
			links[0].retarget(*node.NextNodeID, *node.NextSlot)
			inbound[*node.NextNodeID] = append(inbound[*node.NextNodeID], links[0])
		default:
			links[0].retarget(node.ID, 1)
			links[1].retarget(node.ID, 2)
			kept = append(kept, node)
			if node.NextNodeID != nil && *node.NextNodeID != gf.ID {
				inbound[*node.NextNodeID] = append(inbound[*node.NextNodeID], inboundLink{source: node})
			}
		}
	}
	return kept
}

// renumber compacts node ids after pruning so the arena stays dense.
func renumber(nodes []*models.BracketNode) {
	idMap := make(map[int]int, len(nodes))
	next := 1
	for _, n := range nodes {
		idMap[n.ID] = next
		next++
	}
	for _, n := range nodes {
		n.ID = idMap[n.ID]
		if n.NextNodeID != nil {
			n.NextNodeID = intPtr(idMap[*n.NextNodeID])
		}
		if n.LoserNextNodeID != nil {
			n.LoserNextNodeID = intPtr(idMap[*n.LoserNextNodeID])
		}
	}
}
