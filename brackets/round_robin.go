package brackets

import (
	"context"
	"fmt"

	"github.com/bracketlab/bracket-engine/models"
)

type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() Generator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) Name() string { return "RoundRobin" }

// Generate emits every unordered pairing exactly once. With more than one
// group the entrants are first partitioned by snake draft on seed, then each
// group round-robins independently under its own label.
func (g *RoundRobinGenerator) Generate(ctx context.Context, params GenerateParams) ([]*models.BracketNode, error) {
	entrants := EnsureSeeds(params.Entrants)
	if len(entrants) < 2 {
		return nil, fmt.Errorf("round robin requires at least 2 entrants, got %d", len(entrants))
	}

	groups := SnakeDraftGroups(entrants, params.Competition.GroupCount)
	nodes := make([]*models.BracketNode, 0)
	id := 1
	position := 1
	for _, grp := range groups {
		if len(grp.Entrants) < 2 {
			return nil, fmt.Errorf("group %s has %d entrants, need at least 2", grp.Label, len(grp.Entrants))
		}
		for i := 0; i < len(grp.Entrants); i++ {
			for j := i + 1; j < len(grp.Entrants); j++ {
				node := &models.BracketNode{
					ID:            id,
					CompetitionID: params.Competition.ID,
					Round:         1,
					Position:      position,
					SlotA:         intPtr(grp.Entrants[i].ID),
					SlotB:         intPtr(grp.Entrants[j].ID),
					Status:        models.NodeStatusScheduled,
				}
				if grp.Label != "" {
					node.GroupLabel = strPtr(grp.Label)
				}
				id++
				position++
				nodes = append(nodes, node)
			}
		}
	}
	return nodes, nil
}

// Group is one snake-draft partition of the entrant list.
type Group struct {
	Label    string
	Entrants []*models.Entrant
}

// SnakeDraftGroups partitions seed-ordered entrants into balanced groups:
// seeds 1..G fill groups A..G, seeds G+1..2G fill G..A, and so on. With
// groupCount <= 1 a single unlabeled group is returned. Group labels are
// written back onto the entrants.
func SnakeDraftGroups(entrants []*models.Entrant, groupCount int) []Group {
	if groupCount <= 1 {
		return []Group{{Entrants: entrants}}
	}
	groups := make([]Group, groupCount)
	for i := range groups {
		groups[i].Label = string(rune('A' + i))
	}
	forward := true
	idx := 0
	for _, e := range entrants {
		groups[idx].Entrants = append(groups[idx].Entrants, e)
		e.GroupLabel = strPtr(groups[idx].Label)
		if forward {
			if idx == groupCount-1 {
				forward = false
			} else {
				idx++
			}
		} else {
			if idx == 0 {
				forward = true
			} else {
				idx--
			}
		}
	}
	return groups
}
