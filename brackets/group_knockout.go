package brackets

import (
	"context"
	"fmt"

	"github.com/bracketlab/bracket-engine/models"
)

// GroupKnockoutGenerator generates the group (round robin) phase only. The
// progression engine builds the knockout phase once every group completes,
// seeded from each group's top finishers.
type GroupKnockoutGenerator struct {
	groups *RoundRobinGenerator
}

func NewGroupKnockoutGenerator() Generator {
	return &GroupKnockoutGenerator{groups: &RoundRobinGenerator{}}
}

func (g *GroupKnockoutGenerator) Name() string { return "GroupKnockout" }

func (g *GroupKnockoutGenerator) Generate(ctx context.Context, params GenerateParams) ([]*models.BracketNode, error) {
	if params.Competition.GroupCount < 1 {
		return nil, fmt.Errorf("group stage requires at least 1 group, got %d", params.Competition.GroupCount)
	}
	if params.Competition.KnockoutQualifiers < 1 {
		return nil, fmt.Errorf("group stage requires at least 1 qualifier per group, got %d", params.Competition.KnockoutQualifiers)
	}
	return g.groups.Generate(ctx, params)
}

// BuildKnockoutPhase constructs a knockout bracket over an already-ordered
// qualifier list, with node ids continuing from startID and rounds offset
// past the group phase. Used by the progression engine mid-competition.
func BuildKnockoutPhase(competitionID int, seeded []*models.Entrant, startID, roundOffset int) []*models.BracketNode {
	return buildKnockout(competitionID, seeded, startID, roundOffset)
}
