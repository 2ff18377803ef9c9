package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/bracketlab/bracket-engine/brackets"
	"github.com/bracketlab/bracket-engine/models"
	"github.com/bracketlab/bracket-engine/standings"
)

// formatStrategy dispatches the format-specific part of result processing.
// The strategy is a fixed mapping per format, not re-matched per operation.
type formatStrategy interface {
	afterComplete(e *Engine, comp *models.Competition, node *models.BracketNode, out *Outcome) error
}

var strategies = map[models.CompetitionFormat]formatStrategy{
	models.FormatSingleElimination: knockoutStrategy{},
	models.FormatDoubleElimination: doubleElimStrategy{},
	models.FormatRoundRobin:        roundRobinStrategy{},
	models.FormatSwissSystem:       swissStrategy{},
	models.FormatGroupThenKnockout: groupKnockoutStrategy{},
}

func (e *Engine) strategyFor(format models.CompetitionFormat) formatStrategy {
	return strategies[format]
}

// knockoutStrategy advances winners toward the championship node; the loser
// of every game is eliminated at the node's round.
type knockoutStrategy struct{}

func (knockoutStrategy) afterComplete(e *Engine, comp *models.Competition, node *models.BracketNode, out *Outcome) error {
	e.markEliminated(comp.EntrantByID(*node.LoserID), node.Round, out)
	if node.NextNodeID == nil {
		// Championship node: the format is complete.
		e.setFinalPosition(node.WinnerID, comp, 1, out)
		e.setFinalPosition(node.LoserID, comp, 2, out)
		e.finish(comp, out)
		return nil
	}
	return e.claimSlot(comp, *node.NextNodeID, *node.NextSlot, *node.WinnerID, out)
}

// doubleElimStrategy drops main-bracket losers into the consolation bracket;
// only a consolation or grand-final loss eliminates. A consolation-side win
// of the first grand final forces the reset final, created on demand.
type doubleElimStrategy struct{}

func (doubleElimStrategy) afterComplete(e *Engine, comp *models.Competition, node *models.BracketNode, out *Outcome) error {
	switch node.Branch {
	case models.BranchGrandFinal:
		return grandFinalComplete(e, comp, node, out)
	case models.BranchConsolation:
		e.markEliminated(comp.EntrantByID(*node.LoserID), node.Round, out)
	}
	if node.LoserNextNodeID != nil {
		if err := e.claimSlot(comp, *node.LoserNextNodeID, *node.LoserNextSlot, *node.LoserID, out); err != nil {
			return err
		}
	}
	if node.NextNodeID == nil {
		return e.halt(comp, out, fmt.Errorf("%w: double-elimination node %d has no winner target", ErrStructuralIntegrity, node.ID))
	}
	return e.claimSlot(comp, *node.NextNodeID, *node.NextSlot, *node.WinnerID, out)
}

func grandFinalComplete(e *Engine, comp *models.Competition, node *models.BracketNode, out *Outcome) error {
	resetRequired := node.Round == 1 && node.WinnerID != nil && node.SlotB != nil && *node.WinnerID == *node.SlotB
	if resetRequired {
		// The previously-undefeated champion now has one loss and neither
		// side has two: a second final settles it.
		reset := &models.BracketNode{
			ID:            comp.NextNodeID(),
			CompetitionID: comp.ID,
			Round:         2,
			Position:      1,
			Branch:        models.BranchGrandFinal,
			SlotA:         node.SlotA,
			SlotB:         node.SlotB,
			Status:        models.NodeStatusScheduled,
		}
		comp.Nodes = append(comp.Nodes, reset)
		out.CreatedNodes = append(out.CreatedNodes, reset)
		e.logger.Info("grand final reset created",
			slog.Int("competition_id", comp.ID),
			slog.Int("node_id", reset.ID),
		)
		return nil
	}
	lbRound := consolationDepth(comp) + 1
	e.markEliminated(comp.EntrantByID(*node.LoserID), lbRound, out)
	e.setFinalPosition(node.WinnerID, comp, 1, out)
	e.setFinalPosition(node.LoserID, comp, 2, out)
	e.finish(comp, out)
	return nil
}

// consolationDepth is the deepest consolation round in the arena, used so
// grand-final losses outrank every consolation elimination.
func consolationDepth(comp *models.Competition) int {
	depth := 0
	for _, n := range comp.Nodes {
		if n.Branch == models.BranchConsolation && n.Round > depth {
			depth = n.Round
		}
	}
	return depth
}

// roundRobinStrategy has no elimination; the competition completes when
// every node has a result.
type roundRobinStrategy struct{}

func (roundRobinStrategy) afterComplete(e *Engine, comp *models.Competition, node *models.BracketNode, out *Outcome) error {
	for _, n := range comp.Nodes {
		if !n.Terminal() {
			return nil
		}
	}
	e.finish(comp, out)
	return nil
}

// swissStrategy pairs the next round when the current one completes, and
// finalizes after the last round.
type swissStrategy struct{}

func (swissStrategy) afterComplete(e *Engine, comp *models.Competition, node *models.BracketNode, out *Outcome) error {
	if node.SwissRound == nil {
		return e.halt(comp, out, fmt.Errorf("%w: node %d lacks a swiss round", ErrStructuralIntegrity, node.ID))
	}
	current := *node.SwissRound
	for _, n := range comp.Nodes {
		if n.SwissRound != nil && *n.SwissRound == current && !n.Terminal() {
			return nil
		}
	}

	active := comp.ApprovedEntrants()
	total := brackets.SwissRoundCount(len(active))
	if current >= total {
		e.finish(comp, out)
		return nil
	}

	ranked := standings.Rank(active, comp.Format, nil)
	played := brackets.PlayedPairs(comp.Nodes)
	created := brackets.PairSwissRound(comp.ID, ranked, played, current+1, comp.NextNodeID())
	comp.Nodes = append(comp.Nodes, created...)
	out.CreatedNodes = append(out.CreatedNodes, created...)
	for _, touched := range e.ApplyGenerationByes(comp, created) {
		out.touchEntrant(touched)
	}
	e.logger.Info("swiss round generated",
		slog.Int("competition_id", comp.ID),
		slog.Int("round", current+1),
		slog.Int("nodes", len(created)),
	)
	return nil
}

// groupKnockoutStrategy runs the group stage as round robin; once every
// group completes it seeds the knockout phase from each group's top
// finishers, and knockout nodes then advance like single elimination.
type groupKnockoutStrategy struct{}

func (groupKnockoutStrategy) afterComplete(e *Engine, comp *models.Competition, node *models.BracketNode, out *Outcome) error {
	if node.Branch != models.BranchNone {
		return knockoutStrategy{}.afterComplete(e, comp, node, out)
	}
	for _, n := range comp.Nodes {
		if n.Branch == models.BranchNone && !n.Terminal() {
			return nil
		}
		if n.Branch != models.BranchNone {
			// Knockout already generated; nothing to do on a late group
			// result replay.
			return nil
		}
	}
	return generateKnockoutPhase(e, comp, out)
}

func generateKnockoutPhase(e *Engine, comp *models.Competition, out *Outcome) error {
	qualifiers := comp.KnockoutQualifiers
	if qualifiers < 1 {
		qualifiers = 1
	}

	labels := groupLabels(comp)
	seeded := make([]*models.Entrant, 0, len(labels)*qualifiers)
	for rank := 0; rank < qualifiers; rank++ {
		ordered := labels
		if rank%2 == 1 {
			ordered = reversed(labels)
		}
		for _, label := range ordered {
			group := label
			ranked := standings.Rank(comp.Entrants, comp.Format, &group)
			if rank < len(ranked) {
				seeded = append(seeded, ranked[rank])
			}
		}
	}
	if len(seeded) < 2 {
		return e.halt(comp, out, fmt.Errorf("%w: group stage yielded %d qualifiers", ErrStructuralIntegrity, len(seeded)))
	}

	// Everyone who did not qualify is out at the group stage.
	qualified := make(map[int]bool, len(seeded))
	for _, q := range seeded {
		qualified[q.ID] = true
	}
	for _, entrant := range activeEntrants(comp) {
		if !qualified[entrant.ID] {
			e.markEliminated(entrant, 0, out)
		}
	}

	created := brackets.BuildKnockoutPhase(comp.ID, seeded, comp.NextNodeID(), 1)
	comp.Nodes = append(comp.Nodes, created...)
	out.CreatedNodes = append(out.CreatedNodes, created...)
	e.logger.Info("knockout phase generated",
		slog.Int("competition_id", comp.ID),
		slog.Int("qualifiers", len(seeded)),
		slog.Int("nodes", len(created)),
	)
	return nil
}

func activeEntrants(comp *models.Competition) []*models.Entrant {
	out := make([]*models.Entrant, 0, len(comp.Entrants))
	for _, e := range comp.Entrants {
		if e.Status == models.EntrantApproved || e.Status == models.EntrantWithdrawn {
			out = append(out, e)
		}
	}
	return out
}

func groupLabels(comp *models.Competition) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, e := range comp.Entrants {
		if e.GroupLabel != nil && !seen[*e.GroupLabel] {
			seen[*e.GroupLabel] = true
			labels = append(labels, *e.GroupLabel)
		}
	}
	sort.Strings(labels)
	return labels
}

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
