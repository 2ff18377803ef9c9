package engine

import (
	"context"
	"testing"

	"github.com/bracketlab/bracket-engine/models"
)

// TestRoundRobinDrawAllowed checks that draws are legal outside knockout
// play and credit both sides with the draw points.
func TestRoundRobinDrawAllowed(t *testing.T) {
	eng := testEngine()
	comp := newCompetition(t, models.FormatRoundRobin, 4, nil)
	node := schedulableNode(comp)

	out, err := eng.ProcessResult(context.Background(), comp, node.ID, GameResult{ScoreA: 2, ScoreB: 2}, 1)
	if err != nil {
		t.Fatalf("draw rejected: %v", err)
	}
	if node.WinnerID != nil || node.LoserID != nil {
		t.Fatal("draw must not produce a winner or loser")
	}
	for _, id := range []int{*node.SlotA, *node.SlotB} {
		e := comp.EntrantByID(id)
		if e.Draws != 1 {
			t.Fatalf("entrant %d has %d draws, expected 1", id, e.Draws)
		}
		if e.CompetitionPoints != comp.Points.Draw {
			t.Fatalf("entrant %d has %d points, expected %d", id, e.CompetitionPoints, comp.Points.Draw)
		}
	}
	if len(out.UpdatedEntrants) != 2 {
		t.Fatalf("expected 2 updated entrants, got %d", len(out.UpdatedEntrants))
	}
}

// TestRoundRobinCompletion checks that the competition completes exactly
// when the last pairing is decided, never earlier.
func TestRoundRobinCompletion(t *testing.T) {
	eng := testEngine()
	comp := newCompetition(t, models.FormatRoundRobin, 4, nil)

	for i := 0; i < 5; i++ {
		submitLowIDWin(t, eng, comp, schedulableNode(comp))
		if comp.Status == models.StatusCompleted {
			t.Fatalf("completed after %d of 6 games", i+1)
		}
	}
	out := submitLowIDWin(t, eng, comp, schedulableNode(comp))
	if !out.Completed || comp.Status != models.StatusCompleted {
		t.Fatal("competition must complete with the final game")
	}
	// Entrant 1 beat everyone and tops the table.
	if pos := comp.EntrantByID(1).FinalPosition; pos == nil || *pos != 1 {
		t.Fatalf("entrant 1 final position %v, expected 1", pos)
	}
}

// TestSwissPlaythrough drives a 16-entrant Swiss competition through all
// four rounds, checking per-round pairing counts, the no-rematch guarantee,
// and completion with a full record for every entrant.
func TestSwissPlaythrough(t *testing.T) {
	eng := testEngine()
	comp := newCompetition(t, models.FormatSwissSystem, 16, nil)

	if len(comp.Nodes) != 8 {
		t.Fatalf("round 1 should hold 8 nodes, got %d", len(comp.Nodes))
	}

	played := playOut(t, eng, comp)
	if played != 32 {
		t.Fatalf("expected 32 games over 4 rounds, played %d", played)
	}
	if comp.Status != models.StatusCompleted {
		t.Fatalf("expected completed competition, got %s", comp.Status)
	}
	if len(comp.Nodes) != 32 {
		t.Fatalf("expected 32 nodes total, got %d", len(comp.Nodes))
	}

	pairings := make(map[[2]int]int)
	perRound := make(map[int]int)
	for _, n := range comp.Nodes {
		if n.SwissRound == nil {
			t.Fatalf("node %d lacks a swiss round", n.ID)
		}
		perRound[*n.SwissRound]++
		a, b := *n.SlotA, *n.SlotB
		if a > b {
			a, b = b, a
		}
		pairings[[2]int{a, b}]++
	}
	for round := 1; round <= 4; round++ {
		if perRound[round] != 8 {
			t.Fatalf("round %d holds %d nodes, expected 8", round, perRound[round])
		}
	}
	for pair, count := range pairings {
		if count > 1 {
			t.Fatalf("pairing %v occurred %d times", pair, count)
		}
	}

	for _, e := range comp.Entrants {
		if games := e.Wins + e.Losses + e.Draws; games != 4 {
			t.Fatalf("entrant %d played %d games, expected 4", e.ID, games)
		}
		if e.FinalPosition == nil {
			t.Fatalf("entrant %d has no final position", e.ID)
		}
	}
	// Entrant 1 wins every game it plays.
	if pos := comp.EntrantByID(1).FinalPosition; *pos != 1 {
		t.Fatalf("entrant 1 final position %d, expected 1", *pos)
	}
}

// TestSwissOddFieldByes drives a 5-entrant Swiss competition and checks that
// byes rotate and count as free wins.
func TestSwissOddFieldByes(t *testing.T) {
	eng := testEngine()
	comp := newCompetition(t, models.FormatSwissSystem, 5, nil)

	playOut(t, eng, comp)
	if comp.Status != models.StatusCompleted {
		t.Fatalf("expected completed competition, got %s", comp.Status)
	}

	byeHolders := make(map[int]int)
	for _, n := range comp.Nodes {
		if n.SlotB == nil {
			byeHolders[*n.SlotA]++
		}
	}
	if len(byeHolders) != 3 {
		t.Fatalf("3 rounds should yield 3 distinct bye holders, got %v", byeHolders)
	}
	for id, count := range byeHolders {
		if count != 1 {
			t.Fatalf("entrant %d received %d byes", id, count)
		}
	}
	// A bye is a free win: total games per entrant still equals the rounds.
	for _, e := range comp.Entrants {
		if games := e.Wins + e.Losses + e.Draws; games != 3 {
			t.Fatalf("entrant %d credited %d games, expected 3", e.ID, games)
		}
	}
}

// TestGrandFinalReset checks the double-elimination bracket reset: a
// consolation-side grand-final win forces a second final with the same
// entrants instead of completing the competition.
func TestGrandFinalReset(t *testing.T) {
	eng := testEngine()
	comp := newCompetition(t, models.FormatDoubleElimination, 4, nil)

	// Drive everything up to the grand final with the lower id winning.
	var gf *models.BracketNode
	for {
		node := schedulableNode(comp)
		if node == nil {
			t.Fatal("never reached the grand final")
		}
		if node.Branch == models.BranchGrandFinal {
			gf = node
			break
		}
		submitLowIDWin(t, eng, comp, node)
	}

	// The consolation champion in slot B takes the first final.
	out, err := eng.ProcessResult(context.Background(), comp, gf.ID, GameResult{ScoreA: 1, ScoreB: 3}, 1)
	if err != nil {
		t.Fatalf("grand final result: %v", err)
	}
	if out.Completed {
		t.Fatal("competition must not complete on a consolation-side grand final win")
	}
	if len(out.CreatedNodes) != 1 {
		t.Fatalf("expected 1 reset node, got %d", len(out.CreatedNodes))
	}
	reset := out.CreatedNodes[0]
	if reset.Branch != models.BranchGrandFinal || reset.Round != 2 {
		t.Fatalf("reset node branch %q round %d, expected grand final round 2", reset.Branch, reset.Round)
	}
	if *reset.SlotA != *gf.SlotA || *reset.SlotB != *gf.SlotB {
		t.Fatal("reset final must rematch the same entrants")
	}
	if reset.Status != models.NodeStatusScheduled {
		t.Fatalf("reset node should be scheduled, got %s", reset.Status)
	}

	// The reset settles it.
	out, err = eng.ProcessResult(context.Background(), comp, reset.ID, GameResult{ScoreA: 3, ScoreB: 1}, 1)
	if err != nil {
		t.Fatalf("reset final result: %v", err)
	}
	if !out.Completed || comp.Status != models.StatusCompleted {
		t.Fatal("competition must complete after the reset final")
	}
	if pos := comp.EntrantByID(*reset.SlotA).FinalPosition; pos == nil || *pos != 1 {
		t.Fatalf("reset winner position %v, expected 1", pos)
	}
}

// TestGrandFinalNoReset checks that the undefeated main champion winning the
// first grand final ends the competition outright.
func TestGrandFinalNoReset(t *testing.T) {
	eng := testEngine()
	comp := newCompetition(t, models.FormatDoubleElimination, 4, nil)

	played := playOut(t, eng, comp)
	// 2 opening games, main final, 2 consolation games, grand final.
	if played != 6 {
		t.Fatalf("expected 6 games, played %d", played)
	}
	if comp.Status != models.StatusCompleted {
		t.Fatalf("expected completed competition, got %s", comp.Status)
	}
	for _, n := range comp.Nodes {
		if n.Branch == models.BranchGrandFinal && n.Round == 2 {
			t.Fatal("no reset final should exist when the main champion wins")
		}
	}
	if pos := comp.EntrantByID(1).FinalPosition; pos == nil || *pos != 1 {
		t.Fatalf("entrant 1 final position %v, expected 1", pos)
	}
	// The grand-final loser outranks every consolation elimination.
	if pos := comp.EntrantByID(2).FinalPosition; pos == nil || *pos != 2 {
		t.Fatalf("entrant 2 final position %v, expected 2", pos)
	}
}

// TestDoubleEliminationLossAccounting checks that a main-bracket loss does
// not eliminate and that a consolation loss does.
func TestDoubleEliminationLossAccounting(t *testing.T) {
	eng := testEngine()
	comp := newCompetition(t, models.FormatDoubleElimination, 4, nil)

	var mainNode *models.BracketNode
	for _, n := range comp.Nodes {
		if n.Branch == models.BranchMain && n.Schedulable() {
			mainNode = n
			break
		}
	}
	submitLowIDWin(t, eng, comp, mainNode)
	loser := comp.EntrantByID(*mainNode.LoserID)
	if loser.EliminationRound != nil {
		t.Fatal("a main-bracket loss must not eliminate")
	}
	drop := comp.NodeByID(*mainNode.LoserNextNodeID)
	if !drop.HasEntrant(loser.ID) {
		t.Fatal("loser did not drop into the consolation bracket")
	}

	playOut(t, eng, comp)
	for _, e := range comp.Entrants {
		if e.FinalPosition == nil {
			t.Fatalf("entrant %d has no final position", e.ID)
		}
		if *e.FinalPosition > 2 && e.EliminationRound == nil {
			t.Fatalf("entrant %d finished %d without an elimination round", e.ID, *e.FinalPosition)
		}
	}
}

// TestGroupKnockoutFlow drives an 8-entrant, 2-group competition through the
// group stage, checks the generated knockout phase and group-stage
// eliminations, then completes the knockout.
func TestGroupKnockoutFlow(t *testing.T) {
	eng := testEngine()
	comp := newCompetition(t, models.FormatGroupThenKnockout, 8, func(c *models.Competition) {
		c.GroupCount = 2
		c.KnockoutQualifiers = 2
	})

	if len(comp.Nodes) != 12 {
		t.Fatalf("group stage should hold 12 nodes, got %d", len(comp.Nodes))
	}

	// Finish the group stage.
	var out *Outcome
	for i := 0; i < 12; i++ {
		out = submitLowIDWin(t, eng, comp, schedulableNode(comp))
	}
	if len(out.CreatedNodes) != 3 {
		t.Fatalf("expected 3 knockout nodes, got %d", len(out.CreatedNodes))
	}
	for _, n := range out.CreatedNodes {
		if n.Branch != models.BranchMain {
			t.Fatalf("knockout node %d has branch %q", n.ID, n.Branch)
		}
		if n.Round < 2 {
			t.Fatalf("knockout node %d has round %d, must follow the group phase", n.ID, n.Round)
		}
	}

	// Snake seeding across groups A (1,4,5,8) and B (2,3,6,7): winners 1
	// and 2 are kept apart until the final.
	semis := make(map[[2]int]bool)
	for _, n := range out.CreatedNodes {
		if n.SlotA != nil && n.SlotB != nil {
			a, b := *n.SlotA, *n.SlotB
			if a > b {
				a, b = b, a
			}
			semis[[2]int{a, b}] = true
		}
	}
	if !semis[[2]int{1, 4}] || !semis[[2]int{2, 3}] {
		t.Fatalf("expected semifinals (1,4) and (2,3), got %v", semis)
	}

	// Non-qualifiers exit at the group stage.
	for _, id := range []int{5, 6, 7, 8} {
		e := comp.EntrantByID(id)
		if e.EliminationRound == nil || *e.EliminationRound != 0 {
			t.Fatalf("entrant %d elimination round %v, expected 0", id, e.EliminationRound)
		}
	}

	playOut(t, eng, comp)
	if comp.Status != models.StatusCompleted {
		t.Fatalf("expected completed competition, got %s", comp.Status)
	}
	if pos := comp.EntrantByID(1).FinalPosition; pos == nil || *pos != 1 {
		t.Fatalf("entrant 1 final position %v, expected 1", pos)
	}
	// Qualifiers who lost in the knockout outrank every group-stage exit.
	for _, id := range []int{3, 4} {
		if pos := comp.EntrantByID(id).FinalPosition; pos == nil || *pos > 4 {
			t.Fatalf("entrant %d final position %v, expected top 4", id, pos)
		}
	}
}
