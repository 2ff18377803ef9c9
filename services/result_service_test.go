package services

import (
	"context"
	"errors"
	"testing"

	"github.com/bracketlab/bracket-engine/engine"
	"github.com/bracketlab/bracket-engine/models"
	"golang.org/x/sync/errgroup"
)

// schedulable returns the competition's schedulable nodes via the service.
func (env *testEnv) schedulable(t *testing.T, competitionID int) []*models.BracketNode {
	t.Helper()
	nodes, err := env.results.ListSchedulable(context.Background(), competitionID, 50)
	if err != nil {
		t.Fatalf("ListSchedulable: %v", err)
	}
	return nodes
}

// TestSubmitResultFlow drives a 4-entrant single elimination through the
// result service and checks that the engine outcome is fully persisted.
func TestSubmitResultFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, CreateCompetitionInput{Format: models.FormatSingleElimination}, 4)
	env.startCompetition(t, comp.ID)

	var final *engine.Outcome
	for games := 0; ; games++ {
		nodes := env.schedulable(t, comp.ID)
		if len(nodes) == 0 {
			break
		}
		if games > 10 {
			t.Fatal("competition never completed")
		}
		out, err := env.results.SubmitResult(ctx, comp.ID, nodes[0].ID, GameResultInput{ScoreA: 2, ScoreB: 1}, 1)
		if err != nil {
			t.Fatalf("SubmitResult(node %d): %v", nodes[0].ID, err)
		}
		final = out
	}

	if final == nil || !final.Completed {
		t.Fatal("last result must complete the competition")
	}
	loaded, err := env.competitions.GetByID(ctx, comp.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded.Status != models.StatusCompleted {
		t.Fatalf("persisted status %s, expected completed", loaded.Status)
	}
	positions := make(map[int]bool)
	for _, e := range loaded.Entrants {
		if e.FinalPosition == nil {
			t.Fatalf("entrant %d has no persisted final position", e.ID)
		}
		if positions[*e.FinalPosition] {
			t.Fatalf("position %d persisted twice", *e.FinalPosition)
		}
		positions[*e.FinalPosition] = true
	}

	ranked, err := env.results.Standings(ctx, comp.ID, nil)
	if err != nil {
		t.Fatalf("Standings: %v", err)
	}
	if len(ranked) != 4 {
		t.Fatalf("expected 4 ranked entrants, got %d", len(ranked))
	}
	if *ranked[0].FinalPosition != 1 {
		t.Fatalf("standings leader holds position %d", *ranked[0].FinalPosition)
	}
}

// TestSubmitResultDuplicate checks that an identical re-submission through
// the service is acknowledged without persisting anything new.
func TestSubmitResultDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, CreateCompetitionInput{Format: models.FormatSingleElimination}, 4)
	env.startCompetition(t, comp.ID)

	node := env.schedulable(t, comp.ID)[0]
	if _, err := env.results.SubmitResult(ctx, comp.ID, node.ID, GameResultInput{ScoreA: 3, ScoreB: 1}, 1); err != nil {
		t.Fatalf("SubmitResult: %v", err)
	}
	out, err := env.results.SubmitResult(ctx, comp.ID, node.ID, GameResultInput{ScoreA: 3, ScoreB: 1}, 1)
	if err != nil {
		t.Fatalf("duplicate submission errored: %v", err)
	}
	if !out.Duplicate {
		t.Fatal("expected Duplicate outcome")
	}

	_, err = env.results.SubmitResult(ctx, comp.ID, node.ID, GameResultInput{ScoreA: 1, ScoreB: 3}, 1)
	if !errors.Is(err, engine.ErrNodeNotSchedulable) {
		t.Fatalf("expected ErrNodeNotSchedulable for a conflicting score, got %v", err)
	}
}

// TestForfeitFlow checks the walkover path through the service, including
// persistence of the forfeited node.
func TestForfeitFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, CreateCompetitionInput{Format: models.FormatSingleElimination}, 4)
	env.startCompetition(t, comp.ID)

	node := env.schedulable(t, comp.ID)[0]
	out, err := env.results.Forfeit(ctx, comp.ID, node.ID, ForfeitInput{EntrantID: *node.SlotA, Reason: "no-show"}, 1)
	if err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	if out.Node.Status != models.NodeStatusForfeited {
		t.Fatalf("outcome node status %s, expected forfeited", out.Node.Status)
	}

	loaded, err := env.competitions.GetByID(ctx, comp.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	persisted := loaded.NodeByID(node.ID)
	if persisted.Status != models.NodeStatusForfeited {
		t.Fatalf("persisted node status %s, expected forfeited", persisted.Status)
	}
	if persisted.ForfeitReason == nil || *persisted.ForfeitReason != "no-show" {
		t.Fatal("forfeit reason not persisted")
	}

	_, err = env.results.Forfeit(ctx, comp.ID, node.ID, ForfeitInput{EntrantID: 9999, Reason: "x"}, 1)
	if !errors.Is(err, engine.ErrEntrantNotInNode) {
		t.Fatalf("expected ErrEntrantNotInNode, got %v", err)
	}
}

// TestConcurrentSiblingResults submits both opening-round results of a
// 4-entrant bracket concurrently and checks that the final receives both
// winners without a structural halt. The competition lock serializes the
// load-process-persist units.
func TestConcurrentSiblingResults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, CreateCompetitionInput{Format: models.FormatSingleElimination}, 4)
	env.startCompetition(t, comp.ID)

	nodes := env.schedulable(t, comp.ID)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 opening nodes, got %d", len(nodes))
	}

	var g errgroup.Group
	for _, node := range nodes {
		id := node.ID
		g.Go(func() error {
			_, err := env.results.SubmitResult(ctx, comp.ID, id, GameResultInput{ScoreA: 2, ScoreB: 0}, 1)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent submission failed: %v", err)
	}

	loaded, err := env.competitions.GetByID(ctx, comp.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded.Halted {
		t.Fatal("competition halted under concurrent sibling results")
	}
	var final *models.BracketNode
	for _, n := range loaded.Nodes {
		if n.Round == 2 {
			final = n
		}
	}
	if final == nil || final.SlotA == nil || final.SlotB == nil {
		t.Fatal("final did not receive both winners")
	}
	if final.Status != models.NodeStatusScheduled {
		t.Fatalf("final status %s, expected scheduled", final.Status)
	}
}

// TestListSchedulableUnknownCompetition checks sentinel mapping.
func TestListSchedulableUnknownCompetition(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.results.ListSchedulable(context.Background(), 404, 10)
	if !errors.Is(err, ErrCompetitionNotFound) {
		t.Fatalf("expected ErrCompetitionNotFound, got %v", err)
	}
}

// TestStandingsGroupFilter checks group-scoped standings through the
// service.
func TestStandingsGroupFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, CreateCompetitionInput{
		Format:     models.FormatRoundRobin,
		GroupCount: 2,
	}, 4)
	env.startCompetition(t, comp.ID)

	group := "A"
	ranked, err := env.results.Standings(ctx, comp.ID, &group)
	if err != nil {
		t.Fatalf("Standings: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 entrants in group A, got %d", len(ranked))
	}
	for _, e := range ranked {
		if e.GroupLabel == nil || *e.GroupLabel != "A" {
			t.Fatalf("entrant %d not in group A", e.ID)
		}
	}
}
