// Package engine is the progression engine: the single mutation entry point
// that consumes finalized game results, updates entrant aggregates, advances
// winners and losers along generator-created links, and detects competition
// completion.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bracketlab/bracket-engine/models"
	"github.com/bracketlab/bracket-engine/standings"
)

var (
	ErrCompetitionHalted        = errors.New("competition is halted pending manual intervention")
	ErrCompetitionNotInProgress = errors.New("competition is not in progress")
	ErrNodeNotFound             = errors.New("bracket node not found")
	ErrNodeNotSchedulable       = errors.New("bracket node is not schedulable")
	ErrDrawNotAllowed           = errors.New("knockout games cannot end in a draw")
	ErrEntrantNotInNode         = errors.New("entrant does not occupy the node")
	// ErrStructuralIntegrity indicates an advancement would overwrite an
	// already-occupied slot with a different entrant. This can only come
	// from a generator or concurrency-control bug; the competition is
	// halted rather than guessing which write was right.
	ErrStructuralIntegrity = errors.New("structural integrity violation")
)

type Engine struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// GameResult is the authoritative final score handed over by the
// scheduling/officiating subsystem; the engine never computes scores.
type GameResult struct {
	ScoreA   int
	ScoreB   int
	Overtime bool
	Duration time.Duration
	GameRef  string
}

// Outcome describes every entity a processed result touched, so the caller
// can persist the whole unit in one transaction.
type Outcome struct {
	Node            *models.BracketNode
	UpdatedNodes    []*models.BracketNode
	CreatedNodes    []*models.BracketNode
	UpdatedEntrants []*models.Entrant
	Completed       bool
	// Duplicate marks an identical re-submission: nothing changed and
	// nothing needs persisting.
	Duplicate bool
}

func (o *Outcome) touchNode(n *models.BracketNode) {
	for _, existing := range o.UpdatedNodes {
		if existing.ID == n.ID {
			return
		}
	}
	o.UpdatedNodes = append(o.UpdatedNodes, n)
}

func (o *Outcome) touchEntrant(e *models.Entrant) {
	for _, existing := range o.UpdatedEntrants {
		if existing.ID == e.ID {
			return
		}
	}
	o.UpdatedEntrants = append(o.UpdatedEntrants, e)
}

// ProcessResult applies one finalized result to the competition aggregate.
// The caller must hold the competition lock and persist the returned outcome
// atomically. Re-submitting an identical result is a no-op; a conflicting
// re-submission is rejected.
func (e *Engine) ProcessResult(ctx context.Context, comp *models.Competition, nodeID int, res GameResult, actorID int) (*Outcome, error) {
	node, err := e.resultTarget(comp, nodeID, res, models.NodeStatusCompleted)
	if err != nil || node == nil {
		if node == nil && err == nil {
			return &Outcome{Node: comp.NodeByID(nodeID), Duplicate: true}, nil
		}
		return nil, err
	}
	if res.ScoreA == res.ScoreB && e.knockoutNode(comp, node) {
		return nil, fmt.Errorf("%w: node %d", ErrDrawNotAllowed, nodeID)
	}
	return e.complete(comp, node, res, models.NodeStatusCompleted, nil, actorID)
}

// Forfeit processes a walkover: a synthetic scoreline favoring the
// non-forfeiting side flows through the regular advancement path, with the
// reason retained on the node.
func (e *Engine) Forfeit(ctx context.Context, comp *models.Competition, nodeID, forfeitingEntrantID int, reason string, actorID int) (*Outcome, error) {
	res := GameResult{}
	nodeCheck := comp.NodeByID(nodeID)
	if nodeCheck != nil {
		if !nodeCheck.HasEntrant(forfeitingEntrantID) {
			return nil, fmt.Errorf("%w: entrant %d, node %d", ErrEntrantNotInNode, forfeitingEntrantID, nodeID)
		}
		if nodeCheck.SlotA != nil && *nodeCheck.SlotA == forfeitingEntrantID {
			res = GameResult{ScoreA: 0, ScoreB: forfeitWinScore}
		} else {
			res = GameResult{ScoreA: forfeitWinScore, ScoreB: 0}
		}
	}

	node, err := e.resultTarget(comp, nodeID, res, models.NodeStatusForfeited)
	if err != nil || node == nil {
		if node == nil && err == nil {
			return &Outcome{Node: nodeCheck, Duplicate: true}, nil
		}
		return nil, err
	}
	return e.complete(comp, node, res, models.NodeStatusForfeited, &reason, actorID)
}

// forfeitWinScore is the fixed synthetic scoreline for walkovers.
const forfeitWinScore = 1

// resultTarget validates that the node can accept this result. A nil node
// with nil error signals an identical duplicate.
func (e *Engine) resultTarget(comp *models.Competition, nodeID int, res GameResult, status models.NodeStatus) (*models.BracketNode, error) {
	if comp.Halted {
		return nil, fmt.Errorf("%w: competition %d", ErrCompetitionHalted, comp.ID)
	}
	if comp.Status != models.StatusInProgress {
		return nil, fmt.Errorf("%w: competition %d is %s", ErrCompetitionNotInProgress, comp.ID, comp.Status)
	}
	node := comp.NodeByID(nodeID)
	if node == nil {
		return nil, fmt.Errorf("%w: node %d in competition %d", ErrNodeNotFound, nodeID, comp.ID)
	}
	if node.Terminal() {
		if sameResult(node, res, status) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: node %d already holds a different result", ErrNodeNotSchedulable, nodeID)
	}
	if node.SlotA == nil || node.SlotB == nil {
		return nil, fmt.Errorf("%w: node %d is missing an entrant", ErrNodeNotSchedulable, nodeID)
	}
	return node, nil
}

// sameResult reports whether the terminal node already holds exactly this
// result. Identity covers the full submission, not just the scoreline: a
// matching score with a different overtime flag, duration, game reference or
// terminal kind (played versus forfeited) is a conflicting re-submission.
func sameResult(node *models.BracketNode, res GameResult, status models.NodeStatus) bool {
	if node.Status != status {
		return false
	}
	if node.ScoreA == nil || node.ScoreB == nil ||
		*node.ScoreA != res.ScoreA || *node.ScoreB != res.ScoreB {
		return false
	}
	if node.Overtime != res.Overtime {
		return false
	}
	secs := 0
	if node.DurationSeconds != nil {
		secs = *node.DurationSeconds
	}
	if secs != int(res.Duration/time.Second) {
		return false
	}
	ref := ""
	if node.GameRef != nil {
		ref = *node.GameRef
	}
	return ref == res.GameRef
}

func (e *Engine) complete(comp *models.Competition, node *models.BracketNode, res GameResult, status models.NodeStatus, forfeitReason *string, actorID int) (*Outcome, error) {
	node.ScoreA = &res.ScoreA
	node.ScoreB = &res.ScoreB
	node.Status = status
	node.Overtime = res.Overtime
	if res.Duration > 0 {
		secs := int(res.Duration / time.Second)
		node.DurationSeconds = &secs
	}
	if res.GameRef != "" {
		node.GameRef = &res.GameRef
	}
	if forfeitReason != nil {
		node.ForfeitReason = forfeitReason
	}

	switch {
	case res.ScoreA > res.ScoreB:
		node.WinnerID = node.SlotA
		node.LoserID = node.SlotB
	case res.ScoreB > res.ScoreA:
		node.WinnerID = node.SlotB
		node.LoserID = node.SlotA
	}

	out := &Outcome{Node: node}
	e.applyAggregates(comp, node, out)

	if err := e.strategyFor(comp.Format).afterComplete(e, comp, node, out); err != nil {
		return nil, err
	}

	e.logger.Info("result processed",
		slog.Int("competition_id", comp.ID),
		slog.Int("node_id", node.ID),
		slog.Int("actor_id", actorID),
		slog.String("status", string(status)),
		slog.Bool("completed_competition", out.Completed),
	)
	return out, nil
}

func (e *Engine) applyAggregates(comp *models.Competition, node *models.BracketNode, out *Outcome) {
	a := comp.EntrantByID(*node.SlotA)
	b := comp.EntrantByID(*node.SlotB)
	scoreA, scoreB := *node.ScoreA, *node.ScoreB

	a.PointsFor += scoreA
	a.PointsAgainst += scoreB
	b.PointsFor += scoreB
	b.PointsAgainst += scoreA
	a.PointDifferential = a.PointsFor - a.PointsAgainst
	b.PointDifferential = b.PointsFor - b.PointsAgainst

	switch {
	case scoreA > scoreB:
		a.Wins++
		b.Losses++
		a.CompetitionPoints += comp.Points.Win
		b.CompetitionPoints += comp.Points.Loss
	case scoreB > scoreA:
		b.Wins++
		a.Losses++
		b.CompetitionPoints += comp.Points.Win
		a.CompetitionPoints += comp.Points.Loss
	default:
		a.Draws++
		b.Draws++
		a.CompetitionPoints += comp.Points.Draw
		b.CompetitionPoints += comp.Points.Draw
	}
	out.touchEntrant(a)
	out.touchEntrant(b)
}

// claimSlot writes an entrant into one slot of a downstream node. Claiming a
// slot that already holds the same entrant is a no-op; a differing occupant
// is a structural-integrity violation and halts the competition.
func (e *Engine) claimSlot(comp *models.Competition, targetID, slot, entrantID int, out *Outcome) error {
	target := comp.NodeByID(targetID)
	if target == nil {
		return e.halt(comp, out, fmt.Errorf("%w: advancement target node %d does not exist", ErrStructuralIntegrity, targetID))
	}
	ptr := &target.SlotA
	if slot == 2 {
		ptr = &target.SlotB
	}
	if *ptr != nil {
		if **ptr == entrantID {
			return nil
		}
		return e.halt(comp, out, fmt.Errorf("%w: node %d slot %d already holds entrant %d, refusing to write entrant %d",
			ErrStructuralIntegrity, targetID, slot, **ptr, entrantID))
	}
	id := entrantID
	*ptr = &id
	if target.SlotA != nil && target.SlotB != nil && target.Status == models.NodeStatusPending {
		target.Status = models.NodeStatusScheduled
	}
	out.touchNode(target)
	return nil
}

// halt flags the competition as requiring manual intervention. The flag is
// persisted by the caller even though the triggering result is rolled back.
func (e *Engine) halt(comp *models.Competition, out *Outcome, err error) error {
	comp.Halted = true
	e.logger.Error("halting competition after structural integrity violation",
		slog.Int("competition_id", comp.ID),
		slog.Any("error", err),
	)
	return err
}

func (e *Engine) markEliminated(entrant *models.Entrant, round int, out *Outcome) {
	if entrant == nil || entrant.EliminationRound != nil {
		return
	}
	r := round
	entrant.EliminationRound = &r
	out.touchEntrant(entrant)
}

// finish transitions the competition to completed and assigns every
// remaining final position through the standings calculator.
func (e *Engine) finish(comp *models.Competition, out *Outcome) {
	comp.Status = models.StatusCompleted
	out.Completed = true
	for _, assigned := range standings.Finalize(comp) {
		out.touchEntrant(assigned)
	}
}

func (e *Engine) setFinalPosition(entrantID *int, comp *models.Competition, pos int, out *Outcome) {
	if entrantID == nil {
		return
	}
	entrant := comp.EntrantByID(*entrantID)
	if entrant == nil || entrant.FinalPosition != nil {
		return
	}
	p := pos
	entrant.FinalPosition = &p
	out.touchEntrant(entrant)
}

// knockoutNode reports whether the node decides an elimination, meaning a
// draw is impossible.
func (e *Engine) knockoutNode(comp *models.Competition, node *models.BracketNode) bool {
	if comp.Format.IsKnockout() {
		return true
	}
	return comp.Format == models.FormatGroupThenKnockout && node.Branch != models.BranchNone
}

// ApplyGenerationByes credits Swiss byes created at generation time: a bye
// is a free win worth the usual win points. Knockout byes advance silently
// without touching aggregates since no game was played. Returns the
// entrants whose aggregates changed.
func (e *Engine) ApplyGenerationByes(comp *models.Competition, nodes []*models.BracketNode) []*models.Entrant {
	var touched []*models.Entrant
	for _, n := range nodes {
		if n.SwissRound == nil || !n.Bye() || n.WinnerID == nil {
			continue
		}
		entrant := comp.EntrantByID(*n.WinnerID)
		if entrant == nil {
			continue
		}
		entrant.Wins++
		entrant.CompetitionPoints += comp.Points.Win
		touched = append(touched, entrant)
	}
	return touched
}
