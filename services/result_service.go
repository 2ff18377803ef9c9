package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bracketlab/bracket-engine/brackets"
	"github.com/bracketlab/bracket-engine/engine"
	"github.com/bracketlab/bracket-engine/models"
	"github.com/bracketlab/bracket-engine/repositories"
	"github.com/bracketlab/bracket-engine/standings"
	"github.com/bracketlab/bracket-engine/storage"
)

type GameResultInput struct {
	ScoreA          int    `json:"score_a"`
	ScoreB          int    `json:"score_b"`
	Overtime        bool   `json:"overtime"`
	DurationSeconds int    `json:"duration_seconds"`
	GameRef         string `json:"game_ref"`
}

type ForfeitInput struct {
	EntrantID int    `json:"entrant_id"`
	Reason    string `json:"reason"`
}

type ResultService interface {
	SubmitResult(ctx context.Context, competitionID, nodeID int, input GameResultInput, actorID int) (*engine.Outcome, error)
	Forfeit(ctx context.Context, competitionID, nodeID int, input ForfeitInput, actorID int) (*engine.Outcome, error)
	Standings(ctx context.Context, competitionID int, group *string) ([]*models.Entrant, error)
	ListSchedulable(ctx context.Context, competitionID, limit int) ([]*models.BracketNode, error)
}

type resultService struct {
	competitions CompetitionService
	compRepo     repositories.CompetitionRepository
	entrantRepo  repositories.EntrantRepository
	nodeRepo     repositories.NodeRepository
	txRunner     repositories.TxRunner
	engine       *engine.Engine
	locks        *engine.CompetitionLocks
	hub          *brackets.Hub
	archiver     *storage.Archiver
	logger       *slog.Logger
}

func NewResultService(
	competitions CompetitionService,
	compRepo repositories.CompetitionRepository,
	entrantRepo repositories.EntrantRepository,
	nodeRepo repositories.NodeRepository,
	txRunner repositories.TxRunner,
	eng *engine.Engine,
	locks *engine.CompetitionLocks,
	hub *brackets.Hub,
	archiver *storage.Archiver,
	logger *slog.Logger,
) ResultService {
	if logger == nil {
		logger = slog.Default()
	}
	return &resultService{
		competitions: competitions,
		compRepo:     compRepo,
		entrantRepo:  entrantRepo,
		nodeRepo:     nodeRepo,
		txRunner:     txRunner,
		engine:       eng,
		locks:        locks,
		hub:          hub,
		archiver:     archiver,
		logger:       logger,
	}
}

// SubmitResult applies one finalized game result. The whole unit, loading
// the aggregate, running the engine and persisting everything it touched,
// runs under the competition lock so progression for one competition is
// strictly serial.
func (s *resultService) SubmitResult(ctx context.Context, competitionID, nodeID int, input GameResultInput, actorID int) (*engine.Outcome, error) {
	release := s.locks.Acquire(competitionID)
	defer release()

	comp, err := s.competitions.GetByID(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	res := engine.GameResult{
		ScoreA:   input.ScoreA,
		ScoreB:   input.ScoreB,
		Overtime: input.Overtime,
		Duration: time.Duration(input.DurationSeconds) * time.Second,
		GameRef:  input.GameRef,
	}
	outcome, err := s.engine.ProcessResult(ctx, comp, nodeID, res, actorID)
	if err != nil {
		s.persistHalt(ctx, comp, err)
		return nil, err
	}
	if outcome.Duplicate {
		return outcome, nil
	}
	if err := s.persistOutcome(ctx, comp, outcome); err != nil {
		return nil, err
	}
	s.publish(comp, outcome)
	return outcome, nil
}

// Forfeit records a walkover against the named entrant.
func (s *resultService) Forfeit(ctx context.Context, competitionID, nodeID int, input ForfeitInput, actorID int) (*engine.Outcome, error) {
	release := s.locks.Acquire(competitionID)
	defer release()

	comp, err := s.competitions.GetByID(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	outcome, err := s.engine.Forfeit(ctx, comp, nodeID, input.EntrantID, input.Reason, actorID)
	if err != nil {
		s.persistHalt(ctx, comp, err)
		return nil, err
	}
	if outcome.Duplicate {
		return outcome, nil
	}
	if err := s.persistOutcome(ctx, comp, outcome); err != nil {
		return nil, err
	}
	s.publish(comp, outcome)
	return outcome, nil
}

func (s *resultService) Standings(ctx context.Context, competitionID int, group *string) ([]*models.Entrant, error) {
	comp, err := s.competitions.GetByID(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	return standings.Rank(comp.Entrants, comp.Format, group), nil
}

func (s *resultService) ListSchedulable(ctx context.Context, competitionID, limit int) ([]*models.BracketNode, error) {
	if _, err := s.compRepo.GetByID(ctx, nil, competitionID); err != nil {
		return nil, mapRepoError(err)
	}
	nodes, err := s.nodeRepo.ListSchedulable(ctx, nil, competitionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedulable nodes for competition %d: %w", competitionID, err)
	}
	if nodes == nil {
		return []*models.BracketNode{}, nil
	}
	return nodes, nil
}

// persistOutcome writes every entity the engine touched in one transaction.
func (s *resultService) persistOutcome(ctx context.Context, comp *models.Competition, outcome *engine.Outcome) error {
	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if outcome.Node != nil {
			if err := s.nodeRepo.UpdateResult(ctx, exec, outcome.Node); err != nil {
				return err
			}
		}
		for _, n := range outcome.UpdatedNodes {
			if err := s.nodeRepo.UpdateSlots(ctx, exec, n); err != nil {
				return err
			}
		}
		if len(outcome.CreatedNodes) > 0 {
			if err := s.nodeRepo.CreateBatch(ctx, exec, outcome.CreatedNodes); err != nil {
				return err
			}
		}
		for _, e := range outcome.UpdatedEntrants {
			if err := s.entrantRepo.UpdateProgress(ctx, exec, e); err != nil {
				return err
			}
		}
		if outcome.Completed {
			if err := s.compRepo.UpdateStatus(ctx, exec, comp.ID, models.StatusCompleted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist result for competition %d node %d: %w", comp.ID, outcome.Node.ID, err)
	}
	return nil
}

// persistHalt records the halted flag when the engine detects a structural
// integrity violation, so the rejection survives restarts.
func (s *resultService) persistHalt(ctx context.Context, comp *models.Competition, cause error) {
	if !errors.Is(cause, engine.ErrStructuralIntegrity) {
		return
	}
	if err := s.compRepo.SetHalted(ctx, nil, comp.ID, true); err != nil {
		s.logger.Error("failed to persist halted flag",
			"competition_id", comp.ID, "error", err)
	}
	if s.hub != nil {
		s.hub.BroadcastToCompetition(comp.ID, brackets.EventCompetitionHalted, map[string]interface{}{
			"competition_id": comp.ID,
			"reason":         cause.Error(),
		})
	}
}

func (s *resultService) publish(comp *models.Competition, outcome *engine.Outcome) {
	if s.hub != nil {
		s.hub.BroadcastToCompetition(comp.ID, brackets.EventNodeCompleted, outcome.Node)
		if len(outcome.CreatedNodes) > 0 {
			s.hub.BroadcastToCompetition(comp.ID, brackets.EventPhaseGenerated, outcome.CreatedNodes)
		}
		if outcome.Completed {
			s.hub.BroadcastToCompetition(comp.ID, brackets.EventCompetitionCompleted, standings.Rank(comp.Entrants, comp.Format, nil))
		}
	}
	if outcome.Completed && s.archiver != nil {
		// Archive export is best-effort and must not hold the competition lock.
		compCopy := comp
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.archiver.ExportCompetition(ctx, compCopy); err != nil {
				s.logger.Error("failed to export competition archive",
					"competition_id", compCopy.ID, "error", err)
			}
		}()
	}
}
