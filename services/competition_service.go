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
	"golang.org/x/sync/errgroup"
)

type CreateCompetitionInput struct {
	Name               string                   `json:"name"`
	Format             models.CompetitionFormat `json:"format"`
	MinEntrants        int                      `json:"min_entrants"`
	MaxEntrants        int                      `json:"max_entrants"`
	GroupCount         int                      `json:"group_count"`
	KnockoutQualifiers int                      `json:"knockout_qualifiers"`
	Points             *models.PointsRule       `json:"points_rule"`
	GameDurationMin    int                      `json:"game_duration_minutes"`
	RegistrationEnd    time.Time                `json:"registration_end"`
}

type AddEntrantInput struct {
	TeamID int  `json:"team_id"`
	Seed   *int `json:"seed"`
}

type CompetitionService interface {
	Create(ctx context.Context, input CreateCompetitionInput, actorID int) (*models.Competition, error)
	GetByID(ctx context.Context, id int) (*models.Competition, error)
	List(ctx context.Context, filter repositories.ListCompetitionsFilter) ([]*models.Competition, error)
	UpdateStatus(ctx context.Context, id int, status models.CompetitionStatus, actorID int) (*models.Competition, error)
	AddEntrant(ctx context.Context, competitionID int, input AddEntrantInput, actorID int) (*models.Entrant, error)
	UpdateEntrantStatus(ctx context.Context, competitionID, entrantID int, status models.EntrantStatus, actorID int) (*models.Entrant, error)
	SetEntrantSeed(ctx context.Context, competitionID, entrantID, seed, actorID int) (*models.Entrant, error)
	GenerateBracket(ctx context.Context, competitionID, actorID int) (*models.Competition, error)
	Start(ctx context.Context, competitionID, actorID int) (*models.Competition, error)
	CloseExpiredRegistrations(ctx context.Context) (int, error)
}

type competitionService struct {
	competitionRepo repositories.CompetitionRepository
	entrantRepo     repositories.EntrantRepository
	nodeRepo        repositories.NodeRepository
	txRunner        repositories.TxRunner
	engine          *engine.Engine
	hub             *brackets.Hub
	logger          *slog.Logger
}

func NewCompetitionService(
	competitionRepo repositories.CompetitionRepository,
	entrantRepo repositories.EntrantRepository,
	nodeRepo repositories.NodeRepository,
	txRunner repositories.TxRunner,
	eng *engine.Engine,
	hub *brackets.Hub,
	logger *slog.Logger,
) CompetitionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &competitionService{
		competitionRepo: competitionRepo,
		entrantRepo:     entrantRepo,
		nodeRepo:        nodeRepo,
		txRunner:        txRunner,
		engine:          eng,
		hub:             hub,
		logger:          logger,
	}
}

// validStatusTransitions is the competition lifecycle graph. Completion is
// driven by the progression engine, never by a direct status update.
var validStatusTransitions = map[models.CompetitionStatus][]models.CompetitionStatus{
	models.StatusDraft:              {models.StatusRegistrationOpen, models.StatusCanceled},
	models.StatusRegistrationOpen:   {models.StatusRegistrationClosed, models.StatusCanceled},
	models.StatusRegistrationClosed: {models.StatusInProgress, models.StatusRegistrationOpen, models.StatusCanceled},
	models.StatusInProgress:         {models.StatusCanceled},
	models.StatusCompleted:          {},
	models.StatusCanceled:           {},
}

func isValidStatusTransition(from, to models.CompetitionStatus) bool {
	for _, allowed := range validStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *competitionService) Create(ctx context.Context, input CreateCompetitionInput, actorID int) (*models.Competition, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidationFailed)
	}
	if !input.Format.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, input.Format)
	}
	if input.MinEntrants < 2 {
		input.MinEntrants = 2
	}
	if input.MaxEntrants > 0 && input.MaxEntrants < input.MinEntrants {
		return nil, fmt.Errorf("%w: max entrants below minimum", ErrValidationFailed)
	}
	if input.Format == models.FormatGroupThenKnockout {
		if input.GroupCount < 1 || input.KnockoutQualifiers < 1 {
			return nil, ErrInvalidGroupConfig
		}
	}
	if !input.RegistrationEnd.IsZero() && input.RegistrationEnd.Before(time.Now()) {
		return nil, ErrInvalidRegistrationEnd
	}

	points := models.DefaultPointsRule()
	if input.Points != nil {
		points = *input.Points
	}

	comp := &models.Competition{
		Name:               input.Name,
		Format:             input.Format,
		Status:             models.StatusDraft,
		OrganizerID:        actorID,
		MinEntrants:        input.MinEntrants,
		MaxEntrants:        input.MaxEntrants,
		GroupCount:         input.GroupCount,
		KnockoutQualifiers: input.KnockoutQualifiers,
		Points:             points,
		GameDurationMin:    input.GameDurationMin,
		RegistrationEnd:    input.RegistrationEnd,
	}
	if err := s.competitionRepo.Create(ctx, nil, comp); err != nil {
		return nil, fmt.Errorf("failed to create competition: %w", err)
	}
	s.logger.Info("competition created",
		"competition_id", comp.ID, "format", comp.Format, "actor_id", actorID)
	return comp, nil
}

// GetByID loads the competition aggregate: the row itself plus its entrant
// list and node arena, fetched in parallel.
func (s *competitionService) GetByID(ctx context.Context, id int) (*models.Competition, error) {
	comp, err := s.competitionRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, mapRepoError(err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entrants, err := s.entrantRepo.ListByCompetition(gCtx, nil, id)
		if err != nil {
			return fmt.Errorf("failed to list entrants for competition %d: %w", id, err)
		}
		comp.Entrants = entrants
		return nil
	})
	g.Go(func() error {
		nodes, err := s.nodeRepo.ListByCompetition(gCtx, nil, id)
		if err != nil {
			return fmt.Errorf("failed to list nodes for competition %d: %w", id, err)
		}
		comp.Nodes = nodes
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return comp, nil
}

func (s *competitionService) List(ctx context.Context, filter repositories.ListCompetitionsFilter) ([]*models.Competition, error) {
	comps, err := s.competitionRepo.List(ctx, nil, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitions: %w", err)
	}
	if comps == nil {
		return []*models.Competition{}, nil
	}
	return comps, nil
}

func (s *competitionService) UpdateStatus(ctx context.Context, id int, status models.CompetitionStatus, actorID int) (*models.Competition, error) {
	switch status {
	case models.StatusDraft, models.StatusRegistrationOpen, models.StatusRegistrationClosed,
		models.StatusInProgress, models.StatusCompleted, models.StatusCanceled:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	comp, err := s.competitionRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !isValidStatusTransition(comp.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, comp.Status, status)
	}
	if status == models.StatusInProgress {
		return s.Start(ctx, id, actorID)
	}
	if err := s.competitionRepo.UpdateStatus(ctx, nil, id, status); err != nil {
		return nil, mapRepoError(err)
	}
	s.logger.Info("competition status updated",
		"competition_id", id, "from", comp.Status, "to", status, "actor_id", actorID)
	comp.Status = status
	return comp, nil
}

func (s *competitionService) AddEntrant(ctx context.Context, competitionID int, input AddEntrantInput, actorID int) (*models.Entrant, error) {
	comp, err := s.competitionRepo.GetByID(ctx, nil, competitionID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if comp.Status != models.StatusRegistrationOpen && comp.Status != models.StatusDraft {
		return nil, ErrRegistrationNotOpen
	}
	if comp.MaxEntrants > 0 {
		active, err := s.activeEntrantCount(ctx, competitionID, 0)
		if err != nil {
			return nil, err
		}
		if active >= comp.MaxEntrants {
			return nil, ErrCompetitionFull
		}
	}

	entrant := &models.Entrant{
		CompetitionID: competitionID,
		TeamID:        input.TeamID,
		Status:        models.EntrantApproved,
		Seed:          input.Seed,
	}
	if err := s.entrantRepo.Create(ctx, nil, entrant); err != nil {
		return nil, mapRepoError(err)
	}
	s.logger.Info("entrant registered",
		"competition_id", competitionID, "entrant_id", entrant.ID,
		"team_id", entrant.TeamID, "actor_id", actorID)
	return entrant, nil
}

// activeEntrantCount counts entrants occupying a capacity slot: everyone not
// rejected or withdrawn, excluding the entrant id given (0 for none).
func (s *competitionService) activeEntrantCount(ctx context.Context, competitionID, excludeID int) (int, error) {
	existing, err := s.entrantRepo.ListByCompetition(ctx, nil, competitionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count entrants for competition %d: %w", competitionID, err)
	}
	active := 0
	for _, e := range existing {
		if e.ID == excludeID {
			continue
		}
		if e.Status != models.EntrantRejected && e.Status != models.EntrantWithdrawn {
			active++
		}
	}
	return active, nil
}

func (s *competitionService) UpdateEntrantStatus(ctx context.Context, competitionID, entrantID int, status models.EntrantStatus, actorID int) (*models.Entrant, error) {
	switch status {
	case models.EntrantPending, models.EntrantApproved, models.EntrantRejected, models.EntrantWithdrawn:
	default:
		return nil, fmt.Errorf("%w: %q", ErrValidationFailed, status)
	}
	entrant, err := s.entrantRepo.GetByID(ctx, nil, entrantID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if entrant.CompetitionID != competitionID {
		return nil, ErrEntrantNotFound
	}
	comp, err := s.competitionRepo.GetByID(ctx, nil, competitionID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	// Once play starts, withdrawal is the only legal move; everything else
	// would rewrite a bracket already in flight.
	if comp.Status == models.StatusInProgress && status != models.EntrantWithdrawn {
		return nil, ErrCompetitionNotEditable
	}
	if comp.Status == models.StatusCompleted || comp.Status == models.StatusCanceled {
		return nil, ErrCompetitionNotEditable
	}
	// Re-approval re-enters the active pool, so capacity applies again.
	if status == models.EntrantApproved && entrant.Status != models.EntrantApproved && comp.MaxEntrants > 0 {
		active, err := s.activeEntrantCount(ctx, competitionID, entrantID)
		if err != nil {
			return nil, err
		}
		if active >= comp.MaxEntrants {
			return nil, ErrCompetitionFull
		}
	}
	if err := s.entrantRepo.UpdateStatus(ctx, nil, entrantID, status); err != nil {
		return nil, mapRepoError(err)
	}
	s.logger.Info("entrant status updated",
		"competition_id", competitionID, "entrant_id", entrantID,
		"from", entrant.Status, "to", status, "actor_id", actorID)
	entrant.Status = status
	return entrant, nil
}

func (s *competitionService) SetEntrantSeed(ctx context.Context, competitionID, entrantID, seed, actorID int) (*models.Entrant, error) {
	comp, err := s.competitionRepo.GetByID(ctx, nil, competitionID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if comp.Status == models.StatusInProgress || comp.Status == models.StatusCompleted || comp.Status == models.StatusCanceled {
		return nil, ErrCompetitionNotEditable
	}
	entrants, err := s.entrantRepo.ListByCompetition(ctx, nil, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entrants for competition %d: %w", competitionID, err)
	}
	if seed < 1 || seed > len(entrants) {
		return nil, ErrSeedOutOfRange
	}
	var target *models.Entrant
	for _, e := range entrants {
		if e.ID == entrantID {
			target = e
		}
	}
	if target == nil {
		return nil, ErrEntrantNotFound
	}
	for _, e := range entrants {
		if e.ID != entrantID && e.Seed != nil && *e.Seed == seed {
			return nil, ErrSeedConflict
		}
	}
	target.Seed = &seed
	if err := s.entrantRepo.UpdateGrouping(ctx, nil, target); err != nil {
		return nil, mapRepoError(err)
	}
	s.logger.Info("entrant seeded",
		"competition_id", competitionID, "entrant_id", entrantID,
		"seed", seed, "actor_id", actorID)
	return target, nil
}

// GenerateBracket builds the full node arena for the competition's format
// and persists it atomically, replacing any previously generated arena.
// Generation before start is repeatable; the same entrant list and seeds
// always produce the same structure.
func (s *competitionService) GenerateBracket(ctx context.Context, competitionID, actorID int) (*models.Competition, error) {
	comp, err := s.GetByID(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if comp.Status == models.StatusInProgress || comp.Status == models.StatusCompleted || comp.Status == models.StatusCanceled {
		return nil, ErrNotInDraft
	}

	approved := comp.ApprovedEntrants()
	if len(approved) < 2 || len(approved) < comp.MinEntrants {
		return nil, fmt.Errorf("%w: have %d", ErrInsufficientEntrants, len(approved))
	}
	if comp.MaxEntrants > 0 && len(approved) > comp.MaxEntrants {
		return nil, fmt.Errorf("%w: have %d, capacity %d", ErrTooManyEntrants, len(approved), comp.MaxEntrants)
	}
	if comp.Format == models.FormatGroupThenKnockout {
		if comp.GroupCount > len(approved)/2 {
			return nil, ErrInvalidGroupConfig
		}
		if comp.KnockoutQualifiers*comp.GroupCount < 2 {
			return nil, ErrInvalidGroupConfig
		}
	}

	generator, err := brackets.ForFormat(comp.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, comp.Format)
	}

	seeded := brackets.EnsureSeeds(approved)
	nodes, err := generator.Generate(ctx, brackets.GenerateParams{
		Competition: comp,
		Entrants:    seeded,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s bracket for competition %d: %w", generator.Name(), competitionID, err)
	}

	// Regeneration is a wholesale replacement, so aggregates from a previous
	// arena (swiss bye credits included) are zeroed before re-crediting.
	for _, e := range seeded {
		e.Wins, e.Losses, e.Draws = 0, 0, 0
		e.PointsFor, e.PointsAgainst = 0, 0
		e.CompetitionPoints, e.PointDifferential = 0, 0
		e.EliminationRound = nil
		e.FinalPosition = nil
	}
	s.engine.ApplyGenerationByes(comp, nodes)

	txErr := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.nodeRepo.DeleteByCompetition(ctx, exec, competitionID); err != nil {
			return err
		}
		if err := s.nodeRepo.CreateBatch(ctx, exec, nodes); err != nil {
			return err
		}
		for _, e := range seeded {
			if err := s.entrantRepo.UpdateGrouping(ctx, exec, e); err != nil {
				return err
			}
			if err := s.entrantRepo.UpdateProgress(ctx, exec, e); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, fmt.Errorf("failed to persist bracket for competition %d: %w", competitionID, txErr)
	}

	comp.Nodes = nodes
	s.logger.Info("bracket generated",
		"competition_id", competitionID, "format", comp.Format,
		"entrants", len(seeded), "nodes", len(nodes), "actor_id", actorID)
	if s.hub != nil {
		s.hub.BroadcastToCompetition(competitionID, brackets.EventBracketGenerated, comp)
	}
	return comp, nil
}

func (s *competitionService) Start(ctx context.Context, competitionID, actorID int) (*models.Competition, error) {
	comp, err := s.GetByID(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if comp.Status == models.StatusInProgress {
		return comp, nil
	}
	if !isValidStatusTransition(comp.Status, models.StatusInProgress) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, comp.Status, models.StatusInProgress)
	}
	if len(comp.Nodes) == 0 {
		return nil, ErrBracketNotGenerated
	}
	if err := s.competitionRepo.UpdateStatus(ctx, nil, competitionID, models.StatusInProgress); err != nil {
		return nil, mapRepoError(err)
	}
	comp.Status = models.StatusInProgress
	s.logger.Info("competition started", "competition_id", competitionID, "actor_id", actorID)
	return comp, nil
}

// CloseExpiredRegistrations flips competitions whose registration window has
// passed to registration_closed. Driven by the scheduler in main.
func (s *competitionService) CloseExpiredRegistrations(ctx context.Context) (int, error) {
	open := models.StatusRegistrationOpen
	comps, err := s.competitionRepo.List(ctx, nil, repositories.ListCompetitionsFilter{Status: &open})
	if err != nil {
		return 0, fmt.Errorf("failed to list open competitions: %w", err)
	}
	closed := 0
	now := time.Now()
	for _, comp := range comps {
		if comp.RegistrationEnd.IsZero() || comp.RegistrationEnd.After(now) {
			continue
		}
		if err := s.competitionRepo.UpdateStatus(ctx, nil, comp.ID, models.StatusRegistrationClosed); err != nil {
			s.logger.Error("failed to close registration",
				"competition_id", comp.ID, "error", err)
			continue
		}
		s.logger.Info("registration closed by scheduler", "competition_id", comp.ID)
		closed++
	}
	return closed, nil
}

// mapRepoError converts repository sentinels to service sentinels so
// handlers only ever see the service error vocabulary.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrCompetitionNotFound):
		return ErrCompetitionNotFound
	case errors.Is(err, repositories.ErrEntrantNotFound):
		return ErrEntrantNotFound
	case errors.Is(err, repositories.ErrNodeNotFound):
		return ErrNodeNotFound
	case errors.Is(err, repositories.ErrSeedConflict):
		return ErrSeedConflict
	default:
		return err
	}
}
