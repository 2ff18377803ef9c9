package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bracketlab/bracket-engine/engine"
	"github.com/bracketlab/bracket-engine/models"
	"github.com/bracketlab/bracket-engine/repositories"
)

type testEnv struct {
	store        *repositories.MemoryStore
	competitions CompetitionService
	results      ResultService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repositories.NewMemoryStore()
	eng := engine.New(logger)
	locks := engine.NewCompetitionLocks()

	competitions := NewCompetitionService(
		store.Competitions(), store.Entrants(), store.Nodes(), store, eng, nil, logger)
	results := NewResultService(
		competitions, store.Competitions(), store.Entrants(), store.Nodes(), store,
		eng, locks, nil, nil, logger)
	return &testEnv{store: store, competitions: competitions, results: results}
}

// createCompetition creates a draft competition and registers n entrants.
func (env *testEnv) createCompetition(t *testing.T, input CreateCompetitionInput, n int) *models.Competition {
	t.Helper()
	ctx := context.Background()
	if input.Name == "" {
		input.Name = "spring open"
	}
	if input.RegistrationEnd.IsZero() {
		input.RegistrationEnd = time.Now().Add(24 * time.Hour)
	}
	comp, err := env.competitions.Create(ctx, input, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := env.competitions.AddEntrant(ctx, comp.ID, AddEntrantInput{TeamID: 100 + i}, 1); err != nil {
			t.Fatalf("AddEntrant %d: %v", i, err)
		}
	}
	return comp
}

// startCompetition generates the bracket and walks the lifecycle to
// in_progress.
func (env *testEnv) startCompetition(t *testing.T, id int) *models.Competition {
	t.Helper()
	ctx := context.Background()
	if _, err := env.competitions.GenerateBracket(ctx, id, 1); err != nil {
		t.Fatalf("GenerateBracket: %v", err)
	}
	if _, err := env.competitions.UpdateStatus(ctx, id, models.StatusRegistrationOpen, 1); err != nil {
		t.Fatalf("open registration: %v", err)
	}
	if _, err := env.competitions.UpdateStatus(ctx, id, models.StatusRegistrationClosed, 1); err != nil {
		t.Fatalf("close registration: %v", err)
	}
	comp, err := env.competitions.Start(ctx, id, 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return comp
}

// TestCompetitionLifecycle walks a competition from draft to in progress and
// checks that completion cannot be forced through a status update.
func TestCompetitionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, CreateCompetitionInput{Format: models.FormatSingleElimination}, 4)

	if comp.Status != models.StatusDraft {
		t.Fatalf("new competition status %s, expected draft", comp.Status)
	}

	started := env.startCompetition(t, comp.ID)
	if started.Status != models.StatusInProgress {
		t.Fatalf("status %s, expected in_progress", started.Status)
	}
	if len(started.Nodes) != 3 {
		t.Fatalf("expected 3 nodes for 4 entrants, got %d", len(started.Nodes))
	}

	// Starting again is idempotent.
	again, err := env.competitions.Start(ctx, comp.ID, 1)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if again.Status != models.StatusInProgress {
		t.Fatalf("second Start left status %s", again.Status)
	}

	// Completion belongs to the engine.
	_, err = env.competitions.UpdateStatus(ctx, comp.ID, models.StatusCompleted, 1)
	if !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
}

// TestCreateValidation checks input rejection at creation time.
func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.competitions.Create(ctx, CreateCompetitionInput{Format: models.FormatRoundRobin}, 1)
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for empty name, got %v", err)
	}

	_, err = env.competitions.Create(ctx, CreateCompetitionInput{Name: "x", Format: "ladder"}, 1)
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}

	_, err = env.competitions.Create(ctx, CreateCompetitionInput{Name: "x", Format: models.FormatGroupThenKnockout}, 1)
	if !errors.Is(err, ErrInvalidGroupConfig) {
		t.Fatalf("expected ErrInvalidGroupConfig, got %v", err)
	}

	_, err = env.competitions.Create(ctx, CreateCompetitionInput{
		Name:            "x",
		Format:          models.FormatRoundRobin,
		RegistrationEnd: time.Now().Add(-time.Minute),
	}, 1)
	if !errors.Is(err, ErrInvalidRegistrationEnd) {
		t.Fatalf("expected ErrInvalidRegistrationEnd, got %v", err)
	}
}

// TestAddEntrantCapacity checks the registration window and capacity guards.
func TestAddEntrantCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, CreateCompetitionInput{
		Format:      models.FormatSingleElimination,
		MaxEntrants: 2,
	}, 2)

	_, err := env.competitions.AddEntrant(ctx, comp.ID, AddEntrantInput{TeamID: 300}, 1)
	if !errors.Is(err, ErrCompetitionFull) {
		t.Fatalf("expected ErrCompetitionFull, got %v", err)
	}

	if _, err := env.competitions.UpdateStatus(ctx, comp.ID, models.StatusRegistrationOpen, 1); err != nil {
		t.Fatalf("open registration: %v", err)
	}
	if _, err := env.competitions.UpdateStatus(ctx, comp.ID, models.StatusRegistrationClosed, 1); err != nil {
		t.Fatalf("close registration: %v", err)
	}
	_, err = env.competitions.AddEntrant(ctx, comp.ID, AddEntrantInput{TeamID: 301}, 1)
	if !errors.Is(err, ErrRegistrationNotOpen) {
		t.Fatalf("expected ErrRegistrationNotOpen, got %v", err)
	}
}

// TestEntrantReapprovalCapacity checks that approving a withdrawn entrant
// counts against capacity again, so a replaced slot cannot be reclaimed once
// the field is full.
func TestEntrantReapprovalCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, CreateCompetitionInput{
		Format:      models.FormatSingleElimination,
		MaxEntrants: 4,
	}, 4)

	loaded, err := env.competitions.GetByID(ctx, comp.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	withdrawn := loaded.Entrants[0]
	if _, err := env.competitions.UpdateEntrantStatus(ctx, comp.ID, withdrawn.ID, models.EntrantWithdrawn, 1); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	// The freed slot goes to a replacement.
	if _, err := env.competitions.AddEntrant(ctx, comp.ID, AddEntrantInput{TeamID: 500}, 1); err != nil {
		t.Fatalf("replacement AddEntrant: %v", err)
	}

	_, err = env.competitions.UpdateEntrantStatus(ctx, comp.ID, withdrawn.ID, models.EntrantApproved, 1)
	if !errors.Is(err, ErrCompetitionFull) {
		t.Fatalf("expected ErrCompetitionFull on re-approval, got %v", err)
	}

	// With a slot free again, re-approval succeeds.
	reloaded, err := env.competitions.GetByID(ctx, comp.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	var replacement *models.Entrant
	for _, e := range reloaded.Entrants {
		if e.TeamID == 500 {
			replacement = e
		}
	}
	if _, err := env.competitions.UpdateEntrantStatus(ctx, comp.ID, replacement.ID, models.EntrantWithdrawn, 1); err != nil {
		t.Fatalf("withdraw replacement: %v", err)
	}
	if _, err := env.competitions.UpdateEntrantStatus(ctx, comp.ID, withdrawn.ID, models.EntrantApproved, 1); err != nil {
		t.Fatalf("re-approval with free capacity rejected: %v", err)
	}
}

// TestGenerateBracketTooManyEntrants checks the upper entrant bound at
// generation time, independent of how the approved list grew.
func TestGenerateBracketTooManyEntrants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, CreateCompetitionInput{
		Format:      models.FormatSingleElimination,
		MaxEntrants: 2,
	}, 0)

	// Seed the store past capacity directly; generation must still refuse.
	for i := 0; i < 3; i++ {
		e := &models.Entrant{
			CompetitionID: comp.ID,
			TeamID:        600 + i,
			Status:        models.EntrantApproved,
		}
		if err := env.store.Entrants().Create(ctx, nil, e); err != nil {
			t.Fatalf("seeding entrant: %v", err)
		}
	}

	_, err := env.competitions.GenerateBracket(ctx, comp.ID, 1)
	if !errors.Is(err, ErrTooManyEntrants) {
		t.Fatalf("expected ErrTooManyEntrants, got %v", err)
	}
}

// TestSetEntrantSeed checks range and uniqueness enforcement.
func TestSetEntrantSeed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, CreateCompetitionInput{Format: models.FormatSingleElimination}, 2)

	loaded, err := env.competitions.GetByID(ctx, comp.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	first, second := loaded.Entrants[0], loaded.Entrants[1]

	if _, err := env.competitions.SetEntrantSeed(ctx, comp.ID, first.ID, 1, 1); err != nil {
		t.Fatalf("SetEntrantSeed: %v", err)
	}
	_, err = env.competitions.SetEntrantSeed(ctx, comp.ID, second.ID, 1, 1)
	if !errors.Is(err, ErrSeedConflict) {
		t.Fatalf("expected ErrSeedConflict, got %v", err)
	}
	_, err = env.competitions.SetEntrantSeed(ctx, comp.ID, second.ID, 5, 1)
	if !errors.Is(err, ErrSeedOutOfRange) {
		t.Fatalf("expected ErrSeedOutOfRange, got %v", err)
	}
}

// TestGenerateBracketGuards checks the entrant-count and format guards.
func TestGenerateBracketGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, CreateCompetitionInput{Format: models.FormatSingleElimination}, 1)

	_, err := env.competitions.GenerateBracket(ctx, comp.ID, 1)
	if !errors.Is(err, ErrInsufficientEntrants) {
		t.Fatalf("expected ErrInsufficientEntrants, got %v", err)
	}

	// Starting without an arena is rejected.
	if _, err := env.competitions.UpdateStatus(ctx, comp.ID, models.StatusRegistrationOpen, 1); err != nil {
		t.Fatalf("open registration: %v", err)
	}
	if _, err := env.competitions.UpdateStatus(ctx, comp.ID, models.StatusRegistrationClosed, 1); err != nil {
		t.Fatalf("close registration: %v", err)
	}
	_, err = env.competitions.Start(ctx, comp.ID, 1)
	if !errors.Is(err, ErrBracketNotGenerated) {
		t.Fatalf("expected ErrBracketNotGenerated, got %v", err)
	}

	// Too many groups for the field.
	gtk := env.createCompetition(t, CreateCompetitionInput{
		Format:             models.FormatGroupThenKnockout,
		GroupCount:         4,
		KnockoutQualifiers: 1,
	}, 4)
	_, err = env.competitions.GenerateBracket(ctx, gtk.ID, 1)
	if !errors.Is(err, ErrInvalidGroupConfig) {
		t.Fatalf("expected ErrInvalidGroupConfig, got %v", err)
	}
}

// TestBracketRegeneration checks that regenerating replaces the arena
// wholesale and does not stack swiss bye credits.
func TestBracketRegeneration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, CreateCompetitionInput{Format: models.FormatSwissSystem}, 5)

	first, err := env.competitions.GenerateBracket(ctx, comp.ID, 1)
	if err != nil {
		t.Fatalf("first GenerateBracket: %v", err)
	}
	second, err := env.competitions.GenerateBracket(ctx, comp.ID, 1)
	if err != nil {
		t.Fatalf("second GenerateBracket: %v", err)
	}
	if len(first.Nodes) != len(second.Nodes) {
		t.Fatalf("regeneration changed node count: %d vs %d", len(first.Nodes), len(second.Nodes))
	}

	loaded, err := env.competitions.GetByID(ctx, comp.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(loaded.Nodes) != len(second.Nodes) {
		t.Fatalf("store holds %d nodes, expected %d", len(loaded.Nodes), len(second.Nodes))
	}
	for _, e := range loaded.Entrants {
		if e.Wins > 1 {
			t.Fatalf("entrant %d holds %d wins after regeneration, bye credit stacked", e.ID, e.Wins)
		}
	}
}

// TestUpdateEntrantStatusInProgress checks that withdrawal is the only legal
// entrant change once play starts.
func TestUpdateEntrantStatusInProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, CreateCompetitionInput{Format: models.FormatRoundRobin}, 4)
	env.startCompetition(t, comp.ID)

	loaded, err := env.competitions.GetByID(ctx, comp.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	target := loaded.Entrants[0]

	_, err = env.competitions.UpdateEntrantStatus(ctx, comp.ID, target.ID, models.EntrantRejected, 1)
	if !errors.Is(err, ErrCompetitionNotEditable) {
		t.Fatalf("expected ErrCompetitionNotEditable, got %v", err)
	}

	updated, err := env.competitions.UpdateEntrantStatus(ctx, comp.ID, target.ID, models.EntrantWithdrawn, 1)
	if err != nil {
		t.Fatalf("withdrawal rejected: %v", err)
	}
	if updated.Status != models.EntrantWithdrawn {
		t.Fatalf("entrant status %s, expected withdrawn", updated.Status)
	}
}

// TestCloseExpiredRegistrations checks the scheduler sweep.
func TestCloseExpiredRegistrations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	expired := env.createCompetition(t, CreateCompetitionInput{
		Format:          models.FormatRoundRobin,
		RegistrationEnd: time.Now().Add(30 * time.Millisecond),
	}, 2)
	current := env.createCompetition(t, CreateCompetitionInput{
		Format:          models.FormatRoundRobin,
		RegistrationEnd: time.Now().Add(time.Hour),
	}, 2)
	for _, id := range []int{expired.ID, current.ID} {
		if _, err := env.competitions.UpdateStatus(ctx, id, models.StatusRegistrationOpen, 1); err != nil {
			t.Fatalf("open registration: %v", err)
		}
	}

	// Let the first deadline pass.
	time.Sleep(60 * time.Millisecond)

	closed, err := env.competitions.CloseExpiredRegistrations(ctx)
	if err != nil {
		t.Fatalf("CloseExpiredRegistrations: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected 1 closed competition, got %d", closed)
	}
	reloaded, err := env.competitions.GetByID(ctx, expired.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != models.StatusRegistrationClosed {
		t.Fatalf("expired competition status %s, expected registration_closed", reloaded.Status)
	}
	untouched, err := env.competitions.GetByID(ctx, current.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if untouched.Status != models.StatusRegistrationOpen {
		t.Fatalf("current competition status %s, expected registration_open", untouched.Status)
	}
}

// TestGetByIDNotFound checks sentinel mapping from the repository layer.
func TestGetByIDNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.competitions.GetByID(context.Background(), 42)
	if !errors.Is(err, ErrCompetitionNotFound) {
		t.Fatalf("expected ErrCompetitionNotFound, got %v", err)
	}
}
