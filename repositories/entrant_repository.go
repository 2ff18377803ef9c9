package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/bracketlab/bracket-engine/models"
)

type postgresEntrantRepository struct {
	db *sql.DB
}

func NewPostgresEntrantRepository(db *sql.DB) EntrantRepository {
	return &postgresEntrantRepository{db: db}
}

func (r *postgresEntrantRepository) exec(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const entrantColumns = `id, competition_id, team_id, status, seed, group_label,
		wins, losses, draws, points_for, points_against, competition_points,
		point_differential, elimination_round, final_position, reg_order, created_at`

func (r *postgresEntrantRepository) Create(ctx context.Context, exec SQLExecutor, e *models.Entrant) error {
	query := `
		INSERT INTO entrants
			(competition_id, team_id, status, seed, group_label, reg_order)
		VALUES ($1, $2, $3, $4, $5,
			(SELECT COALESCE(MAX(reg_order), 0) + 1 FROM entrants WHERE competition_id = $1))
		RETURNING id, reg_order, created_at`

	err := r.exec(exec).QueryRowContext(ctx, query,
		e.CompetitionID, e.TeamID, e.Status, e.Seed, e.GroupLabel,
	).Scan(&e.ID, &e.RegOrder, &e.CreatedAt)
	return r.handleError(err)
}

func (r *postgresEntrantRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Entrant, error) {
	query := `SELECT ` + entrantColumns + ` FROM entrants WHERE id = $1`
	e, err := scanEntrant(r.exec(exec).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntrantNotFound
		}
		return nil, fmt.Errorf("failed to scan entrant %d: %w", id, err)
	}
	return e, nil
}

func (r *postgresEntrantRepository) ListByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) ([]*models.Entrant, error) {
	query := `SELECT ` + entrantColumns + ` FROM entrants
		WHERE competition_id = $1 ORDER BY reg_order ASC`

	rows, err := r.exec(exec).QueryContext(ctx, query, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entrants for competition %d: %w", competitionID, err)
	}
	defer rows.Close()

	entrants := make([]*models.Entrant, 0)
	for rows.Next() {
		e, scanErr := scanEntrant(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan entrant row: %w", scanErr)
		}
		entrants = append(entrants, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during entrant rows iteration: %w", err)
	}
	return entrants, nil
}

func (r *postgresEntrantRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.EntrantStatus) error {
	result, err := r.exec(exec).ExecContext(ctx,
		`UPDATE entrants SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return r.handleError(err)
	}
	return checkAffectedRows(result, ErrEntrantNotFound)
}

func (r *postgresEntrantRepository) UpdateGrouping(ctx context.Context, exec SQLExecutor, e *models.Entrant) error {
	result, err := r.exec(exec).ExecContext(ctx,
		`UPDATE entrants SET seed = $1, group_label = $2 WHERE id = $3`,
		e.Seed, e.GroupLabel, e.ID)
	if err != nil {
		return r.handleError(err)
	}
	return checkAffectedRows(result, ErrEntrantNotFound)
}

func (r *postgresEntrantRepository) UpdateProgress(ctx context.Context, exec SQLExecutor, e *models.Entrant) error {
	query := `
		UPDATE entrants SET
			wins = $1, losses = $2, draws = $3, points_for = $4, points_against = $5,
			competition_points = $6, point_differential = $7,
			elimination_round = $8, final_position = $9, status = $10
		WHERE id = $11`

	result, err := r.exec(exec).ExecContext(ctx, query,
		e.Wins, e.Losses, e.Draws, e.PointsFor, e.PointsAgainst,
		e.CompetitionPoints, e.PointDifferential,
		e.EliminationRound, e.FinalPosition, e.Status, e.ID)
	if err != nil {
		return r.handleError(err)
	}
	return checkAffectedRows(result, ErrEntrantNotFound)
}

// handleError maps Postgres constraint violations onto repository sentinels.
func (r *postgresEntrantRepository) handleError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Constraint {
		case "entrants_competition_id_seed_key":
			return ErrSeedConflict
		case "entrants_competition_id_fkey":
			return ErrCompetitionNotFound
		}
	}
	return fmt.Errorf("entrant repository: %w", err)
}

func scanEntrant(scanner interface{ Scan(...interface{}) error }) (*models.Entrant, error) {
	var e models.Entrant
	err := scanner.Scan(
		&e.ID, &e.CompetitionID, &e.TeamID, &e.Status, &e.Seed, &e.GroupLabel,
		&e.Wins, &e.Losses, &e.Draws, &e.PointsFor, &e.PointsAgainst, &e.CompetitionPoints,
		&e.PointDifferential, &e.EliminationRound, &e.FinalPosition, &e.RegOrder, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
