package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bracketlab/bracket-engine/models"
)

type postgresCompetitionRepository struct {
	db *sql.DB
}

func NewPostgresCompetitionRepository(db *sql.DB) CompetitionRepository {
	return &postgresCompetitionRepository{db: db}
}

func (r *postgresCompetitionRepository) exec(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const competitionColumns = `id, name, format, status, organizer_id, min_entrants, max_entrants,
		group_count, knockout_qualifiers, points_win, points_draw, points_loss,
		game_duration_minutes, registration_end, halted, created_at`

func (r *postgresCompetitionRepository) Create(ctx context.Context, exec SQLExecutor, c *models.Competition) error {
	query := `
		INSERT INTO competitions
			(name, format, status, organizer_id, min_entrants, max_entrants,
			 group_count, knockout_qualifiers, points_win, points_draw, points_loss,
			 game_duration_minutes, registration_end, halted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at`

	err := r.exec(exec).QueryRowContext(ctx, query,
		c.Name, c.Format, c.Status, c.OrganizerID, c.MinEntrants, c.MaxEntrants,
		c.GroupCount, c.KnockoutQualifiers, c.Points.Win, c.Points.Draw, c.Points.Loss,
		c.GameDurationMin, c.RegistrationEnd, c.Halted,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert competition: %w", err)
	}
	return nil
}

func (r *postgresCompetitionRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Competition, error) {
	query := `SELECT ` + competitionColumns + ` FROM competitions WHERE id = $1`
	c, err := scanCompetition(r.exec(exec).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompetitionNotFound
		}
		return nil, fmt.Errorf("failed to scan competition %d: %w", id, err)
	}
	return c, nil
}

func (r *postgresCompetitionRepository) List(ctx context.Context, exec SQLExecutor, filter ListCompetitionsFilter) ([]*models.Competition, error) {
	var query strings.Builder
	query.WriteString(`SELECT ` + competitionColumns + ` FROM competitions WHERE 1=1`)

	args := make([]interface{}, 0, 4)
	placeholder := 1
	if filter.Status != nil {
		query.WriteString(" AND status = $" + strconv.Itoa(placeholder))
		args = append(args, *filter.Status)
		placeholder++
	}
	if filter.Format != nil {
		query.WriteString(" AND format = $" + strconv.Itoa(placeholder))
		args = append(args, *filter.Format)
		placeholder++
	}
	query.WriteString(" ORDER BY created_at DESC, id DESC")
	if filter.Limit > 0 {
		query.WriteString(" LIMIT $" + strconv.Itoa(placeholder))
		args = append(args, filter.Limit)
		placeholder++
	}
	if filter.Offset > 0 {
		query.WriteString(" OFFSET $" + strconv.Itoa(placeholder))
		args = append(args, filter.Offset)
	}

	rows, err := r.exec(exec).QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query competitions: %w", err)
	}
	defer rows.Close()

	competitions := make([]*models.Competition, 0)
	for rows.Next() {
		c, scanErr := scanCompetition(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan competition row: %w", scanErr)
		}
		competitions = append(competitions, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during competition rows iteration: %w", err)
	}
	return competitions, nil
}

func (r *postgresCompetitionRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.CompetitionStatus) error {
	result, err := r.exec(exec).ExecContext(ctx,
		`UPDATE competitions SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update competition %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrCompetitionNotFound)
}

func (r *postgresCompetitionRepository) SetHalted(ctx context.Context, exec SQLExecutor, id int, halted bool) error {
	result, err := r.exec(exec).ExecContext(ctx,
		`UPDATE competitions SET halted = $1 WHERE id = $2`, halted, id)
	if err != nil {
		return fmt.Errorf("failed to update competition %d halted flag: %w", id, err)
	}
	return checkAffectedRows(result, ErrCompetitionNotFound)
}

func scanCompetition(scanner interface{ Scan(...interface{}) error }) (*models.Competition, error) {
	var c models.Competition
	err := scanner.Scan(
		&c.ID, &c.Name, &c.Format, &c.Status, &c.OrganizerID, &c.MinEntrants, &c.MaxEntrants,
		&c.GroupCount, &c.KnockoutQualifiers, &c.Points.Win, &c.Points.Draw, &c.Points.Loss,
		&c.GameDurationMin, &c.RegistrationEnd, &c.Halted, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
