package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bracketlab/bracket-engine/models"
)

// Bracket nodes are keyed by (competition_id, id): the engine assigns dense
// arena ids per competition so sibling and parent lookups never traverse the
// graph, and advancement links survive persistence unchanged.
type postgresNodeRepository struct {
	db *sql.DB
}

func NewPostgresNodeRepository(db *sql.DB) NodeRepository {
	return &postgresNodeRepository{db: db}
}

func (r *postgresNodeRepository) exec(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const nodeColumns = `competition_id, id, round, position, branch, group_label, swiss_round,
		slot_a, slot_b, status, score_a, score_b, winner_id, loser_id,
		next_node_id, next_slot, loser_next_node_id, loser_next_slot,
		overtime, duration_seconds, game_ref, forfeit_reason, created_at`

func (r *postgresNodeRepository) CreateBatch(ctx context.Context, exec SQLExecutor, nodes []*models.BracketNode) error {
	if len(nodes) == 0 {
		return nil
	}
	query := `
		INSERT INTO bracket_nodes
			(competition_id, id, round, position, branch, group_label, swiss_round,
			 slot_a, slot_b, status, score_a, score_b, winner_id, loser_id,
			 next_node_id, next_slot, loser_next_node_id, loser_next_slot,
			 overtime, duration_seconds, game_ref, forfeit_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING created_at`

	for _, n := range nodes {
		err := r.exec(exec).QueryRowContext(ctx, query,
			n.CompetitionID, n.ID, n.Round, n.Position, n.Branch, n.GroupLabel, n.SwissRound,
			n.SlotA, n.SlotB, n.Status, n.ScoreA, n.ScoreB, n.WinnerID, n.LoserID,
			n.NextNodeID, n.NextSlot, n.LoserNextNodeID, n.LoserNextSlot,
			n.Overtime, n.DurationSeconds, n.GameRef, n.ForfeitReason,
		).Scan(&n.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert bracket node %d for competition %d: %w", n.ID, n.CompetitionID, err)
		}
	}
	return nil
}

func (r *postgresNodeRepository) GetByID(ctx context.Context, exec SQLExecutor, competitionID, nodeID int) (*models.BracketNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM bracket_nodes WHERE competition_id = $1 AND id = $2`
	n, err := scanNode(r.exec(exec).QueryRowContext(ctx, query, competitionID, nodeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("failed to scan bracket node %d: %w", nodeID, err)
	}
	return n, nil
}

func (r *postgresNodeRepository) ListByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) ([]*models.BracketNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM bracket_nodes
		WHERE competition_id = $1 ORDER BY id ASC`
	return r.queryNodes(ctx, exec, query, competitionID)
}

func (r *postgresNodeRepository) ListSchedulable(ctx context.Context, exec SQLExecutor, competitionID, limit int) ([]*models.BracketNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM bracket_nodes
		WHERE competition_id = $1
		  AND slot_a IS NOT NULL AND slot_b IS NOT NULL
		  AND status IN ('pending', 'scheduled')
		ORDER BY round ASC, position ASC
		LIMIT $2`
	return r.queryNodes(ctx, exec, query, competitionID, limit)
}

func (r *postgresNodeRepository) queryNodes(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.BracketNode, error) {
	rows, err := r.exec(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bracket nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]*models.BracketNode, 0)
	for rows.Next() {
		n, scanErr := scanNode(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan bracket node row: %w", scanErr)
		}
		nodes = append(nodes, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during bracket node rows iteration: %w", err)
	}
	return nodes, nil
}

func (r *postgresNodeRepository) UpdateResult(ctx context.Context, exec SQLExecutor, n *models.BracketNode) error {
	query := `
		UPDATE bracket_nodes SET
			score_a = $1, score_b = $2, status = $3, winner_id = $4, loser_id = $5,
			overtime = $6, duration_seconds = $7, game_ref = $8, forfeit_reason = $9
		WHERE competition_id = $10 AND id = $11`

	result, err := r.exec(exec).ExecContext(ctx, query,
		n.ScoreA, n.ScoreB, n.Status, n.WinnerID, n.LoserID,
		n.Overtime, n.DurationSeconds, n.GameRef, n.ForfeitReason,
		n.CompetitionID, n.ID)
	if err != nil {
		return fmt.Errorf("failed to update result on node %d: %w", n.ID, err)
	}
	return checkAffectedRows(result, ErrNodeNotFound)
}

func (r *postgresNodeRepository) UpdateSlots(ctx context.Context, exec SQLExecutor, n *models.BracketNode) error {
	query := `
		UPDATE bracket_nodes SET slot_a = $1, slot_b = $2, status = $3
		WHERE competition_id = $4 AND id = $5`

	result, err := r.exec(exec).ExecContext(ctx, query,
		n.SlotA, n.SlotB, n.Status, n.CompetitionID, n.ID)
	if err != nil {
		return fmt.Errorf("failed to update slots on node %d: %w", n.ID, err)
	}
	return checkAffectedRows(result, ErrNodeNotFound)
}

func (r *postgresNodeRepository) DeleteByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) error {
	_, err := r.exec(exec).ExecContext(ctx,
		`DELETE FROM bracket_nodes WHERE competition_id = $1`, competitionID)
	if err != nil {
		return fmt.Errorf("failed to delete bracket nodes for competition %d: %w", competitionID, err)
	}
	return nil
}

func scanNode(scanner interface{ Scan(...interface{}) error }) (*models.BracketNode, error) {
	var n models.BracketNode
	err := scanner.Scan(
		&n.CompetitionID, &n.ID, &n.Round, &n.Position, &n.Branch, &n.GroupLabel, &n.SwissRound,
		&n.SlotA, &n.SlotB, &n.Status, &n.ScoreA, &n.ScoreB, &n.WinnerID, &n.LoserID,
		&n.NextNodeID, &n.NextSlot, &n.LoserNextNodeID, &n.LoserNextSlot,
		&n.Overtime, &n.DurationSeconds, &n.GameRef, &n.ForfeitReason, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
