package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bracketlab/bracket-engine/models"
)

// SQLExecutor abstracts *sql.DB and *sql.Tx so services decide the
// transaction boundary and repositories stay boundary-agnostic.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TxRunner runs one unit of work atomically. Result processing is the only
// mutating path and always goes through a single RunInTx call.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(exec SQLExecutor) error) error
}

var (
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrEntrantNotFound     = errors.New("entrant not found")
	ErrNodeNotFound        = errors.New("bracket node not found")
	ErrSeedConflict        = errors.New("seed already assigned in this competition")
)

type ListCompetitionsFilter struct {
	Status *models.CompetitionStatus
	Format *models.CompetitionFormat
	Limit  int
	Offset int
}

type CompetitionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, c *models.Competition) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Competition, error)
	List(ctx context.Context, exec SQLExecutor, filter ListCompetitionsFilter) ([]*models.Competition, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.CompetitionStatus) error
	SetHalted(ctx context.Context, exec SQLExecutor, id int, halted bool) error
}

type EntrantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, e *models.Entrant) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Entrant, error)
	ListByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) ([]*models.Entrant, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.EntrantStatus) error
	// UpdateGrouping persists seed and group assignment made at generation.
	UpdateGrouping(ctx context.Context, exec SQLExecutor, e *models.Entrant) error
	// UpdateProgress persists every aggregate the progression engine owns.
	UpdateProgress(ctx context.Context, exec SQLExecutor, e *models.Entrant) error
}

type NodeRepository interface {
	CreateBatch(ctx context.Context, exec SQLExecutor, nodes []*models.BracketNode) error
	GetByID(ctx context.Context, exec SQLExecutor, competitionID, nodeID int) (*models.BracketNode, error)
	ListByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) ([]*models.BracketNode, error)
	ListSchedulable(ctx context.Context, exec SQLExecutor, competitionID, limit int) ([]*models.BracketNode, error)
	// UpdateResult persists a completed or forfeited node's result fields.
	UpdateResult(ctx context.Context, exec SQLExecutor, n *models.BracketNode) error
	// UpdateSlots persists advancement writes into a downstream node.
	UpdateSlots(ctx context.Context, exec SQLExecutor, n *models.BracketNode) error
	DeleteByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) error
}

func checkAffectedRows(result sql.Result, notFoundErr error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return notFoundErr
	}
	return nil
}

type sqlTxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) TxRunner {
	return &sqlTxRunner{db: db}
}

func (r *sqlTxRunner) RunInTx(ctx context.Context, fn func(exec SQLExecutor) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()
	err = fn(tx)
	return err
}
