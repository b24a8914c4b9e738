package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbstack/arbengine/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. Leg
// results are stored as a JSONB document since they are only read back
// whole.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionCols = `id, opportunity_id, agent_id, status, actual_profit,
	gas_cost, slippage, legs, error, started_at, completed_at`

func scanExecutionRows(rows pgx.Rows) ([]domain.Execution, error) {
	var execs []domain.Execution
	for rows.Next() {
		var e domain.Execution
		var status string
		var legsJSON []byte

		if err := rows.Scan(
			&e.ID, &e.OpportunityID, &e.AgentID, &status,
			&e.ActualProfit, &e.GasCost, &e.Slippage,
			&legsJSON, &e.Error, &e.StartedAt, &e.CompletedAt,
		); err != nil {
			return nil, err
		}
		e.Status = domain.ExecutionStatus(status)
		if len(legsJSON) > 0 {
			if err := json.Unmarshal(legsJSON, &e.Legs); err != nil {
				return nil, fmt.Errorf("decode legs for %s: %w", e.ID, err)
			}
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// Create inserts a completed execution record.
func (s *ExecutionStore) Create(ctx context.Context, exec domain.Execution) error {
	legsJSON, err := json.Marshal(exec.Legs)
	if err != nil {
		return fmt.Errorf("postgres: encode legs for %s: %w", exec.ID, err)
	}

	const query = `
		INSERT INTO arb_executions (` + executionCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.pool.Exec(ctx, query,
		exec.ID, exec.OpportunityID, exec.AgentID, string(exec.Status),
		exec.ActualProfit, exec.GasCost, exec.Slippage,
		legsJSON, exec.Error, exec.StartedAt, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create execution %s: %w", exec.ID, err)
	}
	return nil
}

// ListRecent returns the most recent executions, newest first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.Execution, error) {
	const query = `
		SELECT ` + executionCols + `
		FROM arb_executions
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent executions: %w", err)
	}
	defer rows.Close()

	execs, err := scanExecutionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan executions: %w", err)
	}
	return execs, nil
}

// ListBefore returns all executions started before the cutoff, oldest first.
// Used by the archiver to select records for cold storage.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Execution, error) {
	const query = `
		SELECT ` + executionCols + `
		FROM arb_executions
		WHERE started_at < $1
		ORDER BY started_at`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	execs, err := scanExecutionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan executions: %w", err)
	}
	return execs, nil
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
