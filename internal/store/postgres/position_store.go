package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbstack/arbengine/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `id, agent_id, asset, side, size, entry_price, current_price,
	leverage, margin_used, unrealized_pnl, liquidation_price,
	margin_status, status, created_at, updated_at, closed_at, exit_price`

func scanPositionRows(rows pgx.Rows) ([]domain.LeveragePosition, error) {
	var positions []domain.LeveragePosition
	for rows.Next() {
		var p domain.LeveragePosition
		var side, marginStatus, status string

		if err := rows.Scan(
			&p.ID, &p.AgentID, &p.Asset, &side,
			&p.Size, &p.EntryPrice, &p.CurrentPrice,
			&p.Leverage, &p.MarginUsed, &p.UnrealizedPnL, &p.LiquidationPrice,
			&marginStatus, &status,
			&p.CreatedAt, &p.UpdatedAt, &p.ClosedAt, &p.ExitPrice,
		); err != nil {
			return nil, err
		}
		p.Side = domain.PositionSide(side)
		p.MarginStatus = domain.MarginStatus(marginStatus)
		p.Status = domain.PositionStatus(status)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Upsert inserts or replaces a position snapshot.
func (s *PositionStore) Upsert(ctx context.Context, p domain.LeveragePosition) error {
	const query = `
		INSERT INTO leverage_positions (` + positionCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			current_price = EXCLUDED.current_price,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			margin_status = EXCLUDED.margin_status,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			closed_at = EXCLUDED.closed_at,
			exit_price = EXCLUDED.exit_price`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.AgentID, p.Asset, string(p.Side),
		p.Size, p.EntryPrice, p.CurrentPrice,
		p.Leverage, p.MarginUsed, p.UnrealizedPnL, p.LiquidationPrice,
		string(p.MarginStatus), string(p.Status),
		p.CreatedAt, p.UpdatedAt, p.ClosedAt, p.ExitPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ID, err)
	}
	return nil
}

// Close marks a position closed at the given exit price.
func (s *PositionStore) Close(ctx context.Context, id string, exitPrice float64, closedAt time.Time) error {
	const query = `
		UPDATE leverage_positions
		SET status = 'closed', exit_price = $2, closed_at = $3, updated_at = $3
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, exitPrice, closedAt)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: close position %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListOpen returns all open positions for one agent.
func (s *PositionStore) ListOpen(ctx context.Context, agentID string) ([]domain.LeveragePosition, error) {
	const query = `
		SELECT ` + positionCols + `
		FROM leverage_positions
		WHERE agent_id = $1 AND status = 'open'
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions for %s: %w", agentID, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions for %s: %w", agentID, err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
