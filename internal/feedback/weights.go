package feedback

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool abstracts the pgx pool so the store can be exercised with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	sqlInsertOutcome = `
        INSERT INTO action_outcomes (action_type, success, utility, context_tag, observed_at)
        VALUES ($1, $2, $3, $4, now())`

	// Exponential moving average keeps the live weight responsive without
	// letting one bad outcome dominate.
	sqlUpsertWeight = `
        INSERT INTO action_weights (action_type, weight, observations, updated_at)
        VALUES ($1, $2, 1, now())
        ON CONFLICT (action_type) DO UPDATE SET
            weight = action_weights.weight * 0.8 + EXCLUDED.weight * 0.2,
            observations = action_weights.observations + 1,
            updated_at = now()`

	sqlSelectWeights = `SELECT action_type, weight FROM action_weights`
)

// WeightStore persists action outcomes and maintains the live complexity
// weight table the cost model reads. Writes are append/upsert-only; readers
// snapshot once per cost model construction, so no locking is needed here.
type WeightStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewWeightStore verifies the connection and returns the store.
func NewWeightStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*WeightStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &WeightStore{
		pool: pool,
		log:  logger.Named("weights"),
	}, nil
}

// RecordOutcome appends one observation and folds it into the live weight
// for the action type.
func (s *WeightStore) RecordOutcome(ctx context.Context, actionType string, success bool, utility float64, contextTag string) error {
	if _, err := s.pool.Exec(ctx, sqlInsertOutcome, actionType, success, utility, contextTag); err != nil {
		return fmt.Errorf("failed to insert outcome for %s: %w", actionType, err)
	}
	if _, err := s.pool.Exec(ctx, sqlUpsertWeight, actionType, complexityFromUtility(utility)); err != nil {
		return fmt.Errorf("failed to upsert weight for %s: %w", actionType, err)
	}
	return nil
}

// LoadWeights returns the live weight table. Implements the cost model's
// WeightSource contract.
func (s *WeightStore) LoadWeights(ctx context.Context) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, sqlSelectWeights)
	if err != nil {
		return nil, fmt.Errorf("failed to load action weights: %w", err)
	}
	defer rows.Close()

	weights := make(map[string]float64)
	for rows.Next() {
		var actionType string
		var weight float64
		if err := rows.Scan(&actionType, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan action weight: %w", err)
		}
		weights[actionType] = weight
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return weights, nil
}

// complexityFromUtility maps a scalar utility in [-1, 1] onto the complexity
// scale the cost model prices with: high-utility actions get cheaper, failing
// ones more expensive, clamped to [1.0, 2.5].
func complexityFromUtility(utility float64) float64 {
	c := 1.75 - 0.75*utility
	if c < 1.0 {
		return 1.0
	}
	if c > 2.5 {
		return 2.5
	}
	return c
}
