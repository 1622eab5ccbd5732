// Package memstore backs the four innate memory primitives (recall, remember,
// update_memory, forget) with a Postgres table.
package memstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/praxis-sh/praxis/internal/dispatch"
	"github.com/praxis-sh/praxis/internal/taxonomy"
)

// DBPool is the subset of pgxpool.Pool the store uses, small enough for
// pgxmock to stand in during tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	sqlInsertMemory = `
		INSERT INTO memories (id, topic, content, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW());`

	sqlSelectMemories = `
		SELECT content FROM memories
		WHERE topic ILIKE '%' || $1 || '%'
		ORDER BY updated_at DESC
		LIMIT $2;`

	sqlUpdateMemory = `
		UPDATE memories SET content = $2, updated_at = NOW()
		WHERE id = (
			SELECT id FROM memories WHERE topic = $1
			ORDER BY updated_at DESC LIMIT 1
		);`

	sqlDeleteMemories = `DELETE FROM memories WHERE topic = $1;`
)

// recallLimit caps how many memories a single recall folds into one result.
const recallLimit = 10

// Store persists agent memories.
type Store struct {
	pool   DBPool
	logger *zap.Logger
}

// New verifies connectivity and returns a memory store.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("memstore: database unreachable: %w", err)
	}
	return &Store{pool: pool, logger: logger.Named("memstore")}, nil
}

// Recall returns the most recent memories matching topic, newest first, one
// per line. The "No memories" phrasing is load-bearing: the feedback scorer
// recognizes it as an empty lookup.
func (s *Store) Recall(ctx context.Context, topic string) (string, error) {
	rows, err := s.pool.Query(ctx, sqlSelectMemories, topic, recallLimit)
	if err != nil {
		return "", fmt.Errorf("memstore: recall query failed: %w", err)
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return "", fmt.Errorf("memstore: recall scan failed: %w", err)
		}
		contents = append(contents, content)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("memstore: recall iteration failed: %w", err)
	}
	if len(contents) == 0 {
		return fmt.Sprintf("No memories found for topic %q.", topic), nil
	}
	return strings.Join(contents, "\n"), nil
}

// Remember stores a new memory under topic and returns its id.
func (s *Store) Remember(ctx context.Context, topic, content string) (string, error) {
	id := uuid.NewString()
	if _, err := s.pool.Exec(ctx, sqlInsertMemory, id, topic, content); err != nil {
		return "", fmt.Errorf("memstore: insert failed: %w", err)
	}
	return id, nil
}

// Update rewrites the most recent memory stored under topic.
func (s *Store) Update(ctx context.Context, topic, content string) error {
	tag, err := s.pool.Exec(ctx, sqlUpdateMemory, topic, content)
	if err != nil {
		return fmt.Errorf("memstore: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("memstore: no memory exists for topic %q", topic)
	}
	return nil
}

// Forget deletes all memories under topic and returns how many were removed.
func (s *Store) Forget(ctx context.Context, topic string) (int64, error) {
	tag, err := s.pool.Exec(ctx, sqlDeleteMemories, topic)
	if err != nil {
		return 0, fmt.Errorf("memstore: delete failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RegisterHandlers installs the four innate primitives into the dispatch
// registry, including param extraction from the raw request maps.
func (s *Store) RegisterHandlers(reg *dispatch.Registry) error {
	handlers := map[string]dispatch.HandlerFunc{
		taxonomy.ActionRecall: func(ctx context.Context, _ string, params map[string]any) (string, error) {
			topic, err := stringParam(params, "topic")
			if err != nil {
				return "", err
			}
			return s.Recall(ctx, topic)
		},
		taxonomy.ActionRemember: func(ctx context.Context, _ string, params map[string]any) (string, error) {
			topic, err := stringParam(params, "topic")
			if err != nil {
				return "", err
			}
			content, err := stringParam(params, "content")
			if err != nil {
				return "", err
			}
			id, err := s.Remember(ctx, topic, content)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Stored memory %s under topic %q.", id, topic), nil
		},
		taxonomy.ActionUpdateMemory: func(ctx context.Context, _ string, params map[string]any) (string, error) {
			topic, err := stringParam(params, "topic")
			if err != nil {
				return "", err
			}
			content, err := stringParam(params, "content")
			if err != nil {
				return "", err
			}
			if err := s.Update(ctx, topic, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Updated memory for topic %q.", topic), nil
		},
		taxonomy.ActionForget: func(ctx context.Context, _ string, params map[string]any) (string, error) {
			topic, err := stringParam(params, "topic")
			if err != nil {
				return "", err
			}
			n, err := s.Forget(ctx, topic)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Forgot %d memories for topic %q.", n, topic), nil
		},
	}
	for actionType, h := range handlers {
		if err := reg.RegisterHandler(actionType, h); err != nil {
			return err
		}
	}
	return nil
}

func stringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required param %q", key)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("param %q must be a non-empty string", key)
	}
	return s, nil
}
