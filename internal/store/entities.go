package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// UpdateFields applies a set of field changes to an entity in one
// atomic write: the document is read, merged, and written back inside a
// single transaction. Actions that carry combined side effects (assign
// plus status promotion) depend on all changes landing together.
//
// An entity row is created on first write - the engine mirrors fields
// for entities whose primary records live in the main application
// store.
func (s *Store) UpdateFields(ctx context.Context, tenant string, entityType workflow.EntityType, entityID string, changes map[string]workflow.Value) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var fieldsJSON string
	err = tx.QueryRowContext(ctx, `
		SELECT fields FROM entities
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?
	`, tenant, string(entityType), entityID).Scan(&fieldsJSON)

	fields := workflow.Snapshot{}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First write for this entity.
	case err != nil:
		return fmt.Errorf("read entity %s/%s: %w", entityType, entityID, err)
	default:
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return fmt.Errorf("unmarshal entity %s/%s: %w", entityType, entityID, err)
		}
	}

	for k, v := range changes {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal entity %s/%s: %w", entityType, entityID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (tenant_id, entity_type, entity_id, fields, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, entity_type, entity_id) DO UPDATE SET
			fields = excluded.fields,
			updated_at = excluded.updated_at
	`, tenant, string(entityType), entityID, string(merged), s.timestamp())
	if err != nil {
		return fmt.Errorf("write entity %s/%s: %w", entityType, entityID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entity update: %w", err)
	}

	return nil
}

// GetEntity returns the stored field document for an entity.
// A missing entity yields an empty snapshot, not an error - reads are
// used for simulation output where absence is ordinary.
func (s *Store) GetEntity(ctx context.Context, tenant string, entityType workflow.EntityType, entityID string) (workflow.Snapshot, error) {
	var fieldsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT fields FROM entities
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?
	`, tenant, string(entityType), entityID).Scan(&fieldsJSON)

	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read entity %s/%s: %w", entityType, entityID, err)
	}

	var fields workflow.Snapshot
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal entity %s/%s: %w", entityType, entityID, err)
	}
	return fields, nil
}

// AddComment inserts a comment into the entity's comment stream.
func (s *Store) AddComment(ctx context.Context, tenant string, entityType workflow.EntityType, entityID string, body string, internal bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, tenant_id, entity_type, entity_id, body, is_internal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.Must(uuid.NewV7()).String(),
		tenant,
		string(entityType),
		entityID,
		body,
		boolToInt(internal),
		s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("insert comment for %s/%s: %w", entityType, entityID, err)
	}
	return nil
}

// Comment is one persisted comment row.
type Comment struct {
	ID         string
	EntityType workflow.EntityType
	EntityID   string
	Body       string
	Internal   bool
	CreatedAt  string
}

// ListComments returns an entity's comments in insertion order.
func (s *Store) ListComments(ctx context.Context, tenant string, entityType workflow.EntityType, entityID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, body, is_internal, created_at
		FROM comments
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, tenant, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		var entityTypeStr string
		var internal int
		if err := rows.Scan(&c.ID, &entityTypeStr, &c.EntityID, &c.Body, &internal, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.EntityType = workflow.EntityType(entityTypeStr)
		c.Internal = internal != 0
		comments = append(comments, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	if comments == nil {
		comments = []Comment{}
	}

	return comments, nil
}
