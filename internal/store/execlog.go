package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// RecordExecution persists one execution-log entry.
//
// The engine treats this as best-effort, but the store itself reports
// failures normally - swallowing is the engine's policy, not ours.
func (s *Store) RecordExecution(ctx context.Context, entry workflow.ExecutionEntry) error {
	actionsJSON, err := json.Marshal(entry.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_logs
		(id, tenant_id, rule_id, rule_name, entity_type, entity_id, trigger_type,
		 conditions_matched, actions, duration_us, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.TenantID,
		entry.RuleID,
		entry.RuleName,
		string(entry.EntityType),
		entry.EntityID,
		string(entry.Trigger),
		boolToInt(entry.ConditionsMatched),
		string(actionsJSON),
		entry.Duration.Microseconds(),
		entry.Error,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert execution log %s: %w", entry.ID, err)
	}

	return nil
}

// ListExecutions returns the execution history for one entity, oldest
// first. Used by the trace command.
func (s *Store) ListExecutions(ctx context.Context, tenant string, entityType workflow.EntityType, entityID string) ([]workflow.ExecutionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, rule_id, rule_name, entity_type, entity_id, trigger_type,
		       conditions_matched, actions, duration_us, error, created_at
		FROM execution_logs
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, tenant, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("query execution logs: %w", err)
	}
	defer rows.Close()

	var entries []workflow.ExecutionEntry
	for rows.Next() {
		var entry workflow.ExecutionEntry
		var entityTypeStr, triggerStr, actionsJSON, createdAt string
		var matched int
		var durationUS int64

		if err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.RuleID, &entry.RuleName,
			&entityTypeStr, &entry.EntityID, &triggerStr,
			&matched, &actionsJSON, &durationUS, &entry.Error, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}

		entry.EntityType = workflow.EntityType(entityTypeStr)
		entry.Trigger = workflow.TriggerType(triggerStr)
		entry.ConditionsMatched = matched != 0
		entry.Duration = time.Duration(durationUS) * time.Microsecond

		if err := json.Unmarshal([]byte(actionsJSON), &entry.Actions); err != nil {
			return nil, fmt.Errorf("unmarshal actions for log %s: %w", entry.ID, err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			entry.CreatedAt = t
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution logs: %w", err)
	}

	if entries == nil {
		entries = []workflow.ExecutionEntry{}
	}

	return entries, nil
}
