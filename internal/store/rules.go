package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// ErrRuleNotFound is returned when a rule lookup misses.
var ErrRuleNotFound = errors.New("workflow rule not found")

// ListActiveRules returns the active rules for one engine invocation
// scope, ordered ascending by execution_order. The engine relies on
// this ordering; ties break on rule id for determinism.
func (s *Store) ListActiveRules(ctx context.Context, tenant string, entityType workflow.EntityType, trigger workflow.TriggerType) ([]workflow.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, entity_type, trigger_type, is_active,
		       execution_order, stop_on_match, conditions, actions
		FROM workflow_rules
		WHERE tenant_id = ? AND entity_type = ? AND trigger_type = ? AND is_active = 1
		ORDER BY execution_order ASC, id COLLATE BINARY ASC
	`, tenant, string(entityType), string(trigger))
	if err != nil {
		return nil, fmt.Errorf("query active rules: %w", err)
	}
	defer rows.Close()

	var rules []workflow.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}

	if rules == nil {
		rules = []workflow.Rule{}
	}

	return rules, nil
}

// ListRules returns every rule for a tenant regardless of activation,
// ordered by entity type then execution order. Used by the CLI.
func (s *Store) ListRules(ctx context.Context, tenant string) ([]workflow.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, entity_type, trigger_type, is_active,
		       execution_order, stop_on_match, conditions, actions
		FROM workflow_rules
		WHERE tenant_id = ?
		ORDER BY entity_type ASC, execution_order ASC, id COLLATE BINARY ASC
	`, tenant)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []workflow.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}

	if rules == nil {
		rules = []workflow.Rule{}
	}

	return rules, nil
}

// GetRule retrieves a single rule by id.
// Returns ErrRuleNotFound if it does not exist.
func (s *Store) GetRule(ctx context.Context, id string) (workflow.Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, entity_type, trigger_type, is_active,
		       execution_order, stop_on_match, conditions, actions
		FROM workflow_rules
		WHERE id = ?
	`, id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Rule{}, ErrRuleNotFound
	}
	return rule, err
}

// SaveRule inserts or replaces a rule. Conditions and actions are
// serialized as JSON documents; the engine deserializes them back on
// every (uncached) list.
//
// Callers holding a RuleCache must invalidate it after a save.
func (s *Store) SaveRule(ctx context.Context, rule workflow.Rule) error {
	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_rules
		(id, tenant_id, name, entity_type, trigger_type, is_active,
		 execution_order, stop_on_match, conditions, actions, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			name = excluded.name,
			entity_type = excluded.entity_type,
			trigger_type = excluded.trigger_type,
			is_active = excluded.is_active,
			execution_order = excluded.execution_order,
			stop_on_match = excluded.stop_on_match,
			conditions = excluded.conditions,
			actions = excluded.actions,
			updated_at = excluded.updated_at
	`,
		rule.ID,
		rule.TenantID,
		rule.Name,
		string(rule.EntityType),
		string(rule.Trigger),
		boolToInt(rule.IsActive),
		rule.ExecutionOrder,
		boolToInt(rule.StopOnMatch),
		string(conditionsJSON),
		string(actionsJSON),
		s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("save rule %s: %w", rule.ID, err)
	}

	return nil
}

// DeleteRule removes a rule by id. Deleting a missing rule is not an
// error. Callers holding a RuleCache must invalidate it after a delete.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workflow_rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	return nil
}

// SetRuleActive toggles a rule's activation flag.
// Returns ErrRuleNotFound if the rule does not exist.
func (s *Store) SetRuleActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_rules SET is_active = ?, updated_at = ? WHERE id = ?
	`, boolToInt(active), s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("set rule %s active=%t: %w", id, active, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set rule %s active: rows affected: %w", id, err)
	}
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRule scans a workflow_rules row into a Rule.
func scanRule(row rowScanner) (workflow.Rule, error) {
	var rule workflow.Rule
	var entityType, trigger string
	var isActive, stopOnMatch int
	var conditionsJSON, actionsJSON string

	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &entityType, &trigger,
		&isActive, &rule.ExecutionOrder, &stopOnMatch,
		&conditionsJSON, &actionsJSON,
	); err != nil {
		return workflow.Rule{}, err
	}

	rule.EntityType = workflow.EntityType(entityType)
	rule.Trigger = workflow.TriggerType(trigger)
	rule.IsActive = isActive != 0
	rule.StopOnMatch = stopOnMatch != 0

	if err := json.Unmarshal([]byte(conditionsJSON), &rule.Conditions); err != nil {
		return workflow.Rule{}, fmt.Errorf("unmarshal conditions for rule %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal([]byte(actionsJSON), &rule.Actions); err != nil {
		return workflow.Rule{}, fmt.Errorf("unmarshal actions for rule %s: %w", rule.ID, err)
	}

	return rule, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
