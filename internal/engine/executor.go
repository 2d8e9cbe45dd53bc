package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// Executor dispatches one action by kind, delegating the actual write
// to the entity store or notification queue.
//
// Execute never propagates collaborator failures: every error (and any
// collaborator panic) is converted into a per-action failure that the
// engine aggregates into ExecutionResult.Errors. A failing action must
// not block its siblings.
type Executor struct {
	entities EntityStore
	notifier Notifier
}

// NewExecutor creates an Executor over the given collaborators.
func NewExecutor(entities EntityStore, notifier Notifier) *Executor {
	return &Executor{
		entities: entities,
		notifier: notifier,
	}
}

// Execute performs one action against an entity. A nil return means the
// action's side effect was committed (or, for notifications, enqueued).
func (x *Executor) Execute(ctx context.Context, tenant string, action workflow.Action, entityType workflow.EntityType, entityID string, snap workflow.Snapshot) (err error) {
	// A panicking collaborator becomes an action failure, never an
	// engine crash.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", action.Type, r)
		}
	}()

	switch action.Type {
	case workflow.ActionSetField:
		return x.setField(ctx, tenant, action.Params, entityType, entityID)

	case workflow.ActionAssignToUser:
		return x.assignToUser(ctx, tenant, action.Params, entityType, entityID, snap)

	case workflow.ActionAssignToGroup:
		return x.updateOne(ctx, tenant, entityType, entityID, "assigned_group", workflow.String(action.Params.GetString("group_id")))

	case workflow.ActionChangeStatus:
		return x.updateOne(ctx, tenant, entityType, entityID, "status", action.Params.Get("status"))

	case workflow.ActionChangePriority:
		return x.updateOne(ctx, tenant, entityType, entityID, "priority", action.Params.Get("priority"))

	case workflow.ActionAddComment:
		return x.addComment(ctx, tenant, action.Params, entityType, entityID)

	case workflow.ActionSendNotification:
		return x.sendNotification(tenant, action.Params, entityType, entityID)

	case workflow.ActionEscalate:
		// No state mutation - escalation is a structured log record that
		// downstream tooling picks up.
		slog.Info("entity escalated",
			"tenant", tenant,
			"entity_type", entityType,
			"entity_id", entityID,
			"escalation_level", action.Params.GetString("escalation_level"),
		)
		return nil

	default:
		slog.Warn("unknown action type",
			"tenant", tenant,
			"action_type", action.Type,
			"entity_type", entityType,
			"entity_id", entityID,
		)
		return &UnknownActionError{Type: action.Type}
	}
}

// setField writes params.field = params.value on the entity.
func (x *Executor) setField(ctx context.Context, tenant string, params workflow.Params, entityType workflow.EntityType, entityID string) error {
	field := params.GetString("field")
	if field == "" {
		return fmt.Errorf("set_field: missing field parameter")
	}
	return x.updateOne(ctx, tenant, entityType, entityID, field, params.Get("value"))
}

// assignToUser sets the assignee and, when the entity is still new,
// promotes its status to assigned in the same write. One atomic update,
// not two.
func (x *Executor) assignToUser(ctx context.Context, tenant string, params workflow.Params, entityType workflow.EntityType, entityID string, snap workflow.Snapshot) error {
	userID := params.GetString("user_id")
	if userID == "" {
		return fmt.Errorf("assign_to_user: missing user_id parameter")
	}

	changes := map[string]workflow.Value{
		"assignee": workflow.String(userID),
	}
	if status, ok := workflow.AsString(snap.Get("status")); ok && status == "new" {
		changes["status"] = workflow.String("assigned")
	}

	return x.entities.UpdateFields(ctx, tenant, entityType, entityID, changes)
}

// addComment inserts a comment into the entity's comment store.
// Comments default to internal visibility unless is_internal is an
// explicit false.
func (x *Executor) addComment(ctx context.Context, tenant string, params workflow.Params, entityType workflow.EntityType, entityID string) error {
	body := params.GetString("comment")
	internal, ok := params.GetBool("is_internal")
	if !ok {
		internal = true
	}
	return x.entities.AddComment(ctx, tenant, entityType, entityID, body, internal)
}

// sendNotification enqueues one independent job per recipient.
//
// Fan-out, not fan-in: a failed enqueue for one recipient does not
// affect the others, and nothing awaits delivery beyond enqueue
// acknowledgment. The first enqueue failure is reported after every
// recipient has been attempted.
func (x *Executor) sendNotification(tenant string, params workflow.Params, entityType workflow.EntityType, entityID string) error {
	recipients := params.GetStringList("recipient_ids")
	if recipients == nil {
		return fmt.Errorf("send_notification: recipient_ids must be a string array")
	}

	message := params.GetString("message")

	var firstErr error
	for _, recipient := range recipients {
		payload := workflow.Params{
			"recipient_id": workflow.String(recipient),
			"message":      workflow.String(message),
			"tenant_id":    workflow.String(tenant),
			"entity_type":  workflow.String(string(entityType)),
			"entity_id":    workflow.String(entityID),
		}
		if err := x.notifier.Enqueue(JobTypeNotification, payload); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("enqueue notification for %s: %w", recipient, err)
		}
	}
	return firstErr
}

// updateOne applies a single-field change through the entity store.
func (x *Executor) updateOne(ctx context.Context, tenant string, entityType workflow.EntityType, entityID string, field string, value workflow.Value) error {
	return x.entities.UpdateFields(ctx, tenant, entityType, entityID, map[string]workflow.Value{
		field: value,
	})
}

// JobTypeNotification is the queue job type for workflow notifications.
const JobTypeNotification = "workflow_notification"
