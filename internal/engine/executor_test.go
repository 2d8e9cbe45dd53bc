package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// fieldUpdate records one UpdateFields call against the fake store.
type fieldUpdate struct {
	EntityType workflow.EntityType
	EntityID   string
	Changes    map[string]workflow.Value
}

// commentInsert records one AddComment call against the fake store.
type commentInsert struct {
	EntityID string
	Body     string
	Internal bool
}

// fakeEntityStore records entity writes and can be programmed to fail.
type fakeEntityStore struct {
	updates  []fieldUpdate
	comments []commentInsert

	failUpdates  error
	failComments error
	panicOnWrite bool
}

func (f *fakeEntityStore) UpdateFields(_ context.Context, _ string, entityType workflow.EntityType, entityID string, changes map[string]workflow.Value) error {
	if f.panicOnWrite {
		panic("storage gone away")
	}
	if f.failUpdates != nil {
		return f.failUpdates
	}
	f.updates = append(f.updates, fieldUpdate{EntityType: entityType, EntityID: entityID, Changes: changes})
	return nil
}

func (f *fakeEntityStore) AddComment(_ context.Context, _ string, _ workflow.EntityType, entityID string, body string, internal bool) error {
	if f.failComments != nil {
		return f.failComments
	}
	f.comments = append(f.comments, commentInsert{EntityID: entityID, Body: body, Internal: internal})
	return nil
}

// enqueuedJob records one Enqueue call against the fake notifier.
type enqueuedJob struct {
	JobType string
	Payload workflow.Params
}

// fakeNotifier records enqueued jobs and can fail specific recipients.
type fakeNotifier struct {
	jobs           []enqueuedJob
	failRecipients map[string]error
}

func (f *fakeNotifier) Enqueue(jobType string, payload workflow.Params) error {
	if err, ok := f.failRecipients[payload.GetString("recipient_id")]; ok {
		return err
	}
	f.jobs = append(f.jobs, enqueuedJob{JobType: jobType, Payload: payload})
	return nil
}

func newTestExecutor() (*Executor, *fakeEntityStore, *fakeNotifier) {
	entities := &fakeEntityStore{}
	notifier := &fakeNotifier{}
	return NewExecutor(entities, notifier), entities, notifier
}

func TestExecutor_SetField(t *testing.T) {
	x, entities, _ := newTestExecutor()

	action := workflow.Action{
		Type: workflow.ActionSetField,
		Params: workflow.Params{
			"field": workflow.String("impact"),
			"value": workflow.String("major"),
		},
	}

	err := x.Execute(context.Background(), "acme", action, workflow.EntityIssue, "ISS-1", workflow.Snapshot{})
	require.NoError(t, err)

	require.Len(t, entities.updates, 1)
	assert.Equal(t, "ISS-1", entities.updates[0].EntityID)
	assert.Equal(t, map[string]workflow.Value{"impact": workflow.String("major")}, entities.updates[0].Changes)
}

func TestExecutor_SetField_MissingFieldParam(t *testing.T) {
	x, entities, _ := newTestExecutor()

	action := workflow.Action{Type: workflow.ActionSetField, Params: workflow.Params{}}

	err := x.Execute(context.Background(), "acme", action, workflow.EntityIssue, "ISS-1", workflow.Snapshot{})
	assert.Error(t, err)
	assert.Empty(t, entities.updates)
}

func TestExecutor_AssignToUser_PromotesNewStatus(t *testing.T) {
	x, entities, _ := newTestExecutor()

	action := workflow.Action{
		Type:   workflow.ActionAssignToUser,
		Params: workflow.Params{"user_id": workflow.String("u1")},
	}

	snap := workflow.Snapshot{"status": workflow.String("new")}
	err := x.Execute(context.Background(), "acme", action, workflow.EntityIssue, "ISS-1", snap)
	require.NoError(t, err)

	// One atomic write carrying both the assignee and the promotion.
	require.Len(t, entities.updates, 1)
	assert.Equal(t, map[string]workflow.Value{
		"assignee": workflow.String("u1"),
		"status":   workflow.String("assigned"),
	}, entities.updates[0].Changes)
}

func TestExecutor_AssignToUser_LeavesNonNewStatus(t *testing.T) {
	x, entities, _ := newTestExecutor()

	action := workflow.Action{
		Type:   workflow.ActionAssignToUser,
		Params: workflow.Params{"user_id": workflow.String("u1")},
	}

	snap := workflow.Snapshot{"status": workflow.String("in_progress")}
	err := x.Execute(context.Background(), "acme", action, workflow.EntityIssue, "ISS-1", snap)
	require.NoError(t, err)

	require.Len(t, entities.updates, 1)
	assert.Equal(t, map[string]workflow.Value{
		"assignee": workflow.String("u1"),
	}, entities.updates[0].Changes)
}

func TestExecutor_AssignToGroup(t *testing.T) {
	x, entities, _ := newTestExecutor()

	action := workflow.Action{
		Type:   workflow.ActionAssignToGroup,
		Params: workflow.Params{"group_id": workflow.String("sev1-response")},
	}

	err := x.Execute(context.Background(), "acme", action, workflow.EntityProblem, "PRB-9", workflow.Snapshot{})
	require.NoError(t, err)

	require.Len(t, entities.updates, 1)
	assert.Equal(t, map[string]workflow.Value{
		"assigned_group": workflow.String("sev1-response"),
	}, entities.updates[0].Changes)
}

func TestExecutor_ChangeStatusAndPriority(t *testing.T) {
	x, entities, _ := newTestExecutor()
	ctx := context.Background()

	statusAction := workflow.Action{
		Type:   workflow.ActionChangeStatus,
		Params: workflow.Params{"status": workflow.String("resolved")},
	}
	require.NoError(t, x.Execute(ctx, "acme", statusAction, workflow.EntityIssue, "ISS-1", workflow.Snapshot{}))

	priorityAction := workflow.Action{
		Type:   workflow.ActionChangePriority,
		Params: workflow.Params{"priority": workflow.String("critical")},
	}
	require.NoError(t, x.Execute(ctx, "acme", priorityAction, workflow.EntityIssue, "ISS-1", workflow.Snapshot{}))

	require.Len(t, entities.updates, 2)
	assert.Equal(t, map[string]workflow.Value{"status": workflow.String("resolved")}, entities.updates[0].Changes)
	assert.Equal(t, map[string]workflow.Value{"priority": workflow.String("critical")}, entities.updates[1].Changes)
}

func TestExecutor_AddComment_DefaultsInternal(t *testing.T) {
	x, entities, _ := newTestExecutor()

	action := workflow.Action{
		Type:   workflow.ActionAddComment,
		Params: workflow.Params{"comment": workflow.String("auto-triaged")},
	}

	err := x.Execute(context.Background(), "acme", action, workflow.EntityRequest, "REQ-4", workflow.Snapshot{})
	require.NoError(t, err)

	require.Len(t, entities.comments, 1)
	assert.Equal(t, "auto-triaged", entities.comments[0].Body)
	assert.True(t, entities.comments[0].Internal, "comments default to internal visibility")
}

func TestExecutor_AddComment_ExplicitPublic(t *testing.T) {
	x, entities, _ := newTestExecutor()

	action := workflow.Action{
		Type: workflow.ActionAddComment,
		Params: workflow.Params{
			"comment":     workflow.String("we are on it"),
			"is_internal": workflow.Bool(false),
		},
	}

	err := x.Execute(context.Background(), "acme", action, workflow.EntityIssue, "ISS-1", workflow.Snapshot{})
	require.NoError(t, err)

	require.Len(t, entities.comments, 1)
	assert.False(t, entities.comments[0].Internal)
}

func TestExecutor_SendNotification_FanOut(t *testing.T) {
	x, _, notifier := newTestExecutor()

	action := workflow.Action{
		Type: workflow.ActionSendNotification,
		Params: workflow.Params{
			"recipient_ids": workflow.StringList{"u1", "u2", "u3"},
			"message":       workflow.String("SLA breach imminent"),
		},
	}

	err := x.Execute(context.Background(), "acme", action, workflow.EntityIssue, "ISS-1", workflow.Snapshot{})
	require.NoError(t, err)

	require.Len(t, notifier.jobs, 3)
	for i, recipient := range []string{"u1", "u2", "u3"} {
		assert.Equal(t, JobTypeNotification, notifier.jobs[i].JobType)
		assert.Equal(t, recipient, notifier.jobs[i].Payload.GetString("recipient_id"))
		assert.Equal(t, "SLA breach imminent", notifier.jobs[i].Payload.GetString("message"))
		assert.Equal(t, "ISS-1", notifier.jobs[i].Payload.GetString("entity_id"))
	}
}

func TestExecutor_SendNotification_OneFailureDoesNotBlockOthers(t *testing.T) {
	x, _, notifier := newTestExecutor()
	notifier.failRecipients = map[string]error{"u2": errors.New("queue full")}

	action := workflow.Action{
		Type: workflow.ActionSendNotification,
		Params: workflow.Params{
			"recipient_ids": workflow.StringList{"u1", "u2", "u3"},
			"message":       workflow.String("hello"),
		},
	}

	err := x.Execute(context.Background(), "acme", action, workflow.EntityIssue, "ISS-1", workflow.Snapshot{})
	assert.Error(t, err, "the action reports the enqueue failure")

	// u1 and u3 were still enqueued.
	require.Len(t, notifier.jobs, 2)
	assert.Equal(t, "u1", notifier.jobs[0].Payload.GetString("recipient_id"))
	assert.Equal(t, "u3", notifier.jobs[1].Payload.GetString("recipient_id"))
}

func TestExecutor_SendNotification_MalformedRecipients(t *testing.T) {
	x, _, notifier := newTestExecutor()

	action := workflow.Action{
		Type: workflow.ActionSendNotification,
		Params: workflow.Params{
			"recipient_ids": workflow.String("u1"),
			"message":       workflow.String("hello"),
		},
	}

	err := x.Execute(context.Background(), "acme", action, workflow.EntityIssue, "ISS-1", workflow.Snapshot{})
	assert.Error(t, err)
	assert.Empty(t, notifier.jobs)
}

func TestExecutor_Escalate_NoStateMutation(t *testing.T) {
	x, entities, notifier := newTestExecutor()

	action := workflow.Action{
		Type:   workflow.ActionEscalate,
		Params: workflow.Params{"escalation_level": workflow.String("2")},
	}

	err := x.Execute(context.Background(), "acme", action, workflow.EntityIssue, "ISS-1", workflow.Snapshot{})
	require.NoError(t, err)
	assert.Empty(t, entities.updates)
	assert.Empty(t, entities.comments)
	assert.Empty(t, notifier.jobs)
}

func TestExecutor_UnknownActionType(t *testing.T) {
	x, entities, _ := newTestExecutor()

	action := workflow.Action{Type: workflow.ActionType("launch_rocket")}

	err := x.Execute(context.Background(), "acme", action, workflow.EntityIssue, "ISS-1", workflow.Snapshot{})
	require.Error(t, err)
	assert.True(t, IsUnknownAction(err))
	assert.Equal(t, "unknown action type: launch_rocket", err.Error())
	assert.Empty(t, entities.updates)
}

func TestExecutor_StorageErrorIsReturnedNotPropagated(t *testing.T) {
	x, entities, _ := newTestExecutor()
	entities.failUpdates = fmt.Errorf("disk full")

	action := workflow.Action{
		Type:   workflow.ActionChangeStatus,
		Params: workflow.Params{"status": workflow.String("closed")},
	}

	err := x.Execute(context.Background(), "acme", action, workflow.EntityIssue, "ISS-1", workflow.Snapshot{})
	assert.ErrorContains(t, err, "disk full")
}

func TestExecutor_CollaboratorPanicBecomesFailure(t *testing.T) {
	x, entities, _ := newTestExecutor()
	entities.panicOnWrite = true

	action := workflow.Action{
		Type:   workflow.ActionChangeStatus,
		Params: workflow.Params{"status": workflow.String("closed")},
	}

	err := x.Execute(context.Background(), "acme", action, workflow.EntityIssue, "ISS-1", workflow.Snapshot{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic during change_status")
}
