package workflow

import (
	"encoding/json"
	"fmt"
)

// EntityType identifies the kind of ITSM record a rule applies to.
type EntityType string

const (
	EntityIssue   EntityType = "issue"
	EntityProblem EntityType = "problem"
	EntityChange  EntityType = "change"
	EntityRequest EntityType = "request"
)

// ValidEntityTypes defines the allowed entity types.
var ValidEntityTypes = map[EntityType]bool{
	EntityIssue:   true,
	EntityProblem: true,
	EntityChange:  true,
	EntityRequest: true,
}

// TriggerType identifies the lifecycle event that invokes the engine.
//
// TriggerScheduled is accepted in rule definitions but nothing in this
// repo fires it - time-based scheduling is out of scope.
type TriggerType string

const (
	TriggerOnCreate       TriggerType = "on_create"
	TriggerOnUpdate       TriggerType = "on_update"
	TriggerOnStatusChange TriggerType = "on_status_change"
	TriggerOnAssignment   TriggerType = "on_assignment"
	TriggerScheduled      TriggerType = "scheduled"
)

// ValidTriggerTypes defines the allowed trigger types.
var ValidTriggerTypes = map[TriggerType]bool{
	TriggerOnCreate:       true,
	TriggerOnUpdate:       true,
	TriggerOnStatusChange: true,
	TriggerOnAssignment:   true,
	TriggerScheduled:      true,
}

// Operator identifies one of the twelve condition comparison operators.
// Unrecognized operators never match (fail-safe deny in the evaluator).
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
	OpInList      Operator = "in_list"
	OpNotInList   Operator = "not_in_list"
)

// ValidOperators defines the allowed condition operators.
var ValidOperators = map[Operator]bool{
	OpEquals:      true,
	OpNotEquals:   true,
	OpContains:    true,
	OpNotContains: true,
	OpStartsWith:  true,
	OpEndsWith:    true,
	OpGreaterThan: true,
	OpLessThan:    true,
	OpIsEmpty:     true,
	OpIsNotEmpty:  true,
	OpInList:      true,
	OpNotInList:   true,
}

// LogicalOp joins a condition with the one before it in the rule's
// condition list. The first condition's join is irrelevant.
type LogicalOp string

const (
	JoinAnd LogicalOp = "AND"
	JoinOr  LogicalOp = "OR"
)

// ActionType identifies one of the eight side-effecting action kinds.
type ActionType string

const (
	ActionSetField         ActionType = "set_field"
	ActionAssignToUser     ActionType = "assign_to_user"
	ActionAssignToGroup    ActionType = "assign_to_group"
	ActionChangeStatus     ActionType = "change_status"
	ActionChangePriority   ActionType = "change_priority"
	ActionAddComment       ActionType = "add_comment"
	ActionSendNotification ActionType = "send_notification"
	ActionEscalate         ActionType = "escalate"
)

// ValidActionTypes defines the allowed action types.
var ValidActionTypes = map[ActionType]bool{
	ActionSetField:         true,
	ActionAssignToUser:     true,
	ActionAssignToGroup:    true,
	ActionChangeStatus:     true,
	ActionChangePriority:   true,
	ActionAddComment:       true,
	ActionSendNotification: true,
	ActionEscalate:         true,
}

// Rule is a tenant-configured workflow rule: an ordered condition set
// plus an ordered action list, scoped to one entity type and trigger.
// Rules are read-only to the execution engine; CRUD lives in the store.
type Rule struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenant_id"`
	Name       string      `json:"name"`
	EntityType EntityType  `json:"entity_type"`
	Trigger    TriggerType `json:"trigger_type"`
	IsActive   bool        `json:"is_active"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`

	// ExecutionOrder orders rules globally within one (tenant, entity type,
	// trigger) scope. Lower values run first.
	ExecutionOrder int `json:"execution_order"`

	// StopOnMatch halts evaluation of lower-priority rules once this rule
	// matches. It never affects the actions of the rule itself.
	StopOnMatch bool `json:"stop_on_match"`
}

// Condition compares one snapshot field against a configured value.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`

	// Value is the comparison operand. Scalar for most operators, a
	// StringList for in_list/not_in_list, unused for is_empty/is_not_empty.
	Value Value `json:"value"`

	// Join connects this condition with the previous one. Defaults to AND
	// when empty.
	Join LogicalOp `json:"join,omitempty"`
}

// Action is one side-effecting operation performed when a rule matches.
type Action struct {
	Type   ActionType `json:"type"`
	Params Params     `json:"params"`

	// Order positions the action within its rule. Lower values run first.
	Order int `json:"order"`
}

// Params carries action parameters as a flat field document, constrained
// to the same Value variants as snapshots.
type Params map[string]Value

// GetString returns the string parameter for key, or "" if absent or
// not a string.
func (p Params) GetString(key string) string {
	s, _ := AsString(p.get(key))
	return s
}

// GetStringList returns the string-list parameter for key, or nil.
func (p Params) GetStringList(key string) StringList {
	list, _ := p.get(key).(StringList)
	return list
}

// GetBool returns the bool parameter for key and whether it was present
// as a bool.
func (p Params) GetBool(key string) (bool, bool) {
	b, ok := p.get(key).(Bool)
	return bool(b), ok
}

// Get returns the parameter value for key, Null if absent.
func (p Params) Get(key string) Value {
	return p.get(key)
}

func (p Params) get(key string) Value {
	if v, ok := p[key]; ok && v != nil {
		return v
	}
	return Null{}
}

// MarshalJSON implements json.Marshaler for Params.
func (p Params) MarshalJSON() ([]byte, error) {
	return Snapshot(p).MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler for Params.
func (p *Params) UnmarshalJSON(data []byte) error {
	var snap Snapshot
	if err := snap.UnmarshalJSON(data); err != nil {
		return err
	}
	*p = Params(snap)
	return nil
}

// conditionJSON mirrors Condition with a raw value payload, so the
// interface-typed Value field round-trips through encoding/json.
type conditionJSON struct {
	Field    string          `json:"field"`
	Operator Operator        `json:"operator"`
	Value    json.RawMessage `json:"value,omitempty"`
	Join     LogicalOp       `json:"join,omitempty"`
}

// MarshalJSON implements json.Marshaler for Condition.
func (c Condition) MarshalJSON() ([]byte, error) {
	raw := conditionJSON{
		Field:    c.Field,
		Operator: c.Operator,
		Join:     c.Join,
	}
	if c.Value != nil {
		b, err := MarshalValue(c.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal condition value: %w", err)
		}
		raw.Value = b
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler for Condition.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw conditionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Field = raw.Field
	c.Operator = raw.Operator
	c.Join = raw.Join
	c.Value = Null{}

	if len(raw.Value) > 0 {
		val, err := UnmarshalValue(raw.Value)
		if err != nil {
			return fmt.Errorf("condition value: %w", err)
		}
		c.Value = val
	}
	return nil
}
