package workflow

import (
	"fmt"
	"strings"
)

// Validation error codes (E100-E199)
const (
	// Rule errors (E101-E109)
	ErrRuleNameEmpty     = "E101" // rule name is required
	ErrInvalidEntityType = "E102" // unknown entity type
	ErrInvalidTrigger    = "E103" // unknown trigger type
	ErrRuleNoActions     = "E104" // at least one action required

	// Condition errors (E110-E119)
	ErrConditionFieldEmpty = "E110" // condition field is required
	ErrInvalidOperator     = "E111" // unknown operator
	ErrInvalidJoin         = "E112" // join must be AND or OR
	ErrListValueRequired   = "E113" // in_list/not_in_list need an array value

	// Action errors (E120-E129)
	ErrInvalidActionType  = "E120" // unknown action type
	ErrMissingActionParam = "E121" // required parameter absent
)

// ValidationError describes one structural problem in a rule definition.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// requiredParams maps each action type to the parameter keys it cannot
// run without. Optional keys (is_internal, escalation_level) are omitted.
var requiredParams = map[ActionType][]string{
	ActionSetField:         {"field"},
	ActionAssignToUser:     {"user_id"},
	ActionAssignToGroup:    {"group_id"},
	ActionChangeStatus:     {"status"},
	ActionChangePriority:   {"priority"},
	ActionAddComment:       {"comment"},
	ActionSendNotification: {"recipient_ids", "message"},
	ActionEscalate:         nil,
}

// Validate checks a rule for structural problems.
// Returns all errors found (does not fail-fast). A nil result means the
// rule is well-formed; it says nothing about whether it will ever match.
func (r *Rule) Validate() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "rule name is required and must be non-empty",
			Code:    ErrRuleNameEmpty,
		})
	}

	if !ValidEntityTypes[r.EntityType] {
		errs = append(errs, ValidationError{
			Field:   "entity_type",
			Message: fmt.Sprintf("unknown entity type %q", r.EntityType),
			Code:    ErrInvalidEntityType,
		})
	}

	if !ValidTriggerTypes[r.Trigger] {
		errs = append(errs, ValidationError{
			Field:   "trigger_type",
			Message: fmt.Sprintf("unknown trigger type %q", r.Trigger),
			Code:    ErrInvalidTrigger,
		})
	}

	if len(r.Actions) == 0 {
		errs = append(errs, ValidationError{
			Field:   "actions",
			Message: "at least one action is required",
			Code:    ErrRuleNoActions,
		})
	}

	for i, c := range r.Conditions {
		errs = append(errs, validateCondition(i, c)...)
	}

	for i, a := range r.Actions {
		errs = append(errs, validateAction(i, a)...)
	}

	return errs
}

func validateCondition(idx int, c Condition) []ValidationError {
	var errs []ValidationError
	field := fmt.Sprintf("conditions[%d]", idx)

	if strings.TrimSpace(c.Field) == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".field",
			Message: "condition field is required",
			Code:    ErrConditionFieldEmpty,
		})
	}

	if !ValidOperators[c.Operator] {
		errs = append(errs, ValidationError{
			Field:   field + ".operator",
			Message: fmt.Sprintf("unknown operator %q", c.Operator),
			Code:    ErrInvalidOperator,
		})
	}

	if c.Join != "" && c.Join != JoinAnd && c.Join != JoinOr {
		errs = append(errs, ValidationError{
			Field:   field + ".join",
			Message: fmt.Sprintf("join must be AND or OR, got %q", c.Join),
			Code:    ErrInvalidJoin,
		})
	}

	// The evaluator fails closed on a non-list value anyway, but a rule
	// author almost certainly made a mistake - flag it at validation time.
	if c.Operator == OpInList || c.Operator == OpNotInList {
		if _, ok := c.Value.(StringList); !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".value",
				Message: fmt.Sprintf("%s requires a string array value", c.Operator),
				Code:    ErrListValueRequired,
			})
		}
	}

	return errs
}

func validateAction(idx int, a Action) []ValidationError {
	var errs []ValidationError
	field := fmt.Sprintf("actions[%d]", idx)

	required, known := requiredParams[a.Type]
	if !known {
		errs = append(errs, ValidationError{
			Field:   field + ".type",
			Message: fmt.Sprintf("unknown action type %q", a.Type),
			Code:    ErrInvalidActionType,
		})
		return errs
	}

	for _, key := range required {
		if _, ok := a.Params[key]; !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.params.%s", field, key),
				Message: fmt.Sprintf("%s requires parameter %q", a.Type, key),
				Code:    ErrMissingActionParam,
			})
		}
	}

	return errs
}
