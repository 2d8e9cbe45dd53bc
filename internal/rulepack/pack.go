package rulepack

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// Pack is a compiled rule pack: one tenant plus its rules, in source
// order.
type Pack struct {
	Tenant string          `json:"tenant"`
	Rules  []workflow.Rule `json:"rules"`
}

// CompileFile reads and compiles a CUE rule pack from disk.
func CompileFile(path string) (*Pack, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule pack: %w", err)
	}
	return CompileSource(path, string(src))
}

// CompileSource compiles a CUE rule pack from a source string. The
// filename is used for error positions only.
func CompileSource(filename, src string) (*Pack, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return CompilePack(v)
}

// CompilePack parses a CUE value into a Pack.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the pack root, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`tenant: "acme", rule: "r1": { ... }`)
//	pack, err := CompilePack(v)
func CompilePack(v cue.Value) (*Pack, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	pack := &Pack{}

	tenantVal := v.LookupPath(cue.ParsePath("tenant"))
	if !tenantVal.Exists() {
		return nil, &CompileError{
			Field:   "tenant",
			Message: "tenant is required",
			Pos:     v.Pos(),
		}
	}
	tenant, err := tenantVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	pack.Tenant = tenant

	rulesVal := v.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return nil, &CompileError{
			Field:   "rule",
			Message: "at least one rule is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		rule, err := compileRule(iter.Value())
		if err != nil {
			return nil, err
		}
		rule.TenantID = tenant
		pack.Rules = append(pack.Rules, rule)
	}

	if len(pack.Rules) == 0 {
		return nil, &CompileError{
			Field:   "rule",
			Message: "at least one rule is required",
			Pos:     rulesVal.Pos(),
		}
	}

	return pack, nil
}

// compileRule parses one rule struct. The rule ID comes from the
// struct label, e.g. `rule: "vip-escalation": { ... }`.
func compileRule(v cue.Value) (workflow.Rule, error) {
	rule := workflow.Rule{IsActive: true}

	// The ID may be quoted in CUE, extract it
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		rule.ID = strings.Trim(labels[len(labels)-1].String(), `"`)
	}
	rule.Name = rule.ID

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return rule, formatCUEError(err)
		}
		rule.Name = name
	}

	entityVal := v.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return rule, &CompileError{
			Field:   fmt.Sprintf("rule.%s.entity", rule.ID),
			Message: "entity is required",
			Pos:     v.Pos(),
		}
	}
	entity, err := entityVal.String()
	if err != nil {
		return rule, formatCUEError(err)
	}
	rule.EntityType = workflow.EntityType(entity)

	triggerVal := v.LookupPath(cue.ParsePath("trigger"))
	if !triggerVal.Exists() {
		return rule, &CompileError{
			Field:   fmt.Sprintf("rule.%s.trigger", rule.ID),
			Message: "trigger is required",
			Pos:     v.Pos(),
		}
	}
	trigger, err := triggerVal.String()
	if err != nil {
		return rule, formatCUEError(err)
	}
	rule.Trigger = workflow.TriggerType(trigger)

	orderVal := v.LookupPath(cue.ParsePath("order"))
	if orderVal.Exists() {
		order, err := orderVal.Int64()
		if err != nil {
			return rule, &CompileError{
				Field:   fmt.Sprintf("rule.%s.order", rule.ID),
				Message: "order must be an integer",
				Pos:     orderVal.Pos(),
			}
		}
		rule.ExecutionOrder = int(order)
	}

	activeVal := v.LookupPath(cue.ParsePath("active"))
	if activeVal.Exists() {
		active, err := activeVal.Bool()
		if err != nil {
			return rule, &CompileError{
				Field:   fmt.Sprintf("rule.%s.active", rule.ID),
				Message: "active must be a bool",
				Pos:     activeVal.Pos(),
			}
		}
		rule.IsActive = active
	}

	stopVal := v.LookupPath(cue.ParsePath("stop_on_match"))
	if stopVal.Exists() {
		stop, err := stopVal.Bool()
		if err != nil {
			return rule, &CompileError{
				Field:   fmt.Sprintf("rule.%s.stop_on_match", rule.ID),
				Message: "stop_on_match must be a bool",
				Pos:     stopVal.Pos(),
			}
		}
		rule.StopOnMatch = stop
	}

	// when is optional: a rule with no conditions matches every
	// triggering event.
	whenVal := v.LookupPath(cue.ParsePath("when"))
	if whenVal.Exists() {
		rule.Conditions, err = compileConditions(rule.ID, whenVal)
		if err != nil {
			return rule, err
		}
	}

	thenVal := v.LookupPath(cue.ParsePath("then"))
	if !thenVal.Exists() {
		return rule, &CompileError{
			Field:   fmt.Sprintf("rule.%s.then", rule.ID),
			Message: "then clause is required",
			Pos:     v.Pos(),
		}
	}
	rule.Actions, err = compileActions(rule.ID, thenVal)
	if err != nil {
		return rule, err
	}

	return rule, nil
}

// compileConditions parses the when list into conditions.
func compileConditions(ruleID string, v cue.Value) ([]workflow.Condition, error) {
	var conds []workflow.Condition

	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.when", ruleID),
			Message: "when must be a list of conditions",
			Pos:     v.Pos(),
		}
	}

	for i := 0; iter.Next(); i++ {
		cond, err := compileCondition(fmt.Sprintf("rule.%s.when[%d]", ruleID, i), iter.Value())
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}

	return conds, nil
}

func compileCondition(field string, v cue.Value) (workflow.Condition, error) {
	cond := workflow.Condition{Join: workflow.JoinAnd}

	fieldVal := v.LookupPath(cue.ParsePath("field"))
	if !fieldVal.Exists() {
		return cond, &CompileError{
			Field:   field,
			Message: "condition requires 'field'",
			Pos:     v.Pos(),
		}
	}
	name, err := fieldVal.String()
	if err != nil {
		return cond, formatCUEError(err)
	}
	cond.Field = name

	opVal := v.LookupPath(cue.ParsePath("op"))
	if !opVal.Exists() {
		return cond, &CompileError{
			Field:   field,
			Message: "condition requires 'op'",
			Pos:     v.Pos(),
		}
	}
	op, err := opVal.String()
	if err != nil {
		return cond, formatCUEError(err)
	}
	cond.Operator = workflow.Operator(op)

	// value is optional for is_empty / is_not_empty.
	valueVal := v.LookupPath(cue.ParsePath("value"))
	if valueVal.Exists() {
		cond.Value, err = extractValue(field+".value", valueVal)
		if err != nil {
			return cond, err
		}
	} else {
		cond.Value = workflow.Null{}
	}

	joinVal := v.LookupPath(cue.ParsePath("join"))
	if joinVal.Exists() {
		join, err := joinVal.String()
		if err != nil {
			return cond, formatCUEError(err)
		}
		switch strings.ToUpper(join) {
		case string(workflow.JoinAnd):
			cond.Join = workflow.JoinAnd
		case string(workflow.JoinOr):
			cond.Join = workflow.JoinOr
		default:
			return cond, &CompileError{
				Field:   field + ".join",
				Message: fmt.Sprintf("invalid join %q, must be \"and\" or \"or\"", join),
				Pos:     joinVal.Pos(),
			}
		}
	}

	return cond, nil
}

// compileActions parses the then list into ordered actions. Order is
// assigned from list position.
func compileActions(ruleID string, v cue.Value) ([]workflow.Action, error) {
	var actions []workflow.Action

	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.then", ruleID),
			Message: "then must be a list of actions",
			Pos:     v.Pos(),
		}
	}

	for i := 0; iter.Next(); i++ {
		field := fmt.Sprintf("rule.%s.then[%d]", ruleID, i)
		av := iter.Value()

		typeVal := av.LookupPath(cue.ParsePath("action"))
		if !typeVal.Exists() {
			return nil, &CompileError{
				Field:   field,
				Message: "action entry requires 'action'",
				Pos:     av.Pos(),
			}
		}
		actionType, err := typeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		action := workflow.Action{
			Type:   workflow.ActionType(actionType),
			Params: workflow.Params{},
			Order:  i + 1,
		}

		paramsVal := av.LookupPath(cue.ParsePath("params"))
		if paramsVal.Exists() {
			action.Params, err = extractParams(field+".params", paramsVal)
			if err != nil {
				return nil, err
			}
		}

		actions = append(actions, action)
	}

	if len(actions) == 0 {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.then", ruleID),
			Message: "at least one action is required",
			Pos:     v.Pos(),
		}
	}

	return actions, nil
}

// extractParams converts a CUE struct into action parameters.
func extractParams(field string, v cue.Value) (workflow.Params, error) {
	params := workflow.Params{}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		value, err := extractValue(fmt.Sprintf("%s.%s", field, name), iter.Value())
		if err != nil {
			return nil, err
		}
		params[name] = value
	}

	return params, nil
}

// extractValue converts a concrete CUE value to a workflow value.
// Nested structs are rejected; lists must hold only strings.
func extractValue(field string, v cue.Value) (workflow.Value, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return workflow.String(s), nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return workflow.Number(f), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return workflow.Bool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		list := workflow.StringList{}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{
					Field:   field,
					Message: "list values must be strings",
					Pos:     iter.Value().Pos(),
				}
			}
			list = append(list, s)
		}
		return list, nil
	case cue.NullKind:
		return workflow.Null{}, nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}
