package engine

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// EvalCondition evaluates one condition against a snapshot.
//
// Deterministic and side-effect free. Malformed conditions never raise:
// each operator degrades to a fixed boolean documented per branch, and
// an unrecognized operator never matches (fail-safe deny).
func EvalCondition(cond workflow.Condition, snap workflow.Snapshot) bool {
	field := snap.Get(cond.Field)

	switch cond.Operator {
	case workflow.OpEquals:
		return valuesEqual(field, cond.Value)

	case workflow.OpNotEquals:
		return !valuesEqual(field, cond.Value)

	case workflow.OpContains:
		// Non-string field never contains anything.
		return stringTest(field, cond.Value, strings.Contains)

	case workflow.OpNotContains:
		// Asymmetric with contains: a non-string field "does not contain"
		// the operand, so the test is true rather than false.
		return !stringTest(field, cond.Value, strings.Contains)

	case workflow.OpStartsWith:
		return stringTest(field, cond.Value, strings.HasPrefix)

	case workflow.OpEndsWith:
		return stringTest(field, cond.Value, strings.HasSuffix)

	case workflow.OpGreaterThan:
		fn, fok := workflow.AsNumber(field)
		cn, cok := workflow.AsNumber(cond.Value)
		return fok && cok && fn > cn

	case workflow.OpLessThan:
		fn, fok := workflow.AsNumber(field)
		cn, cok := workflow.AsNumber(cond.Value)
		return fok && cok && fn < cn

	case workflow.OpIsEmpty:
		return workflow.IsEmpty(field)

	case workflow.OpIsNotEmpty:
		return !workflow.IsEmpty(field)

	case workflow.OpInList:
		// Fail-closed for inclusion: a malformed (non-array) operand
		// means nothing is ever in the list.
		return inList(field, cond.Value)

	case workflow.OpNotInList:
		// Fail-open for exclusion: a malformed operand excludes nothing.
		return !inList(field, cond.Value)

	default:
		return false
	}
}

// valuesEqual compares a snapshot field with a condition operand.
// Comparison is direct within each variant; numeric strings compare
// equal to numbers so rules authored against string-typed fields keep
// working when the caller snapshots a number.
func valuesEqual(field, operand workflow.Value) bool {
	switch f := field.(type) {
	case workflow.String:
		if s, ok := operand.(workflow.String); ok {
			return f == s
		}
	case workflow.Bool:
		if b, ok := operand.(workflow.Bool); ok {
			return f == b
		}
		return false
	case workflow.Null:
		_, ok := operand.(workflow.Null)
		return ok
	}

	fn, fok := workflow.AsNumber(field)
	cn, cok := workflow.AsNumber(operand)
	return fok && cok && fn == cn
}

// stringTest applies a case-insensitive string predicate to the field
// and operand. Non-string field or operand → false; the caller decides
// whether that maps to a match (negated operators) or not.
func stringTest(field, operand workflow.Value, test func(s, substr string) bool) bool {
	fs, ok := workflow.AsString(field)
	if !ok {
		return false
	}
	os, ok := workflow.AsString(operand)
	if !ok {
		return false
	}
	return test(foldCase(fs), foldCase(os))
}

// foldCase normalizes to NFC before lowercasing so visually identical
// strings with different codepoint sequences compare equal.
func foldCase(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// inList reports whether the field value is a member of the operand
// string array. A non-array operand or non-string field is never a
// member.
func inList(field, operand workflow.Value) bool {
	list, ok := operand.(workflow.StringList)
	if !ok {
		return false
	}
	fs, ok := workflow.AsString(field)
	if !ok {
		return false
	}
	for _, item := range list {
		if item == fs {
			return true
		}
	}
	return false
}

// EvalConditions folds an ordered condition list into one boolean.
//
// An empty or nil list is vacuously true (no restriction). Otherwise the
// list evaluates left to right as a single un-parenthesized expression:
// each condition's Join combines it with the accumulated result, so
// [A, B(AND), C(OR)] means (A AND B) OR C. There is no precedence and
// no short-circuit - conditions are pure, so every one is evaluated.
func EvalConditions(conds []workflow.Condition, snap workflow.Snapshot) bool {
	if len(conds) == 0 {
		return true
	}

	result := EvalCondition(conds[0], snap)
	for _, c := range conds[1:] {
		v := EvalCondition(c, snap)
		if c.Join == workflow.JoinOr {
			result = result || v
		} else {
			result = result && v
		}
	}
	return result
}
