package simulate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// Scenario defines one simulation: a rule pack, an entity snapshot,
// and the trigger to fire against it.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are stored
	// under testdata/golden/{name}.golden.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description"`

	// Pack is the path to the CUE rule pack, relative to the scenario
	// file location.
	Pack string `yaml:"pack"`

	// Entity is the seed entity the trigger fires against.
	Entity EntitySpec `yaml:"entity"`

	// Trigger is the lifecycle event to simulate.
	Trigger string `yaml:"trigger"`

	// Assertions validate the execution result and final state.
	// Optional: a scenario with no assertions is trace-only and relies
	// on golden comparison.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// EntitySpec seeds the simulated entity.
type EntitySpec struct {
	// Type is the entity type (issue, problem, change, request).
	Type string `yaml:"type"`

	// ID identifies the entity within the tenant.
	ID string `yaml:"id"`

	// Fields is the entity snapshot at trigger time. Values are
	// converted through workflow.FromAny; nested objects are rejected.
	Fields map[string]any `yaml:"fields"`
}

// Assertion validates one aspect of a simulation result.
type Assertion struct {
	// Type selects the assertion:
	// - "result": check rules_executed / actions_executed / error_count
	// - "field": check a final-state field value
	// - "comments": check the number of comments added
	// - "notifications": check the number of queued notification jobs
	// - "rule_fired": check that a rule matched and ran
	Type string `yaml:"type"`

	// RulesExecuted, ActionsExecuted, and ErrorCount are checked by
	// "result" when present.
	RulesExecuted   *int `yaml:"rules_executed,omitempty"`
	ActionsExecuted *int `yaml:"actions_executed,omitempty"`
	ErrorCount      *int `yaml:"error_count,omitempty"`

	// Field and Value are used by "field".
	Field string `yaml:"field,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// Count is used by "comments" and "notifications".
	Count int `yaml:"count,omitempty"`

	// Rule is the rule ID used by "rule_fired".
	Rule string `yaml:"rule,omitempty"`
}

// Assertion type constants.
const (
	AssertResult        = "result"
	AssertField         = "field"
	AssertComments      = "comments"
	AssertNotifications = "notifications"
	AssertRuleFired     = "rule_fired"
)

// LoadScenario reads and parses a scenario YAML file. The pack path is
// resolved relative to the scenario file's directory.
// Returns an error if the file is malformed, contains unknown fields
// (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs
	// "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario YAML: %w", err)
	}

	if scenario.Pack != "" && !filepath.IsAbs(scenario.Pack) {
		scenario.Pack = filepath.Join(filepath.Dir(path), scenario.Pack)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Pack == "" {
		return fmt.Errorf("pack is required")
	}
	if _, err := os.Stat(s.Pack); os.IsNotExist(err) {
		return fmt.Errorf("rule pack not found: %s", s.Pack)
	}

	if s.Entity.Type == "" {
		return fmt.Errorf("entity.type is required")
	}
	if !workflow.ValidEntityTypes[workflow.EntityType(s.Entity.Type)] {
		return fmt.Errorf("invalid entity.type %q", s.Entity.Type)
	}
	if s.Entity.ID == "" {
		return fmt.Errorf("entity.id is required")
	}

	if s.Trigger == "" {
		return fmt.Errorf("trigger is required")
	}
	if !workflow.ValidTriggerTypes[workflow.TriggerType(s.Trigger)] {
		return fmt.Errorf("invalid trigger %q", s.Trigger)
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertResult:
		if a.RulesExecuted == nil && a.ActionsExecuted == nil && a.ErrorCount == nil {
			return fmt.Errorf("assertions[%d]: result assertion needs at least one of rules_executed, actions_executed, error_count", index)
		}
	case AssertField:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for field assertion", index)
		}
	case AssertComments, AssertNotifications:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertRuleFired:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for rule_fired", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
