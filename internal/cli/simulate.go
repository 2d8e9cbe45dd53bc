package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/opsdeck/deskflow/internal/simulate"
	"github.com/opsdeck/deskflow/internal/workflow"
)

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run a workflow scenario against an in-memory database",
		Long: `Execute a YAML scenario: compile its rule pack, seed the entity,
fire the trigger through the engine, and report what happened.

Every run uses a fresh in-memory database and a fixed clock, so a
scenario always produces the same trace. Exit code 1 means one or more
scenario assertions failed.

Examples:
  deskflow simulate scenarios/vip-escalation.yaml
  deskflow simulate scenarios/vip-escalation.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSimulate(opts *RootOptions, scenarioPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenario, err := simulate.LoadScenario(scenarioPath)
	if err != nil {
		_ = formatter.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	formatter.VerboseLog("Running scenario %s (%s on %s/%s)",
		scenario.Name, scenario.Trigger, scenario.Entity.Type, scenario.Entity.ID)

	result, err := simulate.Run(context.Background(), scenario)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "simulation failed", err)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printSimulationText(formatter, scenario, result)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("%d assertion(s) failed", len(result.Errors)))
	}
	return nil
}

func printSimulationText(formatter *OutputFormatter, scenario *simulate.Scenario, result *simulate.Result) {
	w := formatter.Writer

	if result.Pass {
		fmt.Fprintf(w, "✓ %s\n", scenario.Name)
	} else {
		fmt.Fprintf(w, "✗ %s\n", scenario.Name)
	}

	fmt.Fprintf(w, "  rules executed:   %d\n", result.Execution.RulesExecuted)
	fmt.Fprintf(w, "  actions executed: %d\n", result.Execution.ActionsExecuted)
	for _, msg := range result.Execution.Errors {
		fmt.Fprintf(w, "  action error: %s\n", msg)
	}

	for _, entry := range result.Log {
		fmt.Fprintf(w, "  rule %s ran %s\n", entry.RuleID, joinActions(entry.Actions))
	}

	if len(result.FinalState) > 0 {
		fmt.Fprintln(w, "  final state:")
		for _, field := range sortedFields(result.FinalState) {
			value, _ := workflow.MarshalValue(result.FinalState[field])
			fmt.Fprintf(w, "    %s: %s\n", field, value)
		}
	}

	for _, c := range result.Comments {
		visibility := "public"
		if c.Internal {
			visibility = "internal"
		}
		fmt.Fprintf(w, "  comment (%s): %s\n", visibility, c.Body)
	}

	for _, job := range result.Notifications {
		fmt.Fprintf(w, "  notification to %s: %s\n",
			job.Payload.GetString("recipient_id"), job.Payload.GetString("message"))
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "⚠ %s: %s\n", warning.RuleID, warning.Message)
	}

	for _, failure := range result.Errors {
		fmt.Fprintf(w, "✗ %s\n", failure)
	}
}

func sortedFields(snap workflow.Snapshot) []string {
	fields := make([]string, 0, len(snap))
	for f := range snap {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func joinActions(actions []workflow.ActionType) string {
	s := ""
	for i, a := range actions {
		if i > 0 {
			s += ", "
		}
		s += string(a)
	}
	return s
}
