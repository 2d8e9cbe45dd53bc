package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsdeck/deskflow/internal/rulepack"
	"github.com/opsdeck/deskflow/internal/store"
)

// RulesOptions holds flags shared by the rules subcommands.
type RulesOptions struct {
	*RootOptions
	Database string
}

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RulesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage workflow rules in a deskflow database",
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newRulesImportCommand(opts))
	cmd.AddCommand(newRulesListCommand(opts))

	return cmd
}

// ImportResult summarizes a rules import.
type ImportResult struct {
	Tenant   string             `json:"tenant"`
	Imported int                `json:"imported"`
	Warnings []rulepack.Warning `json:"warnings,omitempty"`
}

func newRulesImportCommand(opts *RulesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <pack.cue>",
		Short: "Compile a rule pack and upsert its rules",
		Long: `Compile and validate a CUE rule pack, then upsert every rule into
the database. Rules are keyed by ID: re-importing a pack replaces its
rules in place. A pack that fails validation imports nothing.

Examples:
  deskflow rules import packs/acme.cue --db ./deskflow.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesImport(opts, args[0], cmd)
		},
	}
}

func runRulesImport(opts *RulesOptions, packPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := context.Background()

	pack, err := rulepack.CompileFile(packPath)
	if err != nil {
		var compileErr *rulepack.CompileError
		if errors.As(err, &compileErr) {
			_ = formatter.Error(ErrCodeCompileFailed, compileErr.Error(), nil)
			return NewExitError(ExitFailure, compileErr.Error())
		}
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to compile rule pack", err)
	}

	// All-or-nothing: a pack with any invalid rule imports nothing.
	for _, rule := range pack.Rules {
		if verrs := rule.Validate(); len(verrs) > 0 {
			msg := fmt.Sprintf("rule %s: %s", rule.ID, verrs[0].Error())
			_ = formatter.Error(verrs[0].Code, msg, nil)
			return NewExitError(ExitFailure, msg)
		}
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	for _, rule := range pack.Rules {
		formatter.VerboseLog("Importing rule: %s", rule.ID)
		if err := st.SaveRule(ctx, rule); err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to save rule %s", rule.ID), err)
		}
	}

	warnings := rulepack.Lint(pack)
	if formatter.Format == "json" {
		return formatter.Success(ImportResult{
			Tenant:   pack.Tenant,
			Imported: len(pack.Rules),
			Warnings: warnings,
		})
	}

	fmt.Fprintf(formatter.Writer, "✓ imported %d rule(s) for tenant %s\n", len(pack.Rules), pack.Tenant)
	printWarnings(formatter, warnings)
	return nil
}

// RuleSummary is one row of rules list output.
type RuleSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	EntityType     string `json:"entity_type"`
	Trigger        string `json:"trigger_type"`
	ExecutionOrder int    `json:"execution_order"`
	IsActive       bool   `json:"is_active"`
	StopOnMatch    bool   `json:"stop_on_match"`
	Conditions     int    `json:"conditions"`
	Actions        int    `json:"actions"`
}

func newRulesListCommand(opts *RulesOptions) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's workflow rules",
		Long: `List every rule stored for a tenant, active or not, ordered by
entity type and execution order.

Examples:
  deskflow rules list --db ./deskflow.db --tenant acme
  deskflow rules list --db ./deskflow.db --tenant acme --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesList(opts, tenant, cmd)
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant to list rules for (required)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runRulesList(opts *RulesOptions, tenant string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	rules, err := st.ListRules(context.Background(), tenant)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list rules", err)
	}

	summaries := make([]RuleSummary, 0, len(rules))
	for _, rule := range rules {
		summaries = append(summaries, RuleSummary{
			ID:             rule.ID,
			Name:           rule.Name,
			EntityType:     string(rule.EntityType),
			Trigger:        string(rule.Trigger),
			ExecutionOrder: rule.ExecutionOrder,
			IsActive:       rule.IsActive,
			StopOnMatch:    rule.StopOnMatch,
			Conditions:     len(rule.Conditions),
			Actions:        len(rule.Actions),
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintf(formatter.Writer, "no rules for tenant %s\n", tenant)
		return nil
	}

	for _, s := range summaries {
		state := "active"
		if !s.IsActive {
			state = "inactive"
		}
		stop := ""
		if s.StopOnMatch {
			stop = " [stop]"
		}
		fmt.Fprintf(formatter.Writer, "%-24s %-8s %-16s order=%-4d %s%s (%d condition(s), %d action(s))\n",
			s.ID, s.EntityType, s.Trigger, s.ExecutionOrder, state, stop, s.Conditions, s.Actions)
	}
	return nil
}
