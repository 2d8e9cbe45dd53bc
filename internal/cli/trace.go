package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsdeck/deskflow/internal/store"
	"github.com/opsdeck/deskflow/internal/workflow"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	Tenant     string
	EntityType string
}

// TraceResult holds the complete trace output for one entity.
type TraceResult struct {
	Tenant     string                    `json:"tenant"`
	EntityType string                    `json:"entity_type"`
	EntityID   string                    `json:"entity_id"`
	Executions []workflow.ExecutionEntry `json:"executions"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <entity-id>",
		Short: "Show the workflow execution history for an entity",
		Long: `Show which rules fired against an entity, in execution order.

Each record names the rule, the trigger, the actions attempted, and
the first action error if any occurred.

Examples:
  deskflow trace i-1042 --db ./deskflow.db --tenant acme --entity-type issue
  deskflow trace i-1042 --db ./deskflow.db --tenant acme --entity-type issue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant the entity belongs to (required)")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.Flags().StringVar(&opts.EntityType, "entity-type", "issue", "entity type (issue|problem|change|request)")

	return cmd
}

func runTrace(opts *TraceOptions, entityID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	entityType := workflow.EntityType(opts.EntityType)
	if !workflow.ValidEntityTypes[entityType] {
		msg := fmt.Sprintf("invalid entity type %q", opts.EntityType)
		_ = formatter.Error(ErrCodeGeneric, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	executions, err := st.ListExecutions(context.Background(), opts.Tenant, entityType, entityID)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read execution log", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(TraceResult{
			Tenant:     opts.Tenant,
			EntityType: opts.EntityType,
			EntityID:   entityID,
			Executions: executions,
		})
	}

	if len(executions) == 0 {
		fmt.Fprintf(formatter.Writer, "no executions for %s/%s/%s\n", opts.Tenant, opts.EntityType, entityID)
		return nil
	}

	for _, e := range executions {
		fmt.Fprintf(formatter.Writer, "%s  %-16s %-24s %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Trigger, e.RuleName, joinActions(e.Actions))
		if e.Error != "" {
			fmt.Fprintf(formatter.Writer, "    error: %s\n", e.Error)
		}
	}
	return nil
}
