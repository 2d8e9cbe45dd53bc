package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsdeck/deskflow/internal/rulepack"
	"github.com/opsdeck/deskflow/internal/workflow"
)

// ValidationResult holds validation results for a rule pack.
type ValidationResult struct {
	Valid    bool                  `json:"valid"`
	Tenant   string                `json:"tenant,omitempty"`
	Rules    int                   `json:"rules"`
	Errors   []RuleValidationError `json:"errors,omitempty"`
	Warnings []rulepack.Warning    `json:"warnings,omitempty"`
}

// RuleValidationError attributes a validation error to its rule.
type RuleValidationError struct {
	Rule string `json:"rule"`
	workflow.ValidationError
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <pack.cue>",
		Short: "Validate a rule pack without importing it",
		Long: `Compile and validate a CUE rule pack without touching any database.

Performs syntax checking, per-rule schema validation, and lint checks
for rules that shadow each other. Exit code 1 means the pack has
validation errors; warnings alone exit 0.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, packPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

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

	formatter.VerboseLog("Compiled %d rule(s) for tenant %s", len(pack.Rules), pack.Tenant)

	var ruleErrors []RuleValidationError
	for _, rule := range pack.Rules {
		formatter.VerboseLog("Validating rule: %s", rule.ID)
		for _, verr := range rule.Validate() {
			ruleErrors = append(ruleErrors, RuleValidationError{
				Rule:            rule.ID,
				ValidationError: verr,
			})
		}
	}

	warnings := rulepack.Lint(pack)

	if len(ruleErrors) > 0 {
		return outputValidationErrors(formatter, pack, ruleErrors, warnings)
	}
	return outputValidateSuccess(formatter, pack, warnings)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, pack *rulepack.Pack, warnings []rulepack.Warning) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{
			Valid:    true,
			Tenant:   pack.Tenant,
			Rules:    len(pack.Rules),
			Warnings: warnings,
		})
	}

	fmt.Fprintf(formatter.Writer, "✓ pack valid: %d rule(s) for tenant %s\n", len(pack.Rules), pack.Tenant)
	printWarnings(formatter, warnings)
	return nil
}

// outputValidationErrors outputs validation errors and exits non-zero.
func outputValidationErrors(formatter *OutputFormatter, pack *rulepack.Pack, errs []RuleValidationError, warnings []rulepack.Warning) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:    false,
				Tenant:   pack.Tenant,
				Rules:    len(pack.Rules),
				Errors:   errs,
				Warnings: warnings,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: [%s] %s: %s\n", err.Rule, err.Code, err.Field, err.Message)
	}
	fmt.Fprintln(formatter.Writer)
	printWarnings(formatter, warnings)

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

func printWarnings(formatter *OutputFormatter, warnings []rulepack.Warning) {
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "⚠ %s: %s\n", w.RuleID, w.Message)
	}
}
