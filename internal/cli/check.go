package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/graphkeep/graphkeep/internal/integrity"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "check [name]",
		Short: "Diagnose stored documents",
		Long: `Check stored documents against the structural rules.

Reports every schema violation and dangling edge, and flags documents
whose bytes no longer parse. Never modifies anything.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return NewExitError(ExitCommandError, "check needs a document name or --all")
			}
			return runCheck(rootOpts, args, all, cmd)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "check every known document")

	return cmd
}

func runCheck(opts *RootOptions, args []string, all bool, cmd *cobra.Command) error {
	f := formatter(opts, cmd)
	app, err := newApp(opts, f)
	if err != nil {
		return err
	}
	defer app.Close()

	var results []integrity.CheckResult
	if all {
		results, err = app.Checker.CheckAll()
		if err != nil {
			return WrapExitError(ExitCommandError, "check all", err)
		}
	} else {
		res, err := app.Checker.Check(args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("check %s", args[0]), err)
		}
		results = []integrity.CheckResult{*res}
	}

	return reportCheckResults(f, results)
}

// reportCheckResults renders results and maps them to an exit code:
// clean 0, repairable or reported issues 1, any unparsable document 2.
func reportCheckResults(f *OutputFormatter, results []integrity.CheckResult) error {
	invalid, unrecoverable := 0, 0
	for _, r := range results {
		if r.Valid {
			continue
		}
		invalid++
		for _, issue := range r.Issues {
			if issue.Kind == integrity.IssueUnparsable || issue.Kind == integrity.IssueIO {
				unrecoverable++
				break
			}
		}
	}

	if f.Format == "json" {
		code, msg := "", ""
		switch {
		case unrecoverable > 0:
			code, msg = "CHECK_UNRECOVERABLE", fmt.Sprintf("%d document(s) unparsable", unrecoverable)
		case invalid > 0:
			code, msg = "CHECK_ISSUES", fmt.Sprintf("%d document(s) with issues", invalid)
		}
		if err := f.Result(invalid == 0, results, code, msg); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			printCheckResult(f, &r)
		}
	}

	switch {
	case unrecoverable > 0:
		return NewExitError(ExitUnrecoverable, fmt.Sprintf("%d document(s) unparsable", unrecoverable))
	case invalid > 0:
		return NewExitError(ExitIssues, fmt.Sprintf("%d document(s) with issues", invalid))
	}
	return nil
}

func printCheckResult(f *OutputFormatter, r *integrity.CheckResult) {
	if r.Valid {
		fmt.Fprintf(f.Writer, "✓ %s\n", r.Name)
		return
	}
	fmt.Fprintf(f.Writer, "✗ %s\n", r.Name)
	for _, issue := range r.Issues {
		var loc string
		switch {
		case issue.Field != "":
			loc = issue.Field
		case issue.Source != "":
			loc = fmt.Sprintf("%s -> %s", issue.Source, issue.Target)
		default:
			loc = string(issue.Kind)
		}
		fmt.Fprintf(f.Writer, "  [%s] %s: %s\n", strings.ToUpper(string(issue.Kind)), loc, issue.Message)
	}
}
