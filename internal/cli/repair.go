package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graphkeep/graphkeep/internal/integrity"
	"github.com/graphkeep/graphkeep/internal/journal"
)

// NewRepairCommand creates the repair command.
func NewRepairCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "repair [name]",
		Short: "Remove dangling edges from stored documents",
		Long: `Repair structural issues in stored documents.

Repair is intentionally narrow: only edges whose source or target does
not resolve to a node are removed. Nodes and valid edges are never
altered. The pre-repair state is backed up first; if the backup fails,
nothing is written. Unparsable documents cannot be repaired; restore a
backup generation instead.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return NewExitError(ExitCommandError, "repair needs a document name or --all")
			}
			return runRepair(rootOpts, args, all, cmd)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "repair every known document")

	return cmd
}

func runRepair(opts *RootOptions, args []string, all bool, cmd *cobra.Command) error {
	f := formatter(opts, cmd)
	app, err := newApp(opts, f)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()

	var results []integrity.RepairResult
	if all {
		results, err = app.Checker.RepairAll(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "repair all", err)
		}
	} else {
		res, err := app.Checker.Repair(ctx, args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("repair %s", args[0]), err)
		}
		results = []integrity.RepairResult{*res}
	}

	for _, r := range results {
		detail := "no repairable issues found"
		if len(r.ActionsTaken) > 0 {
			detail = r.ActionsTaken[len(r.ActionsTaken)-1]
		}
		app.record(ctx, f, r.Name, journal.OpRepair, detail)
	}

	return reportRepairResults(f, results)
}

// reportRepairResults renders results and maps them to an exit code:
// everything repaired (or nothing to do) 0, any failed repair 2.
func reportRepairResults(f *OutputFormatter, results []integrity.RepairResult) error {
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}

	if f.Format == "json" {
		code, msg := "", ""
		if failed > 0 {
			code, msg = "REPAIR_FAILED", fmt.Sprintf("%d document(s) not repaired", failed)
		}
		if err := f.Result(failed == 0, results, code, msg); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			mark := "✓"
			if !r.Success {
				mark = "✗"
			}
			fmt.Fprintf(f.Writer, "%s %s\n", mark, r.Name)
			for _, action := range r.ActionsTaken {
				fmt.Fprintf(f.Writer, "  %s\n", action)
			}
		}
	}

	if failed > 0 {
		return NewExitError(ExitUnrecoverable, fmt.Sprintf("%d document(s) not repaired", failed))
	}
	return nil
}
