package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graphkeep/graphkeep/internal/journal"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [name]",
		Short: "Show the operations journal",
		Long: `Show journaled operations, newest first.

With a document name, shows that document's history; without one, the
most recent operations across all documents.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, args, limit, cmd)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum events to show")

	return cmd
}

func runHistory(opts *RootOptions, args []string, limit int, cmd *cobra.Command) error {
	f := formatter(opts, cmd)
	app, err := newApp(opts, f)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Journal == nil {
		return NewExitError(ExitCommandError, "journal unavailable")
	}

	ctx := cmd.Context()

	var (
		events []journal.Event
	)
	if len(args) == 1 {
		events, err = app.Journal.History(ctx, args[0], limit)
	} else {
		events, err = app.Journal.Recent(ctx, limit)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "read journal", err)
	}

	if f.Format == "json" {
		return f.Success(events)
	}

	if len(events) == 0 {
		fmt.Fprintln(f.Writer, "no journaled operations")
		return nil
	}
	for _, ev := range events {
		fmt.Fprintf(f.Writer, "%s  %-8s %-20s %s\n", ev.TS, ev.Op, ev.Name, ev.Detail)
	}
	return nil
}
