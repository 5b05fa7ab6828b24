package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/graphkeep/graphkeep/internal/graph"
	"github.com/graphkeep/graphkeep/internal/journal"
	"github.com/graphkeep/graphkeep/internal/storage"
	"github.com/graphkeep/graphkeep/internal/update"
)

// ApplyReport is the machine-readable outcome of one apply run.
type ApplyReport struct {
	Name        string   `json:"name"`
	OpsApplied  int      `json:"ops_applied"`
	ParseErrors []string `json:"parse_errors,omitempty"`
	ApplyErrors []string `json:"apply_errors,omitempty"`
	Restored    bool     `json:"restored,omitempty"`
	BackupID    string   `json:"backup_id,omitempty"`
	Committed   bool     `json:"committed"`
	NodeCount   int      `json:"node_count"`
	EdgeCount   int      `json:"edge_count"`
	Hash        string   `json:"hash,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		file           string
		agent          string
		restoreCorrupt bool
	)

	cmd := &cobra.Command{
		Use:   "apply <name>",
		Short: "Apply update blocks to a document",
		Long: `Parse update blocks from agent output and commit the result.

Reads free text from stdin (or --file), extracts [KG_UPDATE] blocks,
applies the operations to the named document, validates the result, and
commits it atomically after backing up the previous on-disk state.
Malformed blocks and inapplicable operations are skipped and reported;
the valid remainder still commits. A document that fails validation
after applying is never written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(rootOpts, args[0], file, agent, restoreCorrupt, cmd)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read update text from a file instead of stdin")
	cmd.Flags().StringVar(&agent, "agent", "agent", "author recorded on new nodes")
	cmd.Flags().BoolVar(&restoreCorrupt, "restore-corrupt", false,
		"if the live document is unparsable, restore the newest backup and continue")

	return cmd
}

func runApply(opts *RootOptions, name, file, agent string, restoreCorrupt bool, cmd *cobra.Command) error {
	f := formatter(opts, cmd)
	app, err := newApp(opts, f)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()

	text, err := readUpdateText(cmd, file)
	if err != nil {
		return WrapExitError(ExitCommandError, "read update text", err)
	}

	report := &ApplyReport{Name: name}

	ops, parseErrs := update.Parse(text)
	for _, perr := range parseErrs {
		report.ParseErrors = append(report.ParseErrors, perr.Error())
	}
	f.VerboseLog("parsed %d operation(s), %d malformed block(s)", len(ops), len(parseErrs))

	// Load the live document, creating or restoring as needed.
	doc, err := app.Store.Load(name)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		doc = graph.NewDocument(time.Now())
	default:
		var ue *storage.UnparsableError
		if !errors.As(err, &ue) {
			return WrapExitError(ExitCommandError, fmt.Sprintf("load %s", name), err)
		}
		if !restoreCorrupt {
			_ = f.Error("APPLY_UNPARSABLE",
				fmt.Sprintf("document %q is unparsable; rerun with --restore-corrupt or restore a backup", name), nil)
			return NewExitError(ExitUnrecoverable, fmt.Sprintf("document %q is unparsable", name))
		}
		h, rerr := app.Backups.RestoreLatest(ctx, name)
		if rerr != nil {
			_ = f.Error("APPLY_UNRECOVERABLE",
				fmt.Sprintf("document %q is unparsable and restore failed: %v", name, rerr), nil)
			return NewExitError(ExitUnrecoverable, fmt.Sprintf("document %q is unrecoverable", name))
		}
		app.record(ctx, f, name, journal.OpRestore, fmt.Sprintf("restored %s before apply", h.ID))
		report.Restored = true
		doc, err = app.Store.Load(name)
		if err != nil {
			_ = f.Error("APPLY_UNRECOVERABLE",
				fmt.Sprintf("restored backup for %q is itself unparsable: %v", name, err), nil)
			return NewExitError(ExitUnrecoverable, fmt.Sprintf("document %q is unrecoverable", name))
		}
	}

	applied, applyErrs := update.Apply(doc, ops, agent, time.Now())
	report.OpsApplied = applied
	for _, aerr := range applyErrs {
		report.ApplyErrors = append(report.ApplyErrors, aerr.Error())
	}

	// Nothing took effect: report and leave the store untouched.
	if applied == 0 {
		report.NodeCount = len(doc.Nodes)
		report.EdgeCount = len(doc.Edges)
		return reportApply(f, report, len(parseErrs)+len(applyErrs) > 0)
	}

	// The document must satisfy every structural rule before it touches
	// disk.
	if verr := app.Validator.Validate(doc); verr != nil {
		var ve *graph.ValidationError
		errors.As(verr, &ve)
		_ = f.Error("APPLY_INVALID",
			fmt.Sprintf("applied document fails validation on %s: %s; nothing written", ve.Field, ve.Message), nil)
		return NewExitError(ExitIssues, fmt.Sprintf("validation failed on %s", ve.Field))
	}

	h, err := app.Backups.Backup(name)
	if err != nil {
		return WrapExitError(ExitCommandError, "backup before commit", err)
	}
	report.BackupID = h.ID
	app.record(ctx, f, name, journal.OpBackup, h.ID)

	if err := app.Store.Commit(ctx, name, doc); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("commit %s", name), err)
	}
	report.Committed = true
	report.NodeCount = doc.Meta.NodeCount
	report.EdgeCount = doc.Meta.EdgeCount
	if sum, err := graph.ContentHash(doc); err == nil {
		report.Hash = sum
	}
	app.record(ctx, f, name, journal.OpApply,
		fmt.Sprintf("applied %d op(s), %d node(s), %d edge(s)", applied, report.NodeCount, report.EdgeCount))

	return reportApply(f, report, len(parseErrs)+len(applyErrs) > 0)
}

func readUpdateText(cmd *cobra.Command, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func reportApply(f *OutputFormatter, report *ApplyReport, hadErrors bool) error {
	if f.Format == "json" {
		code, msg := "", ""
		if hadErrors {
			code, msg = "APPLY_PARTIAL", fmt.Sprintf("%d block(s) or op(s) skipped",
				len(report.ParseErrors)+len(report.ApplyErrors))
		}
		if err := f.Result(!hadErrors, report, code, msg); err != nil {
			return err
		}
	} else {
		if report.Restored {
			fmt.Fprintf(f.Writer, "restored %s from backup before applying\n", report.Name)
		}
		fmt.Fprintf(f.Writer, "%s: applied %d op(s)", report.Name, report.OpsApplied)
		if report.Committed {
			fmt.Fprintf(f.Writer, ", committed (%d nodes, %d edges)", report.NodeCount, report.EdgeCount)
		} else {
			fmt.Fprint(f.Writer, ", nothing committed")
		}
		fmt.Fprintln(f.Writer)
		for _, e := range report.ParseErrors {
			fmt.Fprintf(f.Writer, "  skipped block: %s\n", e)
		}
		for _, e := range report.ApplyErrors {
			fmt.Fprintf(f.Writer, "  skipped op: %s\n", e)
		}
	}

	if hadErrors {
		return NewExitError(ExitIssues, "some update blocks were skipped")
	}
	return nil
}
