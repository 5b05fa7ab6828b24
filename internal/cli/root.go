package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/graphkeep/graphkeep/internal/backup"
	"github.com/graphkeep/graphkeep/internal/graph"
	"github.com/graphkeep/graphkeep/internal/integrity"
	"github.com/graphkeep/graphkeep/internal/journal"
	"github.com/graphkeep/graphkeep/internal/storage"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	DataDir    string // overrides config data_dir when set
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the graphkeep CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "graphkeep",
		Short: "graphkeep - durable knowledge graph storage",
		Long: `Validated, crash-consistent storage for agent knowledge graphs.

Documents are JSON snapshots committed atomically under an advisory
lock, backed up before every write, and checkable or repairable at any
time.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "document directory (overrides config)")

	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewRepairCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewBackupsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// App bundles the wired subsystem for one command invocation.
type App struct {
	Config    Config
	Store     *storage.Store
	Backups   *backup.Manager
	Checker   *integrity.Checker
	Validator *graph.Validator

	// Journal may be nil: journaling is advisory and a failure to open
	// it must not block the operation itself.
	Journal *journal.Journal
}

// newApp resolves configuration and wires the storage stack. The
// journal is opened best-effort; open failures are reported as verbose
// diagnostics, never as command errors.
func newApp(opts *RootOptions, f *OutputFormatter) (*App, error) {
	cfg := DefaultConfig()
	if opts.ConfigPath != "" {
		loaded, err := LoadConfig(opts.ConfigPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "load config", err)
		}
		cfg = loaded
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	cfg.finish()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "create data dir", err)
	}

	storeOpts := []storage.Option{storage.WithLockTimeout(cfg.LockTimeout)}
	if cfg.AllowUnlocked {
		storeOpts = append(storeOpts, storage.WithAllowUnlocked())
	}
	store, err := storage.Open(cfg.DataDir, storeOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open document store", err)
	}

	backups, err := backup.NewManager(store, cfg.BackupDir, backup.WithMaxBackups(cfg.MaxBackups))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open backup store", err)
	}

	validator := &graph.Validator{EvidenceThreshold: cfg.EvidenceThreshold}
	app := &App{
		Config:    cfg,
		Store:     store,
		Backups:   backups,
		Checker:   integrity.NewChecker(store, backups, integrity.WithValidator(validator)),
		Validator: validator,
	}

	if j, err := journal.Open(cfg.JournalPath); err != nil {
		f.VerboseLog("warning: journal unavailable: %v", err)
	} else {
		app.Journal = j
	}

	return app, nil
}

// Close releases the app's resources.
func (a *App) Close() {
	if a.Journal != nil {
		a.Journal.Close()
	}
}

// record appends a journal event, downgrading any failure to a verbose
// diagnostic. A succeeded operation is never failed because its journal
// row could not be written.
func (a *App) record(ctx context.Context, f *OutputFormatter, name, op, detail string) {
	if a.Journal == nil {
		return
	}
	if _, err := a.Journal.Append(ctx, name, op, detail); err != nil {
		f.VerboseLog("warning: journal append failed: %v", err)
	}
}

// formatter builds the output formatter for a command invocation.
func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
