package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/graphkeep/graphkeep/internal/backup"
	"github.com/graphkeep/graphkeep/internal/storage"
)

// Config is the resolved configuration. Every field has a working
// default; a missing config file is not an error at the call sites.
type Config struct {
	// DataDir holds the live document snapshots.
	DataDir string
	// BackupDir holds the per-document retention directories. Defaults
	// to <data_dir>/backups.
	BackupDir string
	// MaxBackups bounds retained generations per document.
	MaxBackups int
	// LockTimeout bounds how long a commit waits for the per-document
	// lock.
	LockTimeout time.Duration
	// JournalPath is the SQLite operations journal. Defaults to
	// <data_dir>/journal.db.
	JournalPath string
	// AllowUnlocked permits commits on filesystems without advisory
	// locking. Off by default; such writes lose serialization.
	AllowUnlocked bool
	// EvidenceThreshold enables the validator's evidence rule: nodes at
	// or above this confidence must cite evidence. Zero, the default,
	// leaves the rule off.
	EvidenceThreshold float64
}

// fileConfig is the YAML shape. Durations are strings ("5s") since the
// yaml package has no native duration decoding.
type fileConfig struct {
	DataDir           string  `yaml:"data_dir"`
	BackupDir         string  `yaml:"backup_dir"`
	MaxBackups        int     `yaml:"max_backups"`
	LockTimeout       string  `yaml:"lock_timeout"`
	JournalPath       string  `yaml:"journal_path"`
	AllowUnlocked     bool    `yaml:"allow_unlocked"`
	EvidenceThreshold float64 `yaml:"evidence_threshold"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		DataDir:     "graphs",
		MaxBackups:  backup.DefaultMaxBackups,
		LockTimeout: storage.DefaultLockTimeout,
	}
}

// LoadConfig reads a YAML config file and fills unset fields with
// defaults. Unknown keys are rejected so typos fail loudly.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var file fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if file.DataDir != "" {
		cfg.DataDir = file.DataDir
	}
	if file.BackupDir != "" {
		cfg.BackupDir = file.BackupDir
	}
	if file.MaxBackups != 0 {
		cfg.MaxBackups = file.MaxBackups
	}
	if file.LockTimeout != "" {
		d, err := time.ParseDuration(file.LockTimeout)
		if err != nil {
			return cfg, fmt.Errorf("parse config %s: lock_timeout: %w", path, err)
		}
		cfg.LockTimeout = d
	}
	if file.JournalPath != "" {
		cfg.JournalPath = file.JournalPath
	}
	cfg.AllowUnlocked = file.AllowUnlocked
	if file.EvidenceThreshold < 0 || file.EvidenceThreshold > 1 {
		return cfg, fmt.Errorf("parse config %s: evidence_threshold %v outside [0.0, 1.0]", path, file.EvidenceThreshold)
	}
	cfg.EvidenceThreshold = file.EvidenceThreshold

	return cfg, nil
}

// finish fills in the path defaults that derive from DataDir.
func (c *Config) finish() {
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(c.DataDir, "backups")
	}
	if c.JournalPath == "" {
		c.JournalPath = filepath.Join(c.DataDir, "journal.db")
	}
}
