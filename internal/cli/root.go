// Package cli implements the itemsync command line.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/itemsync/internal/config"
	"github.com/roach88/itemsync/internal/schema"
	"github.com/roach88/itemsync/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the itemsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "itemsync",
		Short: "itemsync - offline item store with three-way merge",
		Long: `An embedded item store that keeps local edits next to the last
synced server state and merges downloads attribute by attribute.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", config.FileName, "config file")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *Formatter {
	return &Formatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig reads the config file. A missing file at the default location
// means defaults; a missing file named explicitly is an error.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.Config)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return nil, err
}

// env is what commands working on a store need.
type env struct {
	cfg    *config.Config
	schema *schema.Schema
	store  *store.Store
	logger *slog.Logger
}

// openEnv loads the config and schema and opens the configured store.
func (o *RootOptions) openEnv(cmd *cobra.Command, f *Formatter) (*env, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	logger, err := cfg.Log.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	sch, err := schema.Load(cfg.Schema)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeSchema, err.Error(), nil)
	}
	f.Verbosef("schema %s: %d attribute(s), %d type(s)", cfg.Schema, len(sch.Registry.All()), len(sch.Types))

	if cfg.Store.Path != store.MemoryPath {
		if _, err := os.Stat(cfg.Store.Path); err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeStore,
				fmt.Sprintf("store not found: %s (run itemsync init)", cfg.Store.Path), nil)
		}
	}
	st, err := store.Open(cfg.Store.Path, store.WithRegistry(sch.Registry), store.WithLogger(logger))
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	return &env{cfg: cfg, schema: sch, store: st, logger: logger}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}
