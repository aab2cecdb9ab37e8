package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/itemsync/internal/config"
	"github.com/roach88/itemsync/internal/schema"
	"github.com/roach88/itemsync/internal/store"
)

// starterSchema is written by init.
const starterSchema = `// Attributes are declared per namespace. Shadowable attributes keep a
// base copy while edited locally and take part in merges.
attributes: task: {
	title: {kind: "string", shadowable: true}
	done:  {kind: "bool", shadowable: true}
	tags:  {kind: "stringset", shadowable: true}
	notes: {kind: "string"}
}

// Types select the merge rules applied to their items.
types: project: {
	doc: "Owns tasks through sys:master."
}
types: task: {
	doc: "A unit of work."
	merge: [
		{strategy: "stringSets", attrs: ["task:tags"]},
	]
}
`

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Force bool
}

// InitResult is the JSON payload of init.
type InitResult struct {
	Config string   `json:"config"`
	Schema string   `json:"schema"`
	Store  string   `json:"store"`
	Types  []string `json:"types"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a config, a starter schema and an empty store",
		Long: `Create itemsync.toml, schema.cue and the SQLite store in dir
(default: the current directory). Existing files are kept unless --force.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd.Context(), opts, dir, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite existing files")

	return cmd
}

func runInit(ctx context.Context, opts *InitOptions, dir string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	cfg := config.Default()
	configPath := filepath.Join(dir, config.FileName)
	schemaPath := filepath.Join(dir, cfg.Schema)
	storePath := filepath.Join(dir, cfg.Store.Path)

	if !opts.Force {
		for _, p := range []string{configPath, schemaPath, storePath} {
			if _, err := os.Stat(p); err == nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric,
					fmt.Sprintf("%s already exists (use --force to overwrite)", p), nil)
			}
		}
	} else if err := os.Remove(storePath); err != nil && !os.IsNotExist(err) {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	if err := cfg.Save(configPath); err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	if err := os.WriteFile(schemaPath, []byte(starterSchema), 0o644); err != nil {
		return f.Fail(ExitCommandError, ErrCodeSchema, fmt.Sprintf("failed to write schema: %v", err), nil)
	}
	f.Verbosef("wrote %s and %s", configPath, schemaPath)

	sch, err := schema.Load(schemaPath)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeSchema, err.Error(), nil)
	}
	st, err := store.Open(storePath, store.WithRegistry(sch.Registry))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	defer st.Close()

	if err := st.Write(ctx, store.Foreground, func(tx *store.Tx) error {
		sch.Install(tx)
		return nil
	}); err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("install types: %v", err), nil)
	}

	result := InitResult{Config: configPath, Schema: schemaPath, Store: storePath, Types: sch.TypeNames()}
	text := fmt.Sprintf("Initialized %s\n  config: %s\n  schema: %s\n  store:  %s\n",
		dir, configPath, schemaPath, storePath)
	return f.Success(result, text)
}
