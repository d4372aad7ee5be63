package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	mentatcontext "github.com/hesiod-au/mentat/internal/context"
)

var includeCmd = &cobra.Command{
	Use:   "include [path[:lines]...]",
	Short: "Pin paths into the assembled context",
	Long: `Pins files so every later assembly carries them at full detail. A spec
is a file, a directory, a glob ("internal/**/*.go"), or a file with
inclusive line spans ("lib/util.go:40-90,120-140"). Pins are saved to the
config file; run with no arguments to list them.`,
	Args: cobra.ArbitraryArgs,
	RunE: runInclude,
}

var excludeCmd = &cobra.Command{
	Use:   "exclude <path[:lines]...>",
	Short: "Unpin paths from the assembled context",
	Long: `Removes pins matched by the given specs and saves the remaining pin
set to the config file. Spec syntax matches the include command.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExclude,
}

func runInclude(cmd *cobra.Command, args []string) error {
	engine, dirty, err := pinEditor()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		specs := engine.PinnedSpecs()
		if len(specs) == 0 {
			fmt.Println("no pinned paths")
			return nil
		}
		for _, spec := range specs {
			fmt.Println(spec)
		}
		return nil
	}

	for _, spec := range args {
		added, invalid := engine.Include(spec)
		switch {
		case len(invalid) > 0:
			fmt.Fprintf(os.Stderr, "no match: %s\n", spec)
		case len(added) == 0:
			fmt.Printf("already pinned: %s\n", spec)
		default:
			dirty = true
			for _, path := range added {
				fmt.Printf("pinned: %s\n", path)
			}
		}
	}

	if !dirty {
		return nil
	}
	cfg.Context.IncludePaths = engine.PinnedSpecs()
	return saveConfig()
}

func runExclude(cmd *cobra.Command, args []string) error {
	engine, dirty, err := pinEditor()
	if err != nil {
		return err
	}

	for _, spec := range args {
		removed, invalid := engine.Exclude(spec)
		switch {
		case len(invalid) > 0:
			fmt.Fprintf(os.Stderr, "no match: %s\n", spec)
		case len(removed) == 0:
			fmt.Printf("not pinned: %s\n", spec)
		default:
			dirty = true
			for _, path := range removed {
				fmt.Printf("unpinned: %s\n", path)
			}
		}
	}

	if !dirty {
		return nil
	}
	cfg.Context.IncludePaths = engine.PinnedSpecs()
	return saveConfig()
}

// pinEditor builds a resolver-only engine seeded from the saved include
// list. Pin editing needs path resolution, not the assembly stack, and
// seeding without a diff context keeps changed-file defaults out of the
// saved pins. Saved specs that no longer match anything are dropped with a
// warning; dirty reports whether that happened.
func pinEditor() (*mentatcontext.Engine, bool, error) {
	root, err := resolveWorkspace()
	if err != nil {
		return nil, false, err
	}
	engine := mentatcontext.New(mentatcontext.Options{
		Root:   root,
		Logger: logger,
	})
	stale := engine.SetPaths(context.Background(), cfg.Context.IncludePaths, nil, nil)
	if len(stale) > 0 {
		fmt.Fprintf(os.Stderr, "dropping saved paths that no longer match: %s\n", strings.Join(stale, ", "))
	}
	return engine, len(stale) > 0, nil
}

func saveConfig() error {
	path := activeConfigPath()
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
