// Command tl manages hierarchical task lists from the terminal and serves
// them to MCP clients.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tasklattice/tasklattice/internal/app"
	"github.com/tasklattice/tasklattice/internal/config"
	"github.com/tasklattice/tasklattice/internal/types"
	"github.com/tasklattice/tasklattice/internal/ui"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	cfgFile    string
	dbPath     string
	jsonOutput bool

	application *app.App
	out         *ui.Printer
)

var rootCmd = &cobra.Command{
	Use:           "tl",
	Short:         "tasklattice: nested task lists, templates, tags and search",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(os.Stdout, jsonOutput)
		out = ui.NewPrinter(os.Stdout, jsonOutput)
		if skipApp(cmd) {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}
		application, err = app.Open(cfg)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if application == nil {
			return nil
		}
		return application.Close()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Tasks and lists:"},
		&cobra.Group{ID: "organize", Title: "Templates, tags and attributes:"},
		&cobra.Group{ID: "data", Title: "Search and data:"},
		&cobra.Group{ID: "advanced", Title: "Servers:"},
	)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/tasklattice/config.yaml or .tasklattice/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides database.path)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFail("Error:"), describe(err))
		if application != nil {
			_ = application.Close()
		}
		os.Exit(exitCode(err))
	}
}

// skipApp reports whether cmd runs without opening the store.
func skipApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "help" || c.Name() == "completion" {
			return true
		}
	}
	return false
}

func describe(err error) string {
	if k := types.KindOf(err); k != "" {
		return fmt.Sprintf("%s (%s)", types.MessageOf(err), k)
	}
	return err.Error()
}

// exitCode maps error kinds to distinct statuses for scripts.
func exitCode(err error) int {
	switch types.KindOf(err) {
	case types.KindValidation:
		return 2
	case types.KindNotFound:
		return 3
	case types.KindConflict, types.KindIntegrity:
		return 4
	case types.KindTransient:
		return 75
	}
	return 1
}

// parseID reads a positive id argument.
func parseID(name, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, types.Validationf("%s %q must be a positive number", name, s)
	}
	return id, nil
}

// optionalID returns nil for an unset flag value.
func optionalID(cmd *cobra.Command, flag string) (*int64, error) {
	if !cmd.Flags().Changed(flag) {
		return nil, nil
	}
	v, err := cmd.Flags().GetInt64(flag)
	if err != nil {
		return nil, err
	}
	if v <= 0 {
		return nil, types.Validationf("--%s must be a positive id", flag)
	}
	return &v, nil
}

func optionalString(cmd *cobra.Command, flag string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	v, _ := cmd.Flags().GetString(flag)
	return &v
}

func deref(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}
