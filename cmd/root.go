package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/arcsync/internal/config"
	"github.com/marcus/arcsync/internal/logging"
	"github.com/marcus/arcsync/internal/output"
)

var (
	version string
	cfg     *config.Config
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "arcsync",
	Short: "Offline-first device sync and geofence notifications",
	Long: `arcsync - queues device registrations while the network is down and replays them when it returns.

The agent also answers location requests from a GPS sensor and watches a geofence in the
background, pushing a notification through the push backend when the device is inside it.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// nameWithAliases returns "name, alias1, alias2" if aliases exist, else just "name"
func nameWithAliases(cmd *cobra.Command) string {
	if len(cmd.Aliases) > 0 {
		return cmd.Name() + ", " + strings.Join(cmd.Aliases, ", ")
	}
	return cmd.Name()
}

func init() {
	cobra.AddTemplateFunc("nameWithAliases", nameWithAliases)

	usageTemplate := `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`

	cobra.AddTemplateFunc("add", func(a, b int) int { return a + b })
	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.AddGroup(
		&cobra.Group{ID: "agent", Title: "Agent Commands:"},
		&cobra.Group{ID: "devices", Title: "Device Commands:"},
		&cobra.Group{ID: "push", Title: "Push Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")

	pf := rootCmd.PersistentFlags()
	pf.String("data-dir", "", "Data directory (default ~/.arcsync)")
	pf.String("config", "", "Config file (default <data-dir>/config.yaml)")
	pf.String("log-format", "", "Log format: text or json")
	pf.String("log-level", "", "Log level: debug, info, warn or error")
	pf.Bool("plain", false, "Disable colored output")
}

// configPath resolves the config file from the --config and --data-dir flags.
func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	return config.Path(dataDir)
}

// loadConfig reads the config file and applies flag overrides, then
// installs the default logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath(cmd))
	if err != nil {
		output.Error("%v", err)
		return err
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		loaded.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		loaded.Log.Format = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		loaded.Log.Level = v
	}
	if plain, _ := cmd.Flags().GetBool("plain"); plain {
		output.SetPlain(true)
	}
	if err := loaded.Validate(); err != nil {
		output.Error("%v", err)
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cfg = loaded
	slog.SetDefault(logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level))
	return nil
}
