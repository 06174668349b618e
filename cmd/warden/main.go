package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	Token      string
	APITimeout time.Duration
}

// ServerFlags holds flags for commands addressing one server.
type ServerFlags struct {
	ID string
}

// CreateFlags holds flags for the create command.
type CreateFlags struct {
	FilePath string
}

// DeleteFlags holds flags for the delete command.
type DeleteFlags struct {
	ID    string
	Purge bool
}

// ConsoleFlags holds flags for the console command.
type ConsoleFlags struct {
	ID   string
	Line string
}

// TemplateFlags holds flags for the template command.
type TemplateFlags struct {
	Type   string
	Name   string
	Output string
	Force  bool
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "warden",
		Short: "Game-server supervision daemon and CLI",
		Long: `Warden supervises game-server processes: it launches and terminates
them, polls their endpoints for health, and publishes every state change.

Examples:
  warden serve --config=warden.toml        # Start the daemon
  warden list                              # List servers
  warden start --id=<server-id>            # Launch a server's process
  warden console --id=<id> --line="say hi" # Write to a server's stdin`,
	}

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&globalFlags.APIUrl, "api-url", "", "daemon URL (default http://localhost:8420)")
	root.PersistentFlags().StringVar(&globalFlags.Token, "token", "", "API token")
	root.PersistentFlags().DurationVar(&globalFlags.APITimeout, "api-timeout", 90*time.Second, "request timeout")

	root.AddCommand(
		createServeCommand(globalFlags),
		createListCommand(globalFlags),
		createStatusCommand(globalFlags),
		createActionCommand(globalFlags, "start", "Launch a server's process"),
		createActionCommand(globalFlags, "stop", "Terminate a server's process"),
		createActionCommand(globalFlags, "restart", "Stop then start a server's process"),
		createCreateCommand(globalFlags),
		createDeleteCommand(globalFlags),
		createConsoleCommand(globalFlags),
		createPingCommand(globalFlags),
		createTemplateCommand(),
	)
	return root
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the warden daemon",
		Long: `Start the warden daemon: load all server records, begin polling, and
serve the API.

Examples:
  warden serve                 # Defaults, servers/ next to the binary
  warden serve warden.toml     # Explicit config file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return runServe(configPath)
		},
	}
}

func createListCommand(globalFlags *GlobalFlags) *cobra.Command {
	var fragment string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List servers",
		Long: `List all servers known to the daemon with their derived status.

Examples:
  warden list
  warden list --match=survival`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(globalFlags).List(fragment)
		},
	}
	cmd.Flags().StringVar(&fragment, "match", "", "filter by name or endpoint substring")
	return cmd
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	serverFlags := &ServerFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show one server's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(globalFlags).Status(serverFlags.ID)
		},
	}
	cmd.Flags().StringVar(&serverFlags.ID, "id", "", "server id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createActionCommand(globalFlags *GlobalFlags, action, short string) *cobra.Command {
	serverFlags := &ServerFlags{}
	cmd := &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(globalFlags).Action(action, serverFlags.ID)
		},
	}
	cmd.Flags().StringVar(&serverFlags.ID, "id", "", "server id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createCreateCommand(globalFlags *GlobalFlags) *cobra.Command {
	createFlags := &CreateFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a server from a record file",
		Long: `Create a server from a JSON record file.

Examples:
  warden create --file=./survival.json
  warden template --type=java --name=survival   # Generate a starter file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(globalFlags).Create(createFlags.FilePath)
		},
	}
	cmd.Flags().StringVar(&createFlags.FilePath, "file", "", "path to JSON record file (required)")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}
	return cmd
}

func createDeleteCommand(globalFlags *GlobalFlags) *cobra.Command {
	deleteFlags := &DeleteFlags{}
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a server",
		Long: `Detach a server from the daemon. Without --purge the record file stays
on disk and the server reattaches on the next daemon start.

Examples:
  warden delete --id=<server-id>
  warden delete --id=<server-id> --purge`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(globalFlags).Delete(deleteFlags.ID, deleteFlags.Purge)
		},
	}
	cmd.Flags().StringVar(&deleteFlags.ID, "id", "", "server id (required)")
	cmd.Flags().BoolVar(&deleteFlags.Purge, "purge", false, "also remove the record file and rendered message")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createConsoleCommand(globalFlags *GlobalFlags) *cobra.Command {
	consoleFlags := &ConsoleFlags{}
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Write a line to a server's stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(globalFlags).Console(consoleFlags.ID, consoleFlags.Line)
		},
	}
	cmd.Flags().StringVar(&consoleFlags.ID, "id", "", "server id (required)")
	cmd.Flags().StringVar(&consoleFlags.Line, "line", "", "line to write (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("line"); err != nil {
		panic(err)
	}
	return cmd
}

func createPingCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check whether the daemon is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(globalFlags).Ping()
		},
	}
}

func createTemplateCommand() *cobra.Command {
	templateFlags := &TemplateFlags{}
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Generate a starter server record",
		Long: `Generate a starter record file for a common server setup. Edit it,
then register it with 'warden create --file'.

Supported template types:
  java      - Java edition server (vanilla, Paper, Forge)
  bedrock   - Bedrock edition server
  proxy     - Velocity/BungeeCord style proxy
  custom    - Minimal record with a start script

Examples:
  warden template --type=java --name=survival
  warden template --type=bedrock --name=pocket --output=./pocket.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplate(*templateFlags)
		},
	}
	cmd.Flags().StringVar(&templateFlags.Type, "type", "", "template type (required): java, bedrock, proxy, custom")
	cmd.Flags().StringVar(&templateFlags.Name, "name", "", "server name (defaults to type-sample)")
	cmd.Flags().StringVar(&templateFlags.Output, "output", "", "output file path (defaults to name.json)")
	cmd.Flags().BoolVar(&templateFlags.Force, "force", false, "overwrite an existing file")
	if err := cmd.MarkFlagRequired("type"); err != nil {
		panic(err)
	}
	return cmd
}
