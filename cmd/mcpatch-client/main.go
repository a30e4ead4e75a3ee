// Command mcpatch-client is the client CLI: it checks the configured
// servers for a newer version and applies it to a local installation.
// Grounded on cmd/mutagen/main.go's root-command wiring and
// mcpatch-client/src/main.rs's non-GUI entry point.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpatch-go/mcpatch/cmd"
	"github.com/mcpatch-go/mcpatch/internal/logging"
)

// Version is the client's reported version string.
const Version = "0.1.0"

func rootMain(command *cobra.Command, arguments []string) {
	if rootConfiguration.version {
		fmt.Println(Version)
		return
	}

	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "mcpatch-client",
	Short: "mcpatch-client brings a local installation up to date from an mcpatch server",
	Run:   rootMain,
}

var rootConfiguration struct {
	help    bool
	version bool
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Show version information")

	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(updateCommand)
}

func main() {
	cmd.HandleTerminalCompatibility()

	logging.Root.AddSink(logging.NewConsoleSink(logging.LevelInfo))

	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
}
