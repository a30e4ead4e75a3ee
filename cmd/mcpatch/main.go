// Command mcpatch is the manager CLI: it packs new versions from a
// workspace directory, combines the version history into a single
// container, self-tests a published index, and optionally serves the
// private protocol directly. Grounded on cmd/mutagen/main.go's root-command
// wiring.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpatch-go/mcpatch/cmd"
	"github.com/mcpatch-go/mcpatch/internal/logging"
)

// Version is the manager's reported version string.
const Version = "0.1.0"

func rootMain(command *cobra.Command, arguments []string) {
	if rootConfiguration.version {
		fmt.Println(Version)
		return
	}

	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "mcpatch",
	Short: "mcpatch packs, combines, tests, and serves incremental update archives",
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

	rootCommand.AddCommand(
		packCommand,
		combineCommand,
		testCommand,
		serveCommand,
	)
}

func main() {
	cmd.HandleTerminalCompatibility()

	logging.Root.AddSink(logging.NewConsoleSink(logging.LevelInfo))

	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
}
