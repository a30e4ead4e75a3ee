package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mcpatch-go/mcpatch/cmd"
	mcpatchclient "github.com/mcpatch-go/mcpatch/internal/client"
	"github.com/mcpatch-go/mcpatch/internal/config"
	"github.com/mcpatch-go/mcpatch/internal/logging"
	"github.com/mcpatch-go/mcpatch/internal/transport"
)

func updateMain(command *cobra.Command, arguments []string) error {
	cfg, err := config.LoadClientConfig(updateConfiguration.config)
	if err != nil {
		// AllowError lives inside the file that just failed to load, so
		// there is no configured preference to honor yet; a missing or
		// unparsable configuration is always fatal.
		return errors.Wrap(err, "unable to load client configuration")
	}

	network, err := transport.FromClientConfig(cfg)
	if err != nil {
		return failOrWarn(cfg, errors.Wrap(err, "unable to build fetch layer"))
	}

	exePath, err := os.Executable()
	if err != nil {
		return failOrWarn(cfg, errors.Wrap(err, "unable to determine the running executable's path"))
	}

	logFilePath := filepath.Join(filepath.Dir(exePath), "mcpatch-client.log.txt")

	var status cmd.StatusLinePrinter
	result, err := mcpatchclient.Run(mcpatchclient.Options{
		Config:      cfg,
		Network:     network,
		BaseDir:     cfg.BaseDir,
		SelfPath:    exePath,
		LogFilePath: logFilePath,
		Log:         logging.Root.Sublogger("update"),
		Progress: func(downloaded, total, bytesPerSecond uint64) {
			if total == 0 {
				return
			}
			status.Print(fmt.Sprintf("downloading: %s/%s (%s/s)",
				humanize.Bytes(downloaded), humanize.Bytes(total), humanize.Bytes(bytesPerSecond)))
		},
	})
	status.BreakIfNonEmpty()
	if err != nil {
		return failOrWarn(cfg, errors.Wrap(err, "update failed"))
	}

	if result.UpToDate {
		fmt.Printf("already up to date: %s\n", result.PreviousVersion)
		return nil
	}

	fmt.Printf("updated %s -> %s\n", result.PreviousVersion, result.NewVersion)
	if result.Changelog != "" {
		fmt.Println(result.Changelog)
	}

	return nil
}

// failOrWarn implements the original's allow_error behavior: a
// misconfigured or unreachable update is reported but not fatal when the
// client configuration opts in.
func failOrWarn(cfg *config.ClientConfig, err error) error {
	if cfg != nil && cfg.AllowError {
		logging.Warnf("continuing past update error: %v", err)
		return nil
	}
	return err
}

var updateCommand = &cobra.Command{
	Use:   "update",
	Short: "Check for and apply an update from the configured servers",
	Args:  cmd.DisallowArguments,
	Run:   cmd.Mainify(updateMain),
}

var updateConfiguration struct {
	config string
}

func init() {
	flags := updateCommand.Flags()
	flags.StringVarP(&updateConfiguration.config, "config", "c", "mcpatch-client.yml", "path to the client configuration file")
}
