package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mcpatch-go/mcpatch/cmd"
	"github.com/mcpatch-go/mcpatch/internal/pack"
	"github.com/mcpatch-go/mcpatch/internal/tester"
)

func packMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("a version label must be provided")
	}
	label := arguments[0]

	cfg, err := loadManagerConfig()
	if err != nil {
		return err
	}

	result, err := pack.Run(pack.Options{
		WorkspaceDir: cfg.WorkspaceDir,
		PublicDir:    cfg.PublicDir,
		IndexPath:    filepath.Join(cfg.PublicDir, "index.json"),
		Label:        label,
		ChangeLogs:   packConfiguration.changelog,
		ExcludeRules: cfg.ExcludeRules,
		Progress: func(t tester.Testing) {
			fmt.Printf("(%d/%d) testing %s:%s (%d+%d)\n", t.Index+1, t.Total, t.Label, t.Path, t.Offset, t.Len)
		},
	})
	if err != nil {
		return errors.Wrap(err, "pack failed")
	}

	size := "unknown size"
	if info, statErr := os.Stat(filepath.Join(cfg.PublicDir, result.Filename)); statErr == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}

	fmt.Printf("packed version %q into %s, %s (%d file(s) added, %d modified, %d deleted)\n",
		label, result.Filename, size, len(result.Diff.AddedFiles), len(result.Diff.ModifiedFiles), len(result.Diff.MissingFiles))

	return nil
}

var packCommand = &cobra.Command{
	Use:   "pack <version-label>",
	Short: "Pack the workspace directory's current state into a new version",
	Run:   cmd.Mainify(packMain),
}

var packConfiguration struct {
	changelog string
}

func init() {
	flags := packCommand.Flags()
	flags.StringVarP(&packConfiguration.changelog, "changelog", "c", "", "changelog text recorded alongside the version")
}
