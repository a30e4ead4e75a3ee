package main

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mcpatch-go/mcpatch/cmd"
	"github.com/mcpatch-go/mcpatch/internal/combine"
	"github.com/mcpatch-go/mcpatch/internal/tester"
)

func combineMain(command *cobra.Command, arguments []string) error {
	cfg, err := loadManagerConfig()
	if err != nil {
		return err
	}

	err = combine.Run(combine.Options{
		PublicDir: cfg.PublicDir,
		IndexPath: filepath.Join(cfg.PublicDir, "index.json"),
		Progress: func(t tester.Testing) {
			fmt.Printf("(%d/%d) testing %s:%s (%d+%d)\n", t.Index+1, t.Total, t.Label, t.Path, t.Offset, t.Len)
		},
	})
	if err != nil {
		return errors.Wrap(err, "combine failed")
	}

	fmt.Println("combine finished")
	return nil
}

var combineCommand = &cobra.Command{
	Use:   "combine",
	Short: "Collapse every recorded version into a single container",
	Args:  cmd.DisallowArguments,
	Run:   cmd.Mainify(combineMain),
}
