package main

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mcpatch-go/mcpatch/cmd"
	"github.com/mcpatch-go/mcpatch/internal/archive"
	"github.com/mcpatch-go/mcpatch/internal/tester"
)

func testMain(command *cobra.Command, arguments []string) error {
	cfg, err := loadManagerConfig()
	if err != nil {
		return err
	}

	indexPath := filepath.Join(cfg.PublicDir, "index.json")
	idx, err := archive.LoadIndexFile(indexPath)
	if err != nil {
		return errors.Wrapf(err, "unable to load index %q", indexPath)
	}

	err = tester.RunIndex(idx, cfg.PublicDir, func(t tester.Testing) {
		fmt.Printf("(%d/%d) testing %s:%s (%d+%d)\n", t.Index+1, t.Total, t.Label, t.Path, t.Offset, t.Len)
	})
	if err != nil {
		return errors.Wrap(err, "archive test failed")
	}

	fmt.Println("archive is consistent")
	return nil
}

var testCommand = &cobra.Command{
	Use:   "test",
	Short: "Verify every live file's content against its recorded hash",
	Args:  cmd.DisallowArguments,
	Run:   cmd.Mainify(testMain),
}
