// Package pack implements the manager's "pack a new version" operation:
// diff the workspace against replayed history, write the changed payloads
// into a new container, append an index entry, and self-test the whole
// index before committing. Grounded on manager/src/task/pack.rs.
package pack

import (
	"os"
	"path/filepath"

	"github.com/mcpatch-go/mcpatch/internal/archive"
	"github.com/mcpatch-go/mcpatch/internal/core"
	"github.com/mcpatch-go/mcpatch/internal/logging"
	"github.com/mcpatch-go/mcpatch/internal/mcerror"
	"github.com/mcpatch-go/mcpatch/internal/tester"
)

// Options configures a single pack run.
type Options struct {
	// WorkspaceDir is the directory to scan as the "newer" tree.
	WorkspaceDir string

	// PublicDir is where containers and the index file live.
	PublicDir string

	// IndexPath is the full path to index.json.
	IndexPath string

	// Label is the new version's identifier. It must not already appear in
	// the index.
	Label string

	// ChangeLogs is freeform text recorded alongside the version.
	ChangeLogs string

	// ExcludeRules are regular expressions; matching paths are invisible to
	// the diff entirely.
	ExcludeRules []string

	// Progress, if non-nil, is called once per file during the post-pack
	// self-test.
	Progress func(tester.Testing)

	Log *logging.Logger
}

// Result summarizes a successful pack.
type Result struct {
	Filename string
	Diff     *core.Diff
}

// Run executes the nine-step pack procedure: load the index, replay
// history, diff against the workspace, write a new container, finalize its
// metadata, append and self-test the index, rolling back the new container
// on self-test failure.
func Run(opts Options) (*Result, error) {
	log := opts.Log
	if log == nil {
		log = logging.Root
	}

	idx, err := archive.LoadIndexFile(opts.IndexPath)
	if err != nil {
		return nil, mcerror.Wrap(err, mcerror.KindIO, "loading index file %q", opts.IndexPath)
	}

	if idx.Contains(opts.Label) {
		return nil, mcerror.New(mcerror.KindLabelExists, "version %q already exists", opts.Label)
	}

	log.Debugf("replaying %d prior versions", idx.Len())

	history := core.NewHistory()
	for _, v := range idx.All() {
		reader := archive.NewReader(filepath.Join(opts.PublicDir, v.Filename))

		group, err := reader.ReadMetadataGroup(v.Offset, v.Length)
		if err != nil {
			return nil, mcerror.Wrap(err, mcerror.KindCorruptArchive, "reading metadata for version %q", v.Label)
		}

		if err := history.ReplayGroup(group); err != nil {
			return nil, mcerror.Wrap(err, mcerror.KindCorruptArchive, "replaying version %q", v.Label)
		}
	}

	filter, err := core.NewRuleFilter(opts.ExcludeRules)
	if err != nil {
		return nil, mcerror.Wrap(err, mcerror.KindConfigInvalid, "compiling exclude rules")
	}

	log.Debug("scanning workspace")

	disk, err := core.NewDiskTree(opts.WorkspaceDir)
	if err != nil {
		return nil, mcerror.Wrap(err, mcerror.KindIO, "scanning workspace %q", opts.WorkspaceDir)
	}

	diff, err := core.Run(disk, history, filter)
	if err != nil {
		return nil, err
	}

	if !diff.HasDiff() {
		return nil, mcerror.New(mcerror.KindNoChanges, "workspace has no changes since the last version")
	}

	log.Info(diff.String())

	if err := os.MkdirAll(opts.PublicDir, 0o755); err != nil {
		return nil, mcerror.Wrap(err, mcerror.KindIO, "creating public directory %q", opts.PublicDir)
	}

	filename := opts.Label + ".mcpatch"
	containerPath := filepath.Join(opts.PublicDir, filename)

	writer, err := archive.NewWriter(containerPath)
	if err != nil {
		return nil, mcerror.Wrap(err, mcerror.KindIO, "creating container %q", containerPath)
	}

	toWrite := make([]core.FileNode, 0, len(diff.AddedFiles)+len(diff.ModifiedFiles))
	toWrite = append(toWrite, diff.AddedFiles...)
	toWrite = append(toWrite, diff.ModifiedFiles...)

	for i, f := range toWrite {
		log.Debugf("packing (%d/%d) %s", i+1, len(toWrite), f.Path())

		if err := writePayload(writer, opts.WorkspaceDir, opts.Label, f); err != nil {
			writer.Abort()
			return nil, err
		}
	}

	changes, err := diff.ToFileChanges()
	if err != nil {
		writer.Abort()
		return nil, err
	}

	meta := archive.VersionMeta{Label: opts.Label, Logs: opts.ChangeLogs, Changes: changes}
	group := archive.MetaGroup{meta}

	log.Debug("writing metadata")

	loc, err := writer.Finish(group)
	if err != nil {
		os.Remove(containerPath)
		return nil, mcerror.Wrap(err, mcerror.KindIO, "finalizing container %q", containerPath)
	}

	idx.Add(archive.VersionIndex{
		Label:    opts.Label,
		Filename: filename,
		Offset:   loc.Offset,
		Length:   loc.Length,
		Hash:     archive.NoHash,
	})

	log.Debug("testing full index")

	if err := selfTest(idx, opts.PublicDir, opts.Progress); err != nil {
		os.Remove(containerPath)
		return nil, mcerror.Wrap(err, mcerror.KindCorruptArchive, "self-test failed after packing %q, rolled back", opts.Label)
	}

	if err := idx.Save(opts.IndexPath); err != nil {
		os.Remove(containerPath)
		return nil, mcerror.Wrap(err, mcerror.KindIO, "saving index file %q", opts.IndexPath)
	}

	log.Info("packed and verified successfully")

	return &Result{Filename: filename, Diff: diff}, nil
}

// writePayload streams a single changed file from the workspace into the
// container, aborting if its actual on-disk size no longer matches the size
// observed during diffing (the workspace changed out from under the pack).
func writePayload(writer *archive.Writer, workspaceDir, label string, f core.FileNode) error {
	path := f.Path()
	diskPath := filepath.Join(workspaceDir, filepath.FromSlash(path))

	file, err := os.Open(diskPath)
	if err != nil {
		return mcerror.Wrap(err, mcerror.KindIO, "opening %q for packing", diskPath)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return mcerror.Wrap(err, mcerror.KindIO, "stat %q", diskPath)
	}

	if uint64(info.Size()) != f.Len() {
		return mcerror.New(mcerror.KindIO, "size of %q changed during packing (expected %d, found %d)", path, f.Len(), info.Size())
	}

	return writer.AddFile(file, f.Len(), path, label)
}

// selfTest feeds every version in idx through a fresh Tester and runs it to
// completion.
func selfTest(idx *archive.IndexFile, publicDir string, progress func(tester.Testing)) error {
	t := tester.New()

	for _, v := range idx.All() {
		if err := t.Feed(filepath.Join(publicDir, v.Filename), v.Offset, v.Length); err != nil {
			return err
		}
	}

	return t.Finish(progress)
}
