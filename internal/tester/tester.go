// Package tester implements the archive self-test the packer and combiner
// both run before committing a new index: replay every version's changes,
// then re-hash every live file against its recorded origin and compare to
// the declared hash. Grounded on manager/src/core/archive_tester.rs.
package tester

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mcpatch-go/mcpatch/internal/archive"
	"github.com/mcpatch-go/mcpatch/internal/core"
	"github.com/mcpatch-go/mcpatch/internal/filehash"
)

// location is where a live file's payload currently resides: which
// container, at what byte range, and under which version's label.
type location struct {
	archivePath string
	offset      uint64
	length      uint64
	label       string
}

// Testing describes the file currently being verified, reported through
// Finish's progress callback.
type Testing struct {
	Index  int
	Total  int
	Label  string
	Path   string
	Offset uint64
	Len    uint64
}

// Failure reports a live file whose re-hashed content does not match its
// declared hash.
type Failure struct {
	Path     string
	Label    string
	Actual   string
	Expected string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("archive test failed: %s (version %s): expected hash %s, got %s", f.Path, f.Label, f.Expected, f.Actual)
}

// Tester accumulates every version fed to it into a virtual file tree and a
// file-to-origin location map, then verifies every surviving file's content
// once Finish is called. A Tester must be finished exactly once.
type Tester struct {
	fileLocations map[string]location
	history       *core.HistoryNode
	finished      bool
}

// New creates an empty Tester.
func New() *Tester {
	return &Tester{
		fileLocations: make(map[string]location),
		history:       core.NewHistory(),
	}
}

// Feed replays one container's metadata group (read from archivePath at the
// given offset/length) against the tester's running tree, and records or
// forgets file origins as UpdateFile/DeleteFile/MoveFile changes dictate.
func (t *Tester) Feed(archivePath string, offset, length uint64) error {
	if t.finished {
		return errors.New("tester: Feed called after Finish")
	}

	reader := archive.NewReader(archivePath)
	group, err := reader.ReadMetadataGroup(offset, length)
	if err != nil {
		return errors.Wrapf(err, "reading metadata group from %q", archivePath)
	}

	for _, meta := range group {
		if err := t.history.ReplayVersion(meta); err != nil {
			return err
		}

		for _, change := range meta.Changes {
			switch change.Operation {
			case archive.OpUpdateFile:
				t.fileLocations[change.Path] = location{
					archivePath: archivePath,
					offset:      change.Offset,
					length:      change.Len,
					label:       meta.Label,
				}
			case archive.OpDeleteFile:
				delete(t.fileLocations, change.Path)
			case archive.OpMoveFile:
				if loc, ok := t.fileLocations[change.From]; ok {
					delete(t.fileLocations, change.From)
					t.fileLocations[change.To] = loc
				}
			}
		}
	}

	return nil
}

// Finish replays the accumulated tree against an empty one to enumerate
// every currently-live file, then re-opens and re-hashes each one from its
// recorded origin, comparing against the hash declared at replay time.
// progress is called once per file before it is verified. Finish must be
// called exactly once; calling Feed afterward is an error.
func (t *Tester) Finish(progress func(Testing)) error {
	t.finished = true

	diff, err := core.Run(t.history, core.NewHistory(), nil)
	if err != nil {
		return err
	}

	files := make([]core.FileNode, 0, len(diff.AddedFiles)+len(diff.ModifiedFiles))
	files = append(files, diff.AddedFiles...)
	files = append(files, diff.ModifiedFiles...)

	total := len(files)

	for index, f := range files {
		path := f.Path()

		loc, ok := t.fileLocations[path]
		if !ok {
			return errors.Errorf("tester: no recorded origin for live file %q", path)
		}

		if progress != nil {
			progress(Testing{Index: index, Total: total, Label: loc.label, Path: path, Offset: loc.offset, Len: loc.length})
		}

		rc, err := archive.NewReader(loc.archivePath).OpenFile(loc.offset, loc.length)
		if err != nil {
			return errors.Wrapf(err, "opening %q at offset %d", loc.archivePath, loc.offset)
		}

		actual, err := filehash.Hash(rc)
		closeErr := rc.Close()
		if err != nil {
			return errors.Wrapf(err, "hashing %q", path)
		}
		if closeErr != nil {
			return errors.Wrapf(closeErr, "closing %q", path)
		}

		expected, err := f.Hash()
		if err != nil {
			return err
		}

		if actual != expected {
			return &Failure{Path: path, Label: loc.label, Actual: actual, Expected: expected}
		}
	}

	return nil
}

// RunIndex feeds every version recorded in idx, with containers resolved
// under publicDir, into a fresh Tester and finishes it. It is the shape the
// "test" subcommand and the packer/combiner's own pre-flight checks all
// share.
func RunIndex(idx *archive.IndexFile, publicDir string, progress func(Testing)) error {
	t := New()
	for _, v := range idx.All() {
		if err := t.Feed(filepath.Join(publicDir, v.Filename), v.Offset, v.Length); err != nil {
			return err
		}
	}
	return t.Finish(progress)
}
