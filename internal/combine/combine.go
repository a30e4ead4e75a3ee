// Package combine implements the manager's "combine" operation: collapse
// every version in the index into a single container, preserving each
// live file under its original recorded path rather than its current
// (possibly moved) one, then atomically swap the new container and index
// in. Grounded on manager/src/subcommand/combine.rs.
package combine

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/mcpatch-go/mcpatch/internal/archive"
	"github.com/mcpatch-go/mcpatch/internal/logging"
	"github.com/mcpatch-go/mcpatch/internal/mcerror"
	"github.com/mcpatch-go/mcpatch/internal/tester"
)

// CombinedFilename is the reserved container name a combine produces.
const CombinedFilename = "combined.mcpatch"

// Options configures a combine run.
type Options struct {
	PublicDir string
	IndexPath string
	Progress  func(tester.Testing)
	Log       *logging.Logger
}

// location is where one live file's payload currently lives. The map of
// locations is keyed by the file's current path (re-keyed on every move);
// path keeps the path its payload was originally recorded under.
type location struct {
	label    string
	filename string
	path     string
	offset   uint64
	length   uint64
}

// Run executes the seven-step combine procedure: self-test the current
// index, replay every version while tracking live data by original path,
// write a new combined container streaming only live payloads, rewrite
// every index entry to point at it, self-test the result, then atomically
// swap it in and delete the old containers. On a failure before the swap
// the temporary container is removed and the index and existing containers
// are left as they were. The swap removes any existing combined container,
// renames the temporary one into its place, saves the rewritten index, and
// only then deletes the old containers; a failure during the swap returns
// at once without restoring what it had already replaced.
func Run(opts Options) error {
	log := opts.Log
	if log == nil {
		log = logging.Root
	}

	idx, err := archive.LoadIndexFile(opts.IndexPath)
	if err != nil {
		return mcerror.Wrap(err, mcerror.KindIO, "loading index file %q", opts.IndexPath)
	}

	log.Debug("testing current index before combining")
	if err := selfTestIndex(idx, opts.PublicDir, nil); err != nil {
		return mcerror.Wrap(err, mcerror.KindCorruptArchive, "refusing to combine: current index fails self-test")
	}

	var toRemove []string
	for _, v := range idx.All() {
		if v.Filename != CombinedFilename {
			toRemove = append(toRemove, v.Filename)
		}
	}
	if len(toRemove) == 0 {
		log.Info("nothing to combine")
		return nil
	}

	log.Debug("replaying versions")

	locations := make(map[string]location)
	var combined archive.MetaGroup
	seenMeta := make(map[string]bool)
	seenRange := make(map[string]bool)

	for _, v := range idx.All() {
		rangeKey := v.Filename + "|" + strconv.FormatUint(v.Offset, 10) + "|" + strconv.FormatUint(v.Length, 10)
		if seenRange[rangeKey] {
			continue
		}
		seenRange[rangeKey] = true

		reader := archive.NewReader(filepath.Join(opts.PublicDir, v.Filename))
		group, err := reader.ReadMetadataGroup(v.Offset, v.Length)
		if err != nil {
			return mcerror.Wrap(err, mcerror.KindCorruptArchive, "reading metadata for %q", v.Label)
		}

		for _, meta := range group {
			if seenMeta[meta.Label] {
				continue
			}
			seenMeta[meta.Label] = true

			for _, change := range meta.Changes {
				switch change.Operation {
				case archive.OpUpdateFile:
					locations[change.Path] = location{
						label:    meta.Label,
						filename: v.Filename,
						path:     change.Path,
						offset:   change.Offset,
						length:   change.Len,
					}
				case archive.OpDeleteFile:
					delete(locations, change.Path)
				case archive.OpMoveFile:
					if loc, ok := locations[change.From]; ok {
						delete(locations, change.From)
						locations[change.To] = loc
					}
				}
			}

			combined = append(combined, meta)
		}
	}

	log.Debug("writing combined container")

	tempContainer := filepath.Join(opts.PublicDir, "_combined.temp.mcpatch")
	writer, err := archive.NewWriter(tempContainer)
	if err != nil {
		return mcerror.Wrap(err, mcerror.KindIO, "creating %q", tempContainer)
	}

	for _, loc := range locations {
		rc, err := archive.NewReader(filepath.Join(opts.PublicDir, loc.filename)).OpenFile(loc.offset, loc.length)
		if err != nil {
			writer.Abort()
			return mcerror.Wrap(err, mcerror.KindIO, "opening %q from %q", loc.path, loc.filename)
		}

		// Streamed under the file's ORIGINAL recorded path, not any path it
		// was later moved to: the metadata's UpdateFile.Path already carries
		// that original path, since the diff engine never rewrites a prior
		// version's change records.
		err = writer.AddFile(rc, loc.length, loc.path, loc.label)
		rc.Close()
		if err != nil {
			writer.Abort()
			return mcerror.Wrap(err, mcerror.KindIO, "writing %q into combined container", loc.path)
		}
	}

	log.Debug("writing combined metadata")

	metaLoc, err := writer.Finish(combined)
	if err != nil {
		os.Remove(tempContainer)
		return mcerror.Wrap(err, mcerror.KindIO, "finalizing combined container")
	}

	newIndex := archive.NewIndexFile()
	for _, v := range idx.All() {
		newIndex.Add(archive.VersionIndex{
			Label:    v.Label,
			Filename: CombinedFilename,
			Offset:   metaLoc.Offset,
			Length:   metaLoc.Length,
			Hash:     archive.NoHash,
		})
	}

	log.Debug("testing combined container")

	if err := selfTestCombined(tempContainer, metaLoc, opts.Progress); err != nil {
		os.Remove(tempContainer)
		return mcerror.Wrap(err, mcerror.KindCorruptArchive, "combined container failed self-test, rolled back")
	}

	finalContainer := filepath.Join(opts.PublicDir, CombinedFilename)
	os.Remove(finalContainer)
	if err := os.Rename(tempContainer, finalContainer); err != nil {
		os.Remove(tempContainer)
		return mcerror.Wrap(err, mcerror.KindIO, "swapping in combined container")
	}

	if err := newIndex.Save(opts.IndexPath); err != nil {
		return mcerror.Wrap(err, mcerror.KindIO, "saving combined index")
	}

	for _, filename := range toRemove {
		os.Remove(filepath.Join(opts.PublicDir, filename))
	}

	log.Infof("combined %d versions", len(combined))

	return nil
}

func selfTestIndex(idx *archive.IndexFile, publicDir string, progress func(tester.Testing)) error {
	t := tester.New()
	for _, v := range idx.All() {
		if err := t.Feed(filepath.Join(publicDir, v.Filename), v.Offset, v.Length); err != nil {
			return err
		}
	}
	return t.Finish(progress)
}

func selfTestCombined(containerPath string, loc archive.MetadataLocation, progress func(tester.Testing)) error {
	t := tester.New()
	if err := t.Feed(containerPath, loc.Offset, loc.Length); err != nil {
		return err
	}
	return t.Finish(progress)
}
