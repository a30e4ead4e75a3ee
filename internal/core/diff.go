package core

import (
	"fmt"

	"github.com/mcpatch-go/mcpatch/internal/archive"
)

// Diff is the result of comparing a newer tree (typically a live workspace
// scan) against an older tree (typically a replayed version history),
// ported from manager/src/diff/diff.rs. Fields hold FileNode values rather
// than concrete DiskNode/HistoryNode types so either side of a comparison
// can come from any FileNode implementation.
type Diff struct {
	AddedFolders  []FileNode
	AddedFiles    []FileNode
	ModifiedFiles []FileNode
	MissingFolders []FileNode
	MissingFiles   []FileNode
	RenamedFiles   []Rename

	filter *RuleFilter
}

// Rename pairs an older-side source with a newer-side destination for a
// single detected move.
type Rename struct {
	From FileNode
	To   FileNode
}

// Run computes the diff between newer and older. filter may be nil, in
// which case nothing is excluded.
func Run(newer, older FileNode, filter *RuleFilter) (*Diff, error) {
	if filter == nil {
		var err error
		filter, err = NewRuleFilter(nil)
		if err != nil {
			return nil, err
		}
	}

	d := &Diff{filter: filter}

	if err := d.findAdded(newer, older); err != nil {
		return nil, err
	}
	if err := d.findMissing(newer, older); err != nil {
		return nil, err
	}
	if err := d.findModified(newer, older); err != nil {
		return nil, err
	}
	if err := d.detectMovings(); err != nil {
		return nil, err
	}

	return d, nil
}

// HasDiff reports whether any bucket is non-empty.
func (d *Diff) HasDiff() bool {
	return len(d.AddedFolders) > 0 ||
		len(d.AddedFiles) > 0 ||
		len(d.ModifiedFiles) > 0 ||
		len(d.MissingFolders) > 0 ||
		len(d.MissingFiles) > 0 ||
		len(d.RenamedFiles) > 0
}

func (d *Diff) visible(path string) bool {
	return d.filter.Visible(path)
}

// findAdded walks newer's files looking for entries absent from older, or
// present under a mismatched kind (directory vs file), recursing into
// directories that exist on both sides.
func (d *Diff) findAdded(newer, older FileNode) error {
	children, err := newer.Children()
	if err != nil {
		return err
	}

	for _, n := range children {
		if !d.visible(n.Path()) {
			continue
		}

		o, ok, err := findChildNode(older, n.Name())
		if err != nil {
			return err
		}

		if !ok {
			if err := d.markAsAdded(n); err != nil {
				return err
			}
			continue
		}

		switch {
		case n.IsDir() && o.IsDir():
			if err := d.findAdded(n, o); err != nil {
				return err
			}
		case n.IsDir() != o.IsDir():
			// A type change (file<->directory) is handled as delete-then-add:
			// this pass contributes the add half.
			if err := d.markAsAdded(n); err != nil {
				return err
			}
		default:
			// Both files: left to findModified.
		}
	}

	return nil
}

// findMissing is findAdded's mirror image, walking older's files.
func (d *Diff) findMissing(newer, older FileNode) error {
	children, err := older.Children()
	if err != nil {
		return err
	}

	for _, o := range children {
		if !d.visible(o.Path()) {
			continue
		}

		n, ok, err := findChildNode(newer, o.Name())
		if err != nil {
			return err
		}

		if !ok {
			d.markAsMissing(o)
			continue
		}

		switch {
		case o.IsDir() && n.IsDir():
			if err := d.findMissing(n, o); err != nil {
				return err
			}
		case o.IsDir() != n.IsDir():
			d.markAsMissing(o)
		default:
			// Both files: left to findModified.
		}
	}

	return nil
}

// findModified walks newer's files a second time, comparing file pairs that
// exist as files on both sides.
func (d *Diff) findModified(newer, older FileNode) error {
	children, err := newer.Children()
	if err != nil {
		return err
	}

	for _, n := range children {
		if !d.visible(n.Path()) {
			continue
		}

		o, ok, err := findChildNode(older, n.Name())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		switch {
		case n.IsDir() && o.IsDir():
			if err := d.findModified(n, o); err != nil {
				return err
			}
		case n.IsDir() != o.IsDir():
			// Handled by findAdded/findMissing.
		default:
			same, err := compareFile(n, o)
			if err != nil {
				return err
			}
			if !same {
				d.markAsModified(n)
			}
		}
	}

	return nil
}

func findChildNode(dir FileNode, name string) (FileNode, bool, error) {
	children, err := dir.Children()
	if err != nil {
		return nil, false, err
	}
	c, ok := findChild(children, name)
	return c, ok, nil
}

// compareFile implements core's equality rule: same whole-second modified
// time, or same content hash.
func compareFile(n, o FileNode) (bool, error) {
	if n.Modified() == o.Modified() {
		return true, nil
	}

	nHash, err := n.Hash()
	if err != nil {
		return false, err
	}
	oHash, err := o.Hash()
	if err != nil {
		return false, err
	}

	return nHash == oHash, nil
}

func (d *Diff) markAsMissing(file FileNode) {
	if file.IsDir() {
		children, err := file.Children()
		if err == nil {
			for _, f := range children {
				d.markAsMissing(f)
			}
		}
		d.MissingFolders = append(d.MissingFolders, file)
	} else {
		d.MissingFiles = append(d.MissingFiles, file)
	}
}

func (d *Diff) markAsAdded(file FileNode) error {
	if !d.visible(file.Path()) {
		return nil
	}

	if file.IsDir() {
		d.AddedFolders = append(d.AddedFolders, file)

		children, err := file.Children()
		if err != nil {
			return err
		}
		for _, f := range children {
			if err := d.markAsAdded(f); err != nil {
				return err
			}
		}
	} else {
		d.AddedFiles = append(d.AddedFiles, file)
	}

	return nil
}

func (d *Diff) markAsModified(file FileNode) {
	if !d.visible(file.Path()) {
		return
	}
	d.ModifiedFiles = append(d.ModifiedFiles, file)
}

// detectMovings finds rename pairs among the added/missing file buckets and
// collapses each pair's add+delete into a single move, per diff.rs: a
// candidate pair is a (missing, added) file whose modified times differ
// (otherwise compareFile would already have treated it as unchanged) and
// whose content hashes match. Sources with more than one candidate
// destination are ambiguous and are left as plain add+delete rather than
// guessed at.
func (d *Diff) detectMovings() error {
	type candidate struct {
		from FileNode
		to   FileNode
	}

	var candidates []candidate

	for _, added := range d.AddedFiles {
		for _, missing := range d.MissingFiles {
			if added.Modified() == missing.Modified() {
				continue
			}

			addedHash, err := added.Hash()
			if err != nil {
				return err
			}
			missingHash, err := missing.Hash()
			if err != nil {
				return err
			}

			if addedHash == missingHash {
				candidates = append(candidates, candidate{from: missing, to: added})
			}
		}
	}

	seen := make(map[string]bool)
	ambiguous := make(map[string]bool)

	for _, c := range candidates {
		path := c.from.Path()
		if seen[path] {
			ambiguous[path] = true
		} else {
			seen[path] = true
		}
	}

	renames := make([]Rename, 0, len(candidates))
	for _, c := range candidates {
		if ambiguous[c.from.Path()] {
			continue
		}
		renames = append(renames, Rename{From: c.from, To: c.to})
	}

	d.RenamedFiles = renames

	movedTo := make(map[string]bool)
	movedFrom := make(map[string]bool)
	for _, r := range d.RenamedFiles {
		movedTo[r.To.Path()] = true
		movedFrom[r.From.Path()] = true
	}

	filteredAdded := d.AddedFiles[:0:0]
	for _, f := range d.AddedFiles {
		if !movedTo[f.Path()] {
			filteredAdded = append(filteredAdded, f)
		}
	}
	d.AddedFiles = filteredAdded

	filteredMissing := d.MissingFiles[:0:0]
	for _, f := range d.MissingFiles {
		if !movedFrom[f.Path()] {
			filteredMissing = append(filteredMissing, f)
		}
	}
	d.MissingFiles = filteredMissing

	return nil
}

// ToFileChanges renders the diff into the container format's change record
// order: deletes-of-files, creates-of-folders, moves, updates (added then
// modified), deletes-of-folders (core §9 ordering).
func (d *Diff) ToFileChanges() ([]archive.FileChange, error) {
	changes := make([]archive.FileChange, 0,
		len(d.MissingFiles)+len(d.AddedFolders)+len(d.RenamedFiles)+len(d.AddedFiles)+len(d.ModifiedFiles)+len(d.MissingFolders))

	for _, f := range d.MissingFiles {
		changes = append(changes, archive.DeleteFile(f.Path()))
	}

	for _, f := range d.AddedFolders {
		changes = append(changes, archive.CreateFolder(f.Path()))
	}

	for _, r := range d.RenamedFiles {
		changes = append(changes, archive.MoveFile(r.From.Path(), r.To.Path()))
	}

	for _, f := range d.AddedFiles {
		c, err := fileToUpdateChange(f)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}

	for _, f := range d.ModifiedFiles {
		c, err := fileToUpdateChange(f)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}

	for _, f := range d.MissingFolders {
		changes = append(changes, archive.DeleteFolder(f.Path()))
	}

	return changes, nil
}

func fileToUpdateChange(f FileNode) (archive.FileChange, error) {
	hash, err := f.Hash()
	if err != nil {
		return archive.FileChange{}, err
	}

	// Offset is provisional; a container Writer rewrites it once the
	// payload's actual tar-offset is known.
	return archive.UpdateFile(f.Path(), hash, f.Len(), f.Modified(), 0), nil
}

// String renders a short one-line summary, matching diff.rs's Display impl.
func (d *Diff) String() string {
	return fmt.Sprintf("Diff (created-directories: %d, updated-files: %d, modified-files: %d, deleted-directories: %d, deleted-files: %d, moved-files: %d)",
		len(d.AddedFolders), len(d.AddedFiles), len(d.ModifiedFiles), len(d.MissingFolders), len(d.MissingFiles), len(d.RenamedFiles))
}
