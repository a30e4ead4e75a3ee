package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcpatch-go/mcpatch/internal/archive"
	"github.com/mcpatch-go/mcpatch/internal/filehash"
)

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestDiffDetectsAddedFile(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Unix(1700000000, 0)
	writeFile(t, filepath.Join(dir, "mods", "a.jar"), "hello", mtime)

	newer, err := NewDiskTree(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	older := NewHistory()

	d, err := Run(newer, older, nil)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if len(d.AddedFolders) != 1 || d.AddedFolders[0].Path() != "mods" {
		t.Fatalf("expected mods added folder, got %+v", d.AddedFolders)
	}
	if len(d.AddedFiles) != 1 || d.AddedFiles[0].Path() != "mods/a.jar" {
		t.Fatalf("expected mods/a.jar added file, got %+v", d.AddedFiles)
	}
}

func TestDiffDetectsModifiedFile(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Unix(1700000100, 0)
	writeFile(t, filepath.Join(dir, "a.txt"), "new-content", mtime)

	older := NewHistory()
	if err := older.UpdateFile("a.txt", filehash.HashBytes([]byte("old-content")), 11, 1700000000); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	newer, err := NewDiskTree(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	d, err := Run(newer, older, nil)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if len(d.ModifiedFiles) != 1 || d.ModifiedFiles[0].Path() != "a.txt" {
		t.Fatalf("expected a.txt modified, got %+v", d.ModifiedFiles)
	}
}

func TestDiffSameModifiedTimeIsUnchangedEvenIfHashDiffers(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Unix(1700000000, 0)
	writeFile(t, filepath.Join(dir, "a.txt"), "new-content", mtime)

	older := NewHistory()
	if err := older.UpdateFile("a.txt", filehash.HashBytes([]byte("old-content")), 11, 1700000000); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	newer, err := NewDiskTree(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	d, err := Run(newer, older, nil)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if d.HasDiff() {
		t.Fatalf("expected no diff when modified time matches, got %+v", d)
	}
}

func TestDiffDetectsMissingFile(t *testing.T) {
	older := NewHistory()
	if err := older.CreateFolder("mods"); err != nil {
		t.Fatalf("seed history: %v", err)
	}
	if err := older.UpdateFile("mods/old.jar", "hash", 1, 1700000000); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	newer, err := NewDiskTree(t.TempDir())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	d, err := Run(newer, older, nil)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if len(d.MissingFiles) != 1 || d.MissingFiles[0].Path() != "mods/old.jar" {
		t.Fatalf("expected mods/old.jar missing, got %+v", d.MissingFiles)
	}
	if len(d.MissingFolders) != 1 || d.MissingFolders[0].Path() != "mods" {
		t.Fatalf("expected mods missing folder, got %+v", d.MissingFolders)
	}
}

func TestDiffDetectsRename(t *testing.T) {
	dir := t.TempDir()
	content := "same-bytes"
	oldMtime := time.Unix(1700000000, 0)
	newMtime := time.Unix(1700000500, 0)

	writeFile(t, filepath.Join(dir, "b.jar"), content, newMtime)

	older := NewHistory()
	if err := older.UpdateFile("a.jar", filehash.HashBytes([]byte(content)), uint64(len(content)), oldMtime.Unix()); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	newer, err := NewDiskTree(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	d, err := Run(newer, older, nil)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if len(d.RenamedFiles) != 1 {
		t.Fatalf("expected exactly one rename, got %+v", d.RenamedFiles)
	}
	if d.RenamedFiles[0].From.Path() != "a.jar" || d.RenamedFiles[0].To.Path() != "b.jar" {
		t.Fatalf("unexpected rename pair: %+v", d.RenamedFiles[0])
	}
	if len(d.AddedFiles) != 0 || len(d.MissingFiles) != 0 {
		t.Fatalf("rename should consume its add/delete pair, got added=%+v missing=%+v", d.AddedFiles, d.MissingFiles)
	}
}

func TestDiffAmbiguousRenameFallsBackToAddDelete(t *testing.T) {
	dir := t.TempDir()
	content := "shared-bytes"
	newMtime := time.Unix(1700000500, 0)

	writeFile(t, filepath.Join(dir, "b.jar"), content, newMtime)
	writeFile(t, filepath.Join(dir, "c.jar"), content, newMtime)

	older := NewHistory()
	if err := older.UpdateFile("a.jar", filehash.HashBytes([]byte(content)), uint64(len(content)), 1700000000); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	newer, err := NewDiskTree(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	d, err := Run(newer, older, nil)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if len(d.RenamedFiles) != 0 {
		t.Fatalf("expected ambiguous rename to be discarded, got %+v", d.RenamedFiles)
	}
	if len(d.AddedFiles) != 2 {
		t.Fatalf("expected both candidates to remain as plain adds, got %+v", d.AddedFiles)
	}
	if len(d.MissingFiles) != 1 {
		t.Fatalf("expected source to remain missing, got %+v", d.MissingFiles)
	}
}

func TestDiffExcludeRuleHidesPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "server.log"), "log data", time.Unix(1700000000, 0))

	filter, err := NewRuleFilter([]string{`\.log$`})
	if err != nil {
		t.Fatalf("rule filter: %v", err)
	}

	newer, err := NewDiskTree(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	d, err := Run(newer, NewHistory(), filter)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if d.HasDiff() {
		t.Fatalf("expected excluded path to produce no diff, got %+v", d)
	}
}

func TestToFileChangesOrdering(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "new", "a.jar"), "data", time.Unix(1700000000, 0))

	older := NewHistory()
	if err := older.CreateFolder("gone"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := older.UpdateFile("gone/x.jar", "hash", 1, 1699999999); err != nil {
		t.Fatalf("seed: %v", err)
	}

	newer, err := NewDiskTree(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	d, err := Run(newer, older, nil)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	changes, err := d.ToFileChanges()
	if err != nil {
		t.Fatalf("to file changes: %v", err)
	}

	var ops []archive.Operation
	for _, c := range changes {
		ops = append(ops, c.Operation)
	}

	// deletes-of-files, creates-of-folders, moves, updates, deletes-of-folders
	expectFirstDeleteFile := ops[0] == archive.OpDeleteFile
	expectLastDeleteFolder := ops[len(ops)-1] == archive.OpDeleteFolder

	if !expectFirstDeleteFile {
		t.Fatalf("expected file deletes first, got %v", ops)
	}
	if !expectLastDeleteFolder {
		t.Fatalf("expected folder deletes last, got %v", ops)
	}
}
