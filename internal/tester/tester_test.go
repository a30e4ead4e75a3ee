package tester

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcpatch-go/mcpatch/internal/archive"
	"github.com/mcpatch-go/mcpatch/internal/filehash"
)

func buildContainer(t *testing.T, path string, label string, files map[string][]byte) archive.VersionIndex {
	t.Helper()

	w, err := archive.NewWriter(path)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	var changes []archive.FileChange
	created := make(map[string]bool)
	for name := range files {
		if i := strings.LastIndex(name, "/"); i > 0 && !created[name[:i]] {
			created[name[:i]] = true
			changes = append(changes, archive.CreateFolder(name[:i]))
		}
	}
	for name, content := range files {
		if err := w.AddFile(bytes.NewReader(content), uint64(len(content)), name, label); err != nil {
			t.Fatalf("add file %q: %v", name, err)
		}
		changes = append(changes, archive.UpdateFile(name, filehash.HashBytes(content), uint64(len(content)), 1700000000, 0))
	}

	group := archive.MetaGroup{{Label: label, Changes: changes}}

	loc, err := w.Finish(group)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	return archive.VersionIndex{Label: label, Filename: filepath.Base(path), Offset: loc.Offset, Length: loc.Length, Hash: archive.NoHash}
}

func TestTesterPassesOnValidContainer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.mcpatch")

	idx := buildContainer(t, path, "1.0.0", map[string][]byte{
		"mods/a.jar": []byte("hello world"),
		"readme.txt": []byte("notes"),
	})

	tt := New()
	if err := tt.Feed(path, idx.Offset, idx.Length); err != nil {
		t.Fatalf("feed: %v", err)
	}

	var seen []Testing
	if err := tt.Finish(func(ev Testing) { seen = append(seen, ev) }); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("expected progress callback for 2 files, got %d", len(seen))
	}
}

func TestTesterDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.mcpatch")

	w, err := archive.NewWriter(path)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	content := []byte("hello world")
	if err := w.AddFile(bytes.NewReader(content), uint64(len(content)), "a.txt", "1.0.0"); err != nil {
		t.Fatalf("add file: %v", err)
	}

	// Declare a hash that does not match the actual content.
	group := archive.MetaGroup{{Label: "1.0.0", Changes: []archive.FileChange{
		archive.UpdateFile("a.txt", "0000000000000000_0000", uint64(len(content)), 1700000000, 0),
	}}}

	loc, err := w.Finish(group)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	tt := New()
	if err := tt.Feed(path, loc.Offset, loc.Length); err != nil {
		t.Fatalf("feed: %v", err)
	}

	err = tt.Finish(nil)
	if err == nil {
		t.Fatalf("expected corrupted hash to fail verification")
	}

	if _, ok := err.(*Failure); !ok {
		t.Fatalf("expected a *Failure, got %T: %v", err, err)
	}
}

func TestTesterHandlesMoveAndDeleteAcrossVersions(t *testing.T) {
	dir := t.TempDir()

	path1 := filepath.Join(dir, "1.mcpatch")
	idx1 := buildContainer(t, path1, "1.0.0", map[string][]byte{
		"old/a.jar": []byte("payload"),
		"keep.txt":  []byte("keep me"),
	})

	w2, err := archive.NewWriter(filepath.Join(dir, "2.mcpatch"))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	group2 := archive.MetaGroup{{Label: "1.0.1", Changes: []archive.FileChange{
		archive.CreateFolder("new"),
		archive.MoveFile("old/a.jar", "new/a.jar"),
		archive.DeleteFolder("old"),
		archive.DeleteFile("keep.txt"),
	}}}
	loc2, err := w2.Finish(group2)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	tt := New()
	if err := tt.Feed(path1, idx1.Offset, idx1.Length); err != nil {
		t.Fatalf("feed v1: %v", err)
	}
	if err := tt.Feed(filepath.Join(dir, "2.mcpatch"), loc2.Offset, loc2.Length); err != nil {
		t.Fatalf("feed v2: %v", err)
	}

	var seen []Testing
	if err := tt.Finish(func(ev Testing) { seen = append(seen, ev) }); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if len(seen) != 1 || seen[0].Path != "new/a.jar" {
		t.Fatalf("expected only new/a.jar to survive, got %+v", seen)
	}
	if seen[0].Label != "1.0.0" {
		t.Fatalf("expected surviving file's origin label to stay 1.0.0, got %q", seen[0].Label)
	}
}
