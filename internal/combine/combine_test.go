package combine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mcpatch-go/mcpatch/internal/archive"
	"github.com/mcpatch-go/mcpatch/internal/pack"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()

	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", rel, err)
	}
}

func TestRunCombinesMultipleVersions(t *testing.T) {
	dir := t.TempDir()
	workspace := filepath.Join(dir, "workspace")
	public := filepath.Join(dir, "public")
	index := filepath.Join(public, "index.json")

	writeFile(t, workspace, "a.txt", "one")
	if _, err := pack.Run(pack.Options{WorkspaceDir: workspace, PublicDir: public, IndexPath: index, Label: "1.0.0"}); err != nil {
		t.Fatalf("pack 1.0.0: %v", err)
	}

	writeFile(t, workspace, "b.txt", "two")
	if _, err := pack.Run(pack.Options{WorkspaceDir: workspace, PublicDir: public, IndexPath: index, Label: "1.0.1"}); err != nil {
		t.Fatalf("pack 1.0.1: %v", err)
	}

	if err := Run(Options{PublicDir: public, IndexPath: index}); err != nil {
		t.Fatalf("combine: %v", err)
	}

	idx, err := archive.LoadIndexFile(index)
	if err != nil {
		t.Fatalf("load combined index: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected 2 index entries after combine, got %d", idx.Len())
	}

	for i := 0; i < idx.Len(); i++ {
		v := idx.At(i)
		if v.Filename != CombinedFilename {
			t.Fatalf("expected every entry to point at %q, got %q", CombinedFilename, v.Filename)
		}
	}

	if _, err := os.Stat(filepath.Join(public, CombinedFilename)); err != nil {
		t.Fatalf("expected combined container to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(public, "1.0.0.mcpatch")); err == nil {
		t.Fatalf("expected original 1.0.0 container to be removed")
	}
}

func TestRunNoVersionsToCombine(t *testing.T) {
	dir := t.TempDir()
	public := filepath.Join(dir, "public")
	index := filepath.Join(public, "index.json")

	if err := os.MkdirAll(public, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := Run(Options{PublicDir: public, IndexPath: index}); err != nil {
		t.Fatalf("combine on empty index should be a no-op, got: %v", err)
	}
}
