package client

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcpatch-go/mcpatch/internal/archive"
	"github.com/mcpatch-go/mcpatch/internal/config"
	"github.com/mcpatch-go/mcpatch/internal/logging"
	"github.com/mcpatch-go/mcpatch/internal/pack"
	"github.com/mcpatch-go/mcpatch/internal/transport"
)

// dirSource serves whole-file and ranged reads straight out of a directory,
// standing in for a real fetch-layer source so these tests can drive the
// pipeline against a real pack'd public directory without a network.
type dirSource struct {
	root string
}

func (s *dirSource) Fetch(path string, start, end uint64, desc string) (uint64, io.ReadCloser, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(path)))
	if err != nil {
		return 0, nil, err
	}
	if start == 0 && end == 0 {
		end = uint64(len(data))
	}
	return end - start, io.NopCloser(newSliceReader(data[start:end])), nil
}

func (s *dirSource) MaskKeyword() string { return "" }

func newSliceReader(b []byte) io.Reader { return &sliceReader{data: b} }

type sliceReader struct{ data []byte }

func (r *sliceReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func writeWorkspaceFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", rel, err)
	}
}

func newNetwork(t *testing.T, publicDir string) *transport.Network {
	t.Helper()
	network, err := transport.New([]transport.Source{&dirSource{root: publicDir}}, 0, nil)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return network
}

func TestRunFreshInstallAppliesAllVersions(t *testing.T) {
	dir := t.TempDir()
	workspace := filepath.Join(dir, "workspace")
	public := filepath.Join(dir, "public")
	index := filepath.Join(public, "index.json")

	writeWorkspaceFile(t, workspace, "a.txt", "one")
	if _, err := pack.Run(pack.Options{WorkspaceDir: workspace, PublicDir: public, IndexPath: index, Label: "1.0.0", ChangeLogs: "first release"}); err != nil {
		t.Fatalf("pack 1.0.0: %v", err)
	}

	writeWorkspaceFile(t, workspace, "b.txt", "two")
	if _, err := pack.Run(pack.Options{WorkspaceDir: workspace, PublicDir: public, IndexPath: index, Label: "1.0.1", ChangeLogs: "second release"}); err != nil {
		t.Fatalf("pack 1.0.1: %v", err)
	}

	clientDir := filepath.Join(dir, "client")
	if err := os.MkdirAll(clientDir, 0o755); err != nil {
		t.Fatalf("mkdir client dir: %v", err)
	}

	cfg := config.DefaultClientConfig()
	result, err := Run(Options{
		Config:   &cfg,
		Network:  newNetwork(t, public),
		BaseDir:  clientDir,
		Log:      nil,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.UpToDate {
		t.Fatalf("expected a fresh install to apply updates")
	}
	if result.NewVersion != "1.0.1" {
		t.Fatalf("expected new version 1.0.1, got %q", result.NewVersion)
	}

	for name, want := range map[string]string{"a.txt": "one", "b.txt": "two"} {
		got, err := os.ReadFile(filepath.Join(clientDir, name))
		if err != nil {
			t.Fatalf("reading %q: %v", name, err)
		}
		if string(got) != want {
			t.Fatalf("%q: expected %q, got %q", name, want, got)
		}
	}

	label, err := os.ReadFile(filepath.Join(clientDir, cfg.VersionFilePath))
	if err != nil {
		t.Fatalf("reading version label: %v", err)
	}
	if string(label) != "1.0.1" {
		t.Fatalf("expected version label 1.0.1, got %q", label)
	}

	if _, err := os.Stat(filepath.Join(clientDir, stagingDirName)); !os.IsNotExist(err) {
		t.Fatalf("expected staging directory to be removed")
	}
}

func TestRunUpToDateIsNoOp(t *testing.T) {
	dir := t.TempDir()
	workspace := filepath.Join(dir, "workspace")
	public := filepath.Join(dir, "public")
	index := filepath.Join(public, "index.json")

	writeWorkspaceFile(t, workspace, "a.txt", "one")
	if _, err := pack.Run(pack.Options{WorkspaceDir: workspace, PublicDir: public, IndexPath: index, Label: "1.0.0"}); err != nil {
		t.Fatalf("pack: %v", err)
	}

	clientDir := filepath.Join(dir, "client")
	os.MkdirAll(clientDir, 0o755)
	cfg := config.DefaultClientConfig()
	if err := os.WriteFile(filepath.Join(clientDir, cfg.VersionFilePath), []byte("1.0.0"), 0o644); err != nil {
		t.Fatalf("seed version label: %v", err)
	}

	result, err := Run(Options{Config: &cfg, Network: newNetwork(t, public), BaseDir: clientDir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.UpToDate {
		t.Fatalf("expected up-to-date result")
	}
}

func TestRunSkipsUpdateWhenFileAlreadyMatchesHash(t *testing.T) {
	dir := t.TempDir()
	workspace := filepath.Join(dir, "workspace")
	public := filepath.Join(dir, "public")
	index := filepath.Join(public, "index.json")

	writeWorkspaceFile(t, workspace, "a.txt", "one")
	if _, err := pack.Run(pack.Options{WorkspaceDir: workspace, PublicDir: public, IndexPath: index, Label: "1.0.0"}); err != nil {
		t.Fatalf("pack: %v", err)
	}

	clientDir := filepath.Join(dir, "client")
	os.MkdirAll(clientDir, 0o755)
	// Pre-seed the target with the same content but a wrong mtime, so the
	// modified/size shortcut misses and the content-hash fallback must
	// catch it per spec §4.13 step 10.
	writeWorkspaceFile(t, clientDir, "a.txt", "one")
	stale := time.Unix(1000000000, 0)
	if err := os.Chtimes(filepath.Join(clientDir, "a.txt"), stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	cfg := config.DefaultClientConfig()
	result, err := Run(Options{Config: &cfg, Network: newNetwork(t, public), BaseDir: clientDir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.UpToDate {
		t.Fatalf("expected version label update even when content already matched")
	}

	got, err := os.ReadFile(filepath.Join(clientDir, "a.txt"))
	if err != nil {
		t.Fatalf("reading a.txt: %v", err)
	}
	if string(got) != "one" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestRunNoServerVersionsFails(t *testing.T) {
	dir := t.TempDir()
	public := filepath.Join(dir, "public")
	os.MkdirAll(public, 0o755)
	os.WriteFile(filepath.Join(public, "index.json"), []byte("[]"), 0o644)

	clientDir := filepath.Join(dir, "client")
	os.MkdirAll(clientDir, 0o755)

	cfg := config.DefaultClientConfig()
	_, err := Run(Options{Config: &cfg, Network: newNetwork(t, public), BaseDir: clientDir})
	if err == nil {
		t.Fatalf("expected NoServerVersions error")
	}
}

// TestCoalesceDeleteFileAfterUpdateStillQueuesDelete covers a file that was
// present on disk before the client's installed version (so no pending
// update exists for it yet), gets an UpdateFile in one missing version, and
// is then DeleteFile'd in a later one: the delete must still be queued even
// though it cancels a pending update, matching client/src/work.rs's
// unconditional delete_files.push after discarding any pending update.
func TestCoalesceDeleteFileAfterUpdateStillQueuesDelete(t *testing.T) {
	metas := []fullVersionMeta{
		{pkg: "a.mcpatch", meta: archive.VersionMeta{
			Label: "1.0.1",
			Changes: []archive.FileChange{
				archive.UpdateFile("stale.txt", "deadbeef", 4, 0, 0),
			},
		}},
		{pkg: "b.mcpatch", meta: archive.VersionMeta{
			Label: "1.0.2",
			Changes: []archive.FileChange{
				archive.DeleteFile("stale.txt"),
			},
		}},
	}

	p := coalesce(metas)

	if len(p.updateFiles) != 0 {
		t.Fatalf("expected the pending update to be discarded, got %+v", p.updateFiles)
	}
	if len(p.deleteFiles) != 1 || p.deleteFiles[0] != "stale.txt" {
		t.Fatalf("expected stale.txt to be queued for deletion, got %+v", p.deleteFiles)
	}
}

// TestCoalesceDeleteFileWithoutPriorUpdateQueuesDelete is the simpler
// existing-file case: no pending update at all, just a delete.
func TestCoalesceDeleteFileWithoutPriorUpdateQueuesDelete(t *testing.T) {
	metas := []fullVersionMeta{
		{pkg: "a.mcpatch", meta: archive.VersionMeta{
			Label: "1.0.1",
			Changes: []archive.FileChange{
				archive.DeleteFile("gone.txt"),
			},
		}},
	}

	p := coalesce(metas)

	if len(p.deleteFiles) != 1 || p.deleteFiles[0] != "gone.txt" {
		t.Fatalf("expected gone.txt to be queued for deletion, got %+v", p.deleteFiles)
	}
}

// TestApplyPlanDeletesFolderRecursively covers a folder slated for deletion
// that still holds untracked content on disk: applyPlan must remove it and
// its contents, matching client/src/work.rs's remove_dir_all rather than a
// non-recursive removal that would only succeed on an already-empty folder.
func TestApplyPlanDeletesFolderRecursively(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "stale-dir")
	if err := os.MkdirAll(filepath.Join(nested, "child"), 0o755); err != nil {
		t.Fatalf("setting up nested directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "child", "leftover.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("writing leftover file: %v", err)
	}

	p := plan{deleteFolders: []string{"stale-dir"}}
	if err := applyPlan(dir, t.TempDir(), p, logging.Root); err != nil {
		t.Fatalf("applyPlan: %v", err)
	}

	if _, err := os.Stat(nested); !os.IsNotExist(err) {
		t.Fatalf("expected %q to be fully removed, stat error: %v", nested, err)
	}
}
