package core

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/mcpatch-go/mcpatch/internal/filehash"
)

// DiskNode is a FileNode backed by a live directory on disk. Children and
// hashes are computed lazily and cached, matching disk_file.rs: a packer
// walking the same subtree twice (once for the added-files pass, once for
// the modified-files pass) should not re-stat or re-hash anything.
type DiskNode struct {
	absPath string
	relPath string
	name    string
	isDir   bool
	length  uint64
	modTime int64

	mu       sync.Mutex
	children []FileNode
	scanned  bool
	hash     string
	hashed   bool
}

// NewDiskTree scans root and returns its FileNode, with an empty relative
// path (root itself never appears in any child's Path()).
func NewDiskTree(root string) (*DiskNode, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "stat workspace root %q", root)
	}

	return &DiskNode{
		absPath: root,
		relPath: "",
		name:    filepath.Base(root),
		isDir:   info.IsDir(),
		modTime: info.ModTime().Unix(),
	}, nil
}

func (n *DiskNode) Name() string    { return n.name }
func (n *DiskNode) Path() string    { return n.relPath }
func (n *DiskNode) IsDir() bool     { return n.isDir }
func (n *DiskNode) Len() uint64     { return n.length }
func (n *DiskNode) Modified() int64 { return n.modTime }

func (n *DiskNode) Hash() (string, error) {
	if n.isDir {
		panic("core: Hash called on a directory DiskNode")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.hashed {
		return n.hash, nil
	}

	f, err := os.Open(n.absPath)
	if err != nil {
		return "", errors.Wrapf(err, "open %q for hashing", n.absPath)
	}
	defer f.Close()

	sum, err := filehash.Hash(f)
	if err != nil {
		return "", errors.Wrapf(err, "hash %q", n.absPath)
	}

	n.hash = sum
	n.hashed = true

	return n.hash, nil
}

func (n *DiskNode) Children() ([]FileNode, error) {
	if !n.isDir {
		panic("core: Children called on a file DiskNode")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.scanned {
		return n.children, nil
	}

	entries, err := os.ReadDir(n.absPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read directory %q", n.absPath)
	}

	children := make([]FileNode, 0, len(entries))

	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, errors.Wrapf(err, "stat %q", filepath.Join(n.absPath, entry.Name()))
		}

		child := &DiskNode{
			absPath: filepath.Join(n.absPath, entry.Name()),
			relPath: joinPath(n.relPath, entry.Name()),
			name:    entry.Name(),
			isDir:   info.IsDir(),
			modTime: info.ModTime().Unix(),
		}

		if !child.isDir {
			child.length = uint64(info.Size())
		}

		children = append(children, child)
	}

	n.children = children
	n.scanned = true

	return n.children, nil
}

func (n *DiskNode) Find(path string) (FileNode, bool, error) {
	return findHelper(n, path)
}
