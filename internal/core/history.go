package core

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/mcpatch-go/mcpatch/internal/archive"
)

// dirHash is the placeholder stored in a directory history node's hash
// field. It is never returned or compared (directories are only ever
// matched by path/kind, never by content): Hash panics when called on a
// directory.
const dirHash = "it is a dir"

// HistoryNode is a FileNode reconstructed by replaying FileChange records
// against an initially empty tree, one version at a time, in index order.
// It is the Go equivalent of history_file.rs's HistoryFile: the "older"
// side of every diff the packer runs.
type HistoryNode struct {
	parent   *HistoryNode
	name     string
	isDir    bool
	length   uint64
	modTime  int64
	hash     string
	children map[string]*HistoryNode
}

// NewHistory returns an empty root directory node with no parent.
func NewHistory() *HistoryNode {
	return &HistoryNode{isDir: true, hash: dirHash, children: make(map[string]*HistoryNode)}
}

func (n *HistoryNode) Name() string { return n.name }
func (n *HistoryNode) IsDir() bool  { return n.isDir }
func (n *HistoryNode) Len() uint64  { return n.length }

func (n *HistoryNode) Modified() int64 {
	return n.modTime
}

func (n *HistoryNode) Hash() (string, error) {
	if n.isDir {
		panic("core: Hash called on a directory HistoryNode")
	}
	return n.hash, nil
}

// Path recomputes this node's path by walking parent pointers, which stays
// correct across a MoveFile without needing an explicit cache invalidation
// pass over descendants (a moved directory's children never store their own
// absolute path, only their name).
func (n *HistoryNode) Path() string {
	if n.parent == nil {
		return ""
	}

	segments := []string{n.name}
	p := n.parent

	for p.parent != nil {
		segments = append([]string{p.name}, segments...)
		p = p.parent
	}

	return strings.Join(segments, "/")
}

func (n *HistoryNode) Children() ([]FileNode, error) {
	if !n.isDir {
		panic("core: Children called on a file HistoryNode")
	}

	out := make([]FileNode, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out, nil
}

func (n *HistoryNode) Find(path string) (FileNode, bool, error) {
	return findHelper(n, path)
}

// lookupParentAndEnd splits path into its parent directory node and final
// path segment, failing if any intermediate segment does not exist. This is
// the "parent must already exist" invariant from the container format's
// change record model: every operation's containing directory must have
// been created by an earlier CreateFolder, or be the workspace root.
func (n *HistoryNode) lookupParentAndEnd(path string) (*HistoryNode, string, error) {
	idx := strings.LastIndex(path, "/")

	if idx < 0 {
		return n, path, nil
	}

	parentPath, end := path[:idx], path[idx+1:]

	found, ok, err := n.Find(parentPath)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", errors.Errorf("replay: parent directory %q does not exist for path %q", parentPath, path)
	}

	parent, ok := found.(*HistoryNode)
	if !ok || !parent.isDir {
		return nil, "", errors.Errorf("replay: %q is not a directory", parentPath)
	}

	return parent, end, nil
}

// CreateFolder replays a CreateFolder change. The target path must not
// already exist in its parent.
func (n *HistoryNode) CreateFolder(path string) error {
	parent, end, err := n.lookupParentAndEnd(path)
	if err != nil {
		return err
	}

	if _, exists := parent.children[end]; exists {
		return errors.Errorf("replay: create-directory %q: path already exists", path)
	}

	parent.children[end] = &HistoryNode{
		parent:   parent,
		name:     end,
		isDir:    true,
		hash:     dirHash,
		children: make(map[string]*HistoryNode),
	}

	return nil
}

// UpdateFile replays an UpdateFile change, creating the file entry if
// absent or overwriting it in place if a file with the same name already
// exists (a version may legitimately update a file it created earlier in
// the same or an older version).
func (n *HistoryNode) UpdateFile(path, hash string, length uint64, modified int64) error {
	parent, end, err := n.lookupParentAndEnd(path)
	if err != nil {
		return err
	}

	if existing, exists := parent.children[end]; exists && existing.isDir {
		return errors.Errorf("replay: update-file %q: path is a directory", path)
	}

	parent.children[end] = &HistoryNode{
		parent:  parent,
		name:    end,
		isDir:   false,
		length:  length,
		modTime: modified,
		hash:    hash,
	}

	return nil
}

// DeleteFolder replays a DeleteFolder change. The directory must exist and
// must be empty, matching the original's assert!(holding.children.is_empty()).
func (n *HistoryNode) DeleteFolder(path string) error {
	return n.deleteEntry(path, true)
}

// DeleteFile replays a DeleteFile change. The file must exist.
func (n *HistoryNode) DeleteFile(path string) error {
	return n.deleteEntry(path, false)
}

func (n *HistoryNode) deleteEntry(path string, wantDir bool) error {
	parent, end, err := n.lookupParentAndEnd(path)
	if err != nil {
		return err
	}

	existing, exists := parent.children[end]
	if !exists {
		return errors.Errorf("replay: delete %q: path does not exist", path)
	}
	if existing.isDir != wantDir {
		return errors.Errorf("replay: delete %q: kind mismatch", path)
	}
	if existing.isDir && len(existing.children) != 0 {
		return errors.Errorf("replay: delete-directory %q: directory is not empty", path)
	}

	delete(parent.children, end)

	return nil
}

// MoveFile replays a MoveFile change: the source must exist, the
// destination must not, and the source's subtree (its descendants, if a
// directory) moves with it. The renamed node's parent pointer and name are
// updated so Path() reflects the new location immediately.
func (n *HistoryNode) MoveFile(from, to string) error {
	fromParent, fromEnd, err := n.lookupParentAndEnd(from)
	if err != nil {
		return err
	}

	holding, exists := fromParent.children[fromEnd]
	if !exists {
		return errors.Errorf("replay: move-file: source %q does not exist", from)
	}

	toParent, toEnd, err := n.lookupParentAndEnd(to)
	if err != nil {
		return err
	}

	if _, exists := toParent.children[toEnd]; exists {
		return errors.Errorf("replay: move-file: destination %q already exists", to)
	}

	delete(fromParent.children, fromEnd)

	holding.name = toEnd
	holding.parent = toParent
	toParent.children[toEnd] = holding

	return nil
}

// ReplayVersion applies every change in meta, in order, to the tree.
func (n *HistoryNode) ReplayVersion(meta archive.VersionMeta) error {
	for _, change := range meta.Changes {
		var err error

		switch change.Operation {
		case archive.OpCreateFolder:
			err = n.CreateFolder(change.Path)
		case archive.OpUpdateFile:
			err = n.UpdateFile(change.Path, change.Hash, change.Len, change.Modified)
		case archive.OpDeleteFolder:
			err = n.DeleteFolder(change.Path)
		case archive.OpDeleteFile:
			err = n.DeleteFile(change.Path)
		case archive.OpMoveFile:
			err = n.MoveFile(change.From, change.To)
		default:
			err = errors.Errorf("replay: unknown operation %q", change.Operation)
		}

		if err != nil {
			return errors.Wrapf(err, "replaying version %q", meta.Label)
		}
	}

	return nil
}

// ReplayGroup applies every version in group, in order, to the tree. This
// is what a packer runs over the full index before diffing against the
// current workspace.
func (n *HistoryNode) ReplayGroup(group archive.MetaGroup) error {
	for _, meta := range group {
		if err := n.ReplayVersion(meta); err != nil {
			return err
		}
	}
	return nil
}
