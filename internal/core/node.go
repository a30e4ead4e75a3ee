// Package core implements the abstract file tree, its two concrete
// sources (a disk scan and a replayed version history), the diff engine
// that compares them, and the exclude-pattern filter both packer and
// diff consult.
//
// The design mirrors manager/src/diff/abstract_file.rs from the original
// mcpatch manager: one narrow interface lets the diff engine walk either a
// live directory tree or a tree reconstructed purely from metadata, without
// caring which. Unlike the Rust original, FileNode implementations need no
// Rc/Weak bookkeeping for parent links; Go's garbage collector handles the
// parent/child reference cycle without help.
package core

import "strings"

// FileNode is the common shape of a directory entry, whether scanned live
// from disk or reconstructed by replaying change records. Diff operates
// purely in terms of this interface.
type FileNode interface {
	// Name is this entry's own path segment (no separators).
	Name() string

	// Path is this entry's path relative to the tree root, using "/" as the
	// separator regardless of host OS.
	Path() string

	// IsDir reports whether this entry is a directory.
	IsDir() bool

	// Hash returns the content fingerprint of a file entry. Calling this on
	// a directory entry is a programming error.
	Hash() (string, error)

	// Len returns a file entry's length in bytes. Calling this on a
	// directory entry is a programming error.
	Len() uint64

	// Modified returns a file entry's modification time truncated to whole
	// seconds, as Unix time. Calling this on a directory entry is a
	// programming error.
	Modified() int64

	// Children lists a directory entry's immediate children. Calling this
	// on a file entry is a programming error.
	Children() ([]FileNode, error)

	// Find looks up a descendant by slash-separated relative path, walking
	// one path segment at a time. It returns false if any segment along the
	// way is absent.
	Find(path string) (FileNode, bool, error)
}

// findChild looks up name among a directory node's already-listed
// children.
func findChild(children []FileNode, name string) (FileNode, bool) {
	for _, c := range children {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// findHelper implements the generic "walk one path segment at a time"
// lookup shared by every FileNode implementation.
func findHelper(root FileNode, path string) (FileNode, bool, error) {
	current := root

	if path == "" {
		return current, true, nil
	}

	for _, frag := range strings.Split(path, "/") {
		children, err := current.Children()
		if err != nil {
			return nil, false, err
		}

		child, ok := findChild(children, frag)
		if !ok {
			return nil, false, nil
		}

		current = child
	}

	return current, true, nil
}

// joinPath computes a child's relative path given its parent's path and its
// own name, matching calculate_path_helper's root-has-no-leading-segment
// behavior.
func joinPath(parentPath, name string) string {
	if parentPath == "" {
		return name
	}
	return parentPath + "/" + name
}
