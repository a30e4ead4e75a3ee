// Package archive implements the version archive format (core §3, §4.2–4.4):
// the tar-shaped container, the external index that locates metadata ranges
// within it, and the typed change records those metadata ranges decode to.
//
// The JSON shapes here mirror manager/src/core/data/version_meta.rs and
// manager/src/core/data/index_file.rs from the McPatch2 original exactly,
// since the wire format is part of the contract between independently
// versioned managers and clients.
package archive

import (
	"encoding/json"
	"fmt"
)

// Operation identifies which mutation a FileChange represents.
type Operation string

const (
	OpCreateFolder Operation = "create-directory"
	OpUpdateFile   Operation = "update-file"
	OpDeleteFolder Operation = "delete-directory"
	OpDeleteFile   Operation = "delete-file"
	OpMoveFile     Operation = "move-file"
)

// FileChange is a single typed mutation record (core §3). Exactly one of the
// field groups below is meaningful, depending on Operation; which fields
// apply is documented per constructor.
type FileChange struct {
	Operation Operation

	// Path applies to CreateFolder, UpdateFile, DeleteFolder, DeleteFile.
	Path string

	// Hash, Len, Modified, Offset apply to UpdateFile only. Modified is
	// whole-seconds Unix time; Offset is the byte offset of the payload
	// within its containing archive, rewritten by the container writer's
	// finalize step.
	Hash     string
	Len      uint64
	Modified int64
	Offset   uint64

	// From, To apply to MoveFile only.
	From string
	To   string
}

// CreateFolder builds a CreateFolder change.
func CreateFolder(path string) FileChange {
	return FileChange{Operation: OpCreateFolder, Path: path}
}

// UpdateFile builds an UpdateFile change. offset is provisional (zero) until
// a container Writer rewrites it during finalization.
func UpdateFile(path, hash string, length uint64, modified int64, offset uint64) FileChange {
	return FileChange{Operation: OpUpdateFile, Path: path, Hash: hash, Len: length, Modified: modified, Offset: offset}
}

// DeleteFolder builds a DeleteFolder change.
func DeleteFolder(path string) FileChange {
	return FileChange{Operation: OpDeleteFolder, Path: path}
}

// DeleteFile builds a DeleteFile change.
func DeleteFile(path string) FileChange {
	return FileChange{Operation: OpDeleteFile, Path: path}
}

// MoveFile builds a MoveFile change.
func MoveFile(from, to string) FileChange {
	return FileChange{Operation: OpMoveFile, From: from, To: to}
}

// jsonChange is the wire shape for a single change, matching core §6.
type jsonChange struct {
	Operation Operation `json:"operation"`
	Path      string    `json:"path,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	Len       *uint64   `json:"len,omitempty"`
	Modified  *int64    `json:"modified,omitempty"`
	Offset    *uint64   `json:"offset,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c FileChange) MarshalJSON() ([]byte, error) {
	jc := jsonChange{Operation: c.Operation}

	switch c.Operation {
	case OpCreateFolder, OpDeleteFolder, OpDeleteFile:
		jc.Path = c.Path
	case OpUpdateFile:
		jc.Path = c.Path
		jc.Hash = c.Hash
		length := c.Len
		modified := c.Modified
		offset := c.Offset
		jc.Len = &length
		jc.Modified = &modified
		jc.Offset = &offset
	case OpMoveFile:
		jc.From = c.From
		jc.To = c.To
	default:
		return nil, fmt.Errorf("unknown operation: %q", c.Operation)
	}

	return json.Marshal(jc)
}

// UnmarshalJSON implements json.Unmarshaler. An unrecognized discriminator
// aborts parsing, per core §4.4.
func (c *FileChange) UnmarshalJSON(data []byte) error {
	var jc jsonChange
	if err := json.Unmarshal(data, &jc); err != nil {
		return err
	}

	switch jc.Operation {
	case OpCreateFolder, OpDeleteFolder, OpDeleteFile:
		*c = FileChange{Operation: jc.Operation, Path: jc.Path}
	case OpUpdateFile:
		if jc.Len == nil || jc.Modified == nil || jc.Offset == nil {
			return fmt.Errorf("update-file change for %q missing len/modified/offset", jc.Path)
		}
		*c = FileChange{
			Operation: OpUpdateFile,
			Path:      jc.Path,
			Hash:      jc.Hash,
			Len:       *jc.Len,
			Modified:  *jc.Modified,
			Offset:    *jc.Offset,
		}
	case OpMoveFile:
		*c = FileChange{Operation: OpMoveFile, From: jc.From, To: jc.To}
	default:
		return fmt.Errorf("unknown operation discriminator: %q", jc.Operation)
	}

	return nil
}

// VersionMeta is a single version's label, change log, and ordered change
// list (core §3). Order of Changes is preservation-critical.
type VersionMeta struct {
	Label   string       `json:"label"`
	Logs    string       `json:"logs"`
	Changes []FileChange `json:"changes"`
}

// MetaGroup is an ordered list of version metadatas embedded as the trailing
// entry of a container (core §3, §4.4).
type MetaGroup []VersionMeta

// Find returns the metadata with the given label, or false if absent.
func (g MetaGroup) Find(label string) (VersionMeta, bool) {
	for _, m := range g {
		if m.Label == label {
			return m, true
		}
	}
	return VersionMeta{}, false
}

// Serialize renders the group as the UTF-8 JSON array stored in a
// container's metadata.txt entry.
func (g MetaGroup) Serialize() ([]byte, error) {
	return json.Marshal(g)
}

// ParseMetaGroup parses the JSON array stored in a container's metadata.txt
// entry.
func ParseMetaGroup(data []byte) (MetaGroup, error) {
	var g MetaGroup
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return g, nil
}
