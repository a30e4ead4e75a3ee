package archive

import (
	"encoding/json"
	"os"
)

// VersionIndex locates one version's metadata range within a container
// (core §3). Hash is populated as the literal "no hash" on write and never
// consulted on read (core §9) — do not promote it to a correctness check
// without a migration plan for legacy indices.
type VersionIndex struct {
	Label    string `json:"label"`
	Filename string `json:"filename"`
	Offset   uint64 `json:"offset"`
	Length   uint64 `json:"length"`
	Hash     string `json:"hash"`
}

// NoHash is the placeholder value written to VersionIndex.Hash.
const NoHash = "no hash"

// IndexFile is the ordered, chronological (earliest-first) list of version
// descriptors (core §4.3).
type IndexFile struct {
	versions []VersionIndex
}

// NewIndexFile creates an empty index.
func NewIndexFile() *IndexFile {
	return &IndexFile{}
}

// LoadIndexFile loads an index from path. A missing file yields an empty
// index, matching the teacher's load-on-missing semantics.
func LoadIndexFile(path string) (*IndexFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewIndexFile(), nil
		}
		return nil, err
	}

	return ParseIndexFile(data)
}

// ParseIndexFile parses an index from raw JSON bytes.
func ParseIndexFile(data []byte) (*IndexFile, error) {
	var versions []VersionIndex
	if err := json.Unmarshal(data, &versions); err != nil {
		return nil, err
	}

	return &IndexFile{versions: versions}, nil
}

// Save writes the index to path as pretty-printed JSON. Order of entries is
// append order and is preserved on round-trip.
func (idx *IndexFile) Save(path string) error {
	data, err := json.MarshalIndent(idx.versions, "", "    ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// Add appends a new version descriptor.
func (idx *IndexFile) Add(v VersionIndex) {
	idx.versions = append(idx.versions, v)
}

// Contains reports whether label is present in the index.
func (idx *IndexFile) Contains(label string) bool {
	_, ok := idx.Find(label)
	return ok
}

// Find returns the descriptor for label, if present.
func (idx *IndexFile) Find(label string) (VersionIndex, bool) {
	for _, v := range idx.versions {
		if v.Label == label {
			return v, true
		}
	}
	return VersionIndex{}, false
}

// IndexOf returns the position of label in the index, or -1 if absent.
func (idx *IndexFile) IndexOf(label string) int {
	for i, v := range idx.versions {
		if v.Label == label {
			return i
		}
	}
	return -1
}

// Len returns the number of versions recorded.
func (idx *IndexFile) Len() int {
	return len(idx.versions)
}

// At returns the descriptor at position i.
func (idx *IndexFile) At(i int) VersionIndex {
	return idx.versions[i]
}

// All returns every descriptor, earliest first. The returned slice is a copy
// of the index's internal state and may be mutated freely by the caller.
func (idx *IndexFile) All() []VersionIndex {
	out := make([]VersionIndex, len(idx.versions))
	copy(out, idx.versions)
	return out
}

// Replace swaps the index's full set of entries, used by the combiner once
// it has rewritten every version to point at the combined container.
func (idx *IndexFile) Replace(versions []VersionIndex) {
	idx.versions = versions
}
