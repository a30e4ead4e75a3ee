package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
)

// blockSize is the tar payload alignment; every entry's payload occupies
// ceil(length/blockSize)*blockSize bytes (core §4.2).
const blockSize = 512

// metadataEntryName is the reserved logical name of a container's trailing
// metadata entry (core §3).
const metadataEntryName = "metadata.txt"

// MetadataLocation is the offset and length of a container's serialized
// metadata group, returned by a Writer's Finish and recorded in the index.
type MetadataLocation struct {
	Offset uint64
	Length uint64
}

// countingWriter tracks the total number of bytes written so offsets can be
// computed the same way the original tar_writer.rs derives them: from the
// writer's running position, not from arithmetic on header sizes alone
// (which would break for long names needing GNU extension headers).
type countingWriter struct {
	w     io.Writer
	count uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.count += uint64(n)
	return n, err
}

// address keys a recorded payload offset by the (path, version label) pair
// it was written under, matching the original TarWriter's addressing so a
// combined archive's metadata can still reference per-version offsets
// before they're collapsed.
type address struct {
	path    string
	version string
}

// Writer builds a new container: a concatenated sequence of tar entries
// followed by a trailing metadata.txt entry (core §4.2).
type Writer struct {
	file      *os.File
	counter   *countingWriter
	tw        *tar.Writer
	addresses map[address]uint64
	finished  bool
}

// NewWriter creates a container at path, truncating any existing file.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	cw := &countingWriter{w: f}

	return &Writer{
		file:      f,
		counter:   cw,
		tw:        tar.NewWriter(cw),
		addresses: make(map[address]uint64),
	}, nil
}

// AddFile streams a single file's payload into the container under the
// given logical path, recording the payload's tar-offset under (path,
// version) for later offset rewriting by Finish.
func (w *Writer) AddFile(r io.Reader, length uint64, path string, version string) error {
	if w.finished {
		return fmt.Errorf("archive.Writer: already finished")
	}

	hdr := &tar.Header{
		Name:     path,
		Size:     int64(length),
		Mode:     0o644,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatGNU,
	}

	if err := w.tw.WriteHeader(hdr); err != nil {
		return err
	}

	if _, err := io.CopyN(w.tw, r, int64(length)); err != nil {
		return err
	}

	// Force the padding for this entry to be written now so that the
	// running position reflects this entry's full on-disk footprint before
	// we compute its tar-offset.
	if err := w.tw.Flush(); err != nil {
		return err
	}

	padding := paddingFor(length)
	position := w.counter.count
	tarOffset := position - length - padding

	w.addresses[address{path: path, version: version}] = tarOffset

	return nil
}

// paddingFor returns the number of padding bytes following a payload of the
// given length to reach the next block boundary.
func paddingFor(length uint64) uint64 {
	padding := blockSize - (length % blockSize)
	if padding >= blockSize {
		padding = 0
	}
	return padding
}

// Finish rewrites every UpdateFile.Offset in group to the recorded
// tar-offset for its (path, version label) pair, serializes the group as
// the trailing metadata.txt entry, and returns its location for the index.
func (w *Writer) Finish(group MetaGroup) (MetadataLocation, error) {
	if w.finished {
		return MetadataLocation{}, fmt.Errorf("archive.Writer: already finished")
	}
	w.finished = true
	defer w.file.Close()

	for i := range group {
		for j := range group[i].Changes {
			c := &group[i].Changes[j]
			if c.Operation != OpUpdateFile {
				continue
			}

			if addr, ok := w.addresses[address{path: c.Path, version: group[i].Label}]; ok {
				c.Offset = addr
			}
			// A combined archive's intermediate versions intentionally
			// omit payload data to save space; their stale offsets are
			// never read by a correctly functioning client.
		}
	}

	payload, err := group.Serialize()
	if err != nil {
		return MetadataLocation{}, err
	}

	metadataOffset := w.counter.count

	hdr := &tar.Header{
		Name:     metadataEntryName,
		Size:     int64(len(payload)),
		Mode:     0o644,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatGNU,
	}

	if err := w.tw.WriteHeader(hdr); err != nil {
		return MetadataLocation{}, err
	}
	if _, err := w.tw.Write(payload); err != nil {
		return MetadataLocation{}, err
	}
	if err := w.tw.Close(); err != nil {
		return MetadataLocation{}, err
	}

	return MetadataLocation{
		Offset: metadataOffset + blockSize,
		Length: uint64(len(payload)),
	}, nil
}

// Abort discards a partially written container, closing and removing the
// underlying file. Used when a pack or combine operation fails mid-write.
func (w *Writer) Abort() error {
	if w.finished {
		return nil
	}
	w.finished = true
	path := w.file.Name()
	w.file.Close()
	return os.Remove(path)
}

// Reader reads entries back out of a container file (core §4.2).
type Reader struct {
	path string
}

// NewReader opens a container for reading by path. Actual file handles are
// opened per call so a Reader can be shared across concurrent reads.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// ReadMetadataGroup reads exactly length bytes at offset and parses them as
// a metadata group.
func (r *Reader) ReadMetadataGroup(offset, length uint64) (MetaGroup, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, int64(offset)); err != nil {
		return nil, err
	}

	return ParseMetaGroup(buf)
}

// limitedFile is a seekable-source limited to a fixed number of bytes,
// closing its underlying file handle when done.
type limitedFile struct {
	f *os.File
	r io.Reader
}

func (l *limitedFile) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedFile) Close() error                { return l.f.Close() }

// OpenFile returns a reader limited to length bytes starting at offset
// within the container, implementing the "implementation detail: positions
// the underlying file and returns a capped reader" note in core §4.2.
func (r *Reader) OpenFile(offset, length uint64) (io.ReadCloser, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	return &limitedFile{f: f, r: io.LimitReader(f, int64(length))}, nil
}
