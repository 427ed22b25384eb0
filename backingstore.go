package vmem

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/NebulousLabs/Sia/build"
)

// BackingStore is the unbounded external store backing the simulated
// physical memory: it copies a frame's words out under a page number
// (Evict) and copies them back in (Restore). Pages never evicted restore as
// zero. Evict is idempotent with respect to repeated identical calls for the
// same page.
type BackingStore interface {
	Evict(data []Word, page PageNumber) error
	Restore(page PageNumber) ([]Word, error)
}

// MemBackingStore is an in-process, map-backed BackingStore: the default
// simulation of an unbounded backing store.
type MemBackingStore struct {
	pageSize uint64
	pages    map[PageNumber][]Word
}

// NewMemBackingStore returns an empty in-memory backing store sized for the
// given geometry's page size.
func NewMemBackingStore(g *Geometry) *MemBackingStore {
	return &MemBackingStore{
		pageSize: g.PageSize,
		pages:    make(map[PageNumber][]Word),
	}
}

// Evict copies data's contents under page. The store keeps its own copy so
// later mutation of data does not leak into the backing store.
func (m *MemBackingStore) Evict(data []Word, page PageNumber) error {
	stored := make([]Word, len(data))
	copy(stored, data)
	m.pages[page] = stored
	return nil
}

// Restore returns page's contents, or a zero-filled page if it was never
// evicted.
func (m *MemBackingStore) Restore(page PageNumber) ([]Word, error) {
	if data, ok := m.pages[page]; ok {
		out := make([]Word, len(data))
		copy(out, data)
		return out, nil
	}
	return make([]Word, m.pageSize), nil
}

// FileBackingStore persists evicted pages to a single flat file: each evict
// appends a (pageNumber, data) record, and the most recent record for a page
// wins. NewFileBackingStore recovers a previously written file by replaying
// its records.
type FileBackingStore struct {
	file       *os.File
	pageSize   uint64
	recordSize int64

	// index maps a page number to the byte offset of its most recent record
	// in the file.
	index map[PageNumber]int64
}

// NewFileBackingStore opens path, recovering any previously evicted pages by
// scanning the record log, or creates it if it doesn't exist.
func NewFileBackingStore(path string, g *Geometry) (*FileBackingStore, error) {
	recordSize := int64(8) + int64(g.PageSize)*8

	file, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, build.ExtendErr("failed to open existing backing-store file", err)
		}
		file, err = os.Create(path)
		if err != nil {
			return nil, build.ExtendErr("failed to create backing-store file", err)
		}
	}

	fs := &FileBackingStore{
		file:       file,
		pageSize:   g.PageSize,
		recordSize: recordSize,
		index:      make(map[PageNumber]int64),
	}
	if err := fs.recoverIndex(); err != nil {
		return nil, build.ExtendErr("failed to recover backing-store index", err)
	}
	return fs, nil
}

// recoverIndex scans every record in the file from the start, remembering
// the offset of the most recent record seen for each page.
func (fs *FileBackingStore) recoverIndex() error {
	var offset int64
	for {
		var pageNumber uint64
		if err := binary.Read(io.NewSectionReader(fs.file, offset, 8), binary.LittleEndian, &pageNumber); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}
		fs.index[PageNumber(pageNumber)] = offset
		offset += fs.recordSize
	}
}

// Evict appends a new record for page to the end of the file and remembers
// its offset.
func (fs *FileBackingStore) Evict(data []Word, page PageNumber) error {
	offset, err := fs.file.Seek(0, io.SeekEnd)
	if err != nil {
		return build.ExtendErr("failed to seek to end of backing-store file", err)
	}

	if err := binary.Write(fs.sectionWriter(offset), binary.LittleEndian, uint64(page)); err != nil {
		return build.ExtendErr("failed to write page number", err)
	}
	for i, w := range data {
		if err := binary.Write(fs.sectionWriter(offset+8+int64(i)*8), binary.LittleEndian, uint64(w)); err != nil {
			return build.ExtendErr("failed to write page word", err)
		}
	}

	fs.index[page] = offset
	return nil
}

// Restore reads page's most recent record, or returns a zero-filled page if
// it was never evicted.
func (fs *FileBackingStore) Restore(page PageNumber) ([]Word, error) {
	offset, ok := fs.index[page]
	if !ok {
		return make([]Word, fs.pageSize), nil
	}

	data := make([]Word, fs.pageSize)
	for i := range data {
		var w uint64
		if err := binary.Read(io.NewSectionReader(fs.file, offset+8+int64(i)*8, 8), binary.LittleEndian, &w); err != nil {
			return nil, build.ExtendErr("failed to read page word", err)
		}
		data[i] = Word(w)
	}
	return data, nil
}

// sectionWriter returns an io.Writer that writes at a fixed file offset.
func (fs *FileBackingStore) sectionWriter(offset int64) io.Writer {
	return &offsetWriter{file: fs.file, offset: offset}
}

type offsetWriter struct {
	file   *os.File
	offset int64
}

func (w *offsetWriter) Write(p []byte) (int, error) {
	n, err := w.file.WriteAt(p, w.offset)
	w.offset += int64(n)
	return n, err
}

// Close closes the underlying file.
func (fs *FileBackingStore) Close() error {
	return fs.file.Close()
}
