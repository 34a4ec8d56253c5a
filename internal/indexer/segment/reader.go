package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/shingle"
)

// ErrCorruptSnapshot marks a snapshot whose bytes fail validation. Rereading
// the same file cannot fix it.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// Reader gives random access to the documents of one snapshot file.
type Reader struct {
	file     *os.File
	filePath string
	header   SnapshotHeader
	dict     dictionary
}

// OpenReader opens and validates a snapshot: magic, version and the dictionary
// checksum are checked before any record is read.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat snapshot file: %w", err)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading snapshot header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		f.Close()
		return nil, fmt.Errorf("%w: bad magic bytes %x", ErrCorruptSnapshot, magic)
	}
	header := SnapshotHeader{
		Magic:       magic,
		Version:     binary.LittleEndian.Uint32(headerBytes[4:8]),
		DocCount:    binary.LittleEndian.Uint32(headerBytes[8:12]),
		RecordsCRC:  binary.LittleEndian.Uint32(headerBytes[12:16]),
		CreatedAt:   int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictOffset:  int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		DictSize:    int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		RecordsOff:  int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		RecordsSize: int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
	}
	if header.Version != FormatVersion {
		f.Close()
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, header.Version)
	}
	if err := header.checkBounds(info.Size()); err != nil {
		f.Close()
		return nil, err
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if sum := crc32.ChecksumIEEE(dictBytes); sum != binary.LittleEndian.Uint32(footer[0:4]) {
		f.Close()
		return nil, fmt.Errorf("%w: dictionary checksum mismatch: %x", ErrCorruptSnapshot, sum)
	}
	var dict dictionary
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: parsing dictionary: %w", ErrCorruptSnapshot, err)
	}
	if len(dict.Docs) != int(header.DocCount) {
		f.Close()
		return nil, fmt.Errorf("%w: lists %d documents, header says %d", ErrCorruptSnapshot, len(dict.Docs), header.DocCount)
	}
	for _, entry := range dict.Docs {
		if entry.Offset < 0 || entry.Len < 0 || int64(entry.Len) > header.RecordsSize-entry.Offset {
			f.Close()
			return nil, fmt.Errorf("%w: record %q at [%d, +%d) outside records section of %d bytes",
				ErrCorruptSnapshot, entry.ID, entry.Offset, entry.Len, header.RecordsSize)
		}
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
	}, nil
}

// checkBounds rejects section offsets and sizes that fall outside a file of
// the given size.
func (h SnapshotHeader) checkBounds(fileSize int64) error {
	sections := []struct {
		name        string
		off, length int64
	}{
		{"records", h.RecordsOff, h.RecordsSize},
		{"dictionary", h.DictOffset, h.DictSize},
	}
	for _, s := range sections {
		if s.off < int64(HeaderSize) || s.length < 0 || s.off > fileSize || s.length > fileSize-s.off {
			return fmt.Errorf("%w: %s section [%d, +%d) outside file of %d bytes",
				ErrCorruptSnapshot, s.name, s.off, s.length, fileSize)
		}
	}
	if end := h.DictOffset + h.DictSize; int64(FooterSize) > fileSize-end {
		return fmt.Errorf("%w: footer at %d outside file of %d bytes", ErrCorruptSnapshot, end, fileSize)
	}
	return nil
}

// Manifest returns the shingle size and hash coefficients of the snapshot.
func (r *Reader) Manifest() Manifest {
	return r.dict.Manifest
}

// Path returns the file the reader was opened from.
func (r *Reader) Path() string {
	return r.filePath
}

// DocCount returns the number of stored documents.
func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

// Record reads the i-th document.
func (r *Reader) Record(i int) (Record, error) {
	if i < 0 || i >= len(r.dict.Docs) {
		return Record{}, fmt.Errorf("record %d out of range [0, %d)", i, len(r.dict.Docs))
	}
	entry := r.dict.Docs[i]
	data := make([]byte, entry.Len)
	if _, err := r.file.ReadAt(data, r.header.RecordsOff+entry.Offset); err != nil {
		return Record{}, fmt.Errorf("reading shingles for %q: %w", entry.ID, err)
	}
	set, err := shingle.Decode(data)
	if err != nil {
		return Record{}, fmt.Errorf("decoding shingles for %q: %w", entry.ID, err)
	}
	return Record{ID: entry.ID, Text: entry.Text, Shingles: set}, nil
}

// Records reads every document in order after verifying the records
// checksum.
func (r *Reader) Records() ([]Record, error) {
	section := io.NewSectionReader(r.file, r.header.RecordsOff, r.header.RecordsSize)
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, section); err != nil {
		return nil, fmt.Errorf("reading records section: %w", err)
	}
	if h.Sum32() != r.header.RecordsCRC {
		return nil, fmt.Errorf("%w: records checksum mismatch: %x", ErrCorruptSnapshot, h.Sum32())
	}
	out := make([]Record, 0, len(r.dict.Docs))
	for i := range r.dict.Docs {
		rec, err := r.Record(i)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Latest returns the path of the newest snapshot in dataDir, or "" when
// none exists.
func Latest(dataDir string) (string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("listing snapshot directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, FileExt) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(dataDir, names[len(names)-1]), nil
}
