package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/minhash"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/shingle"
)

// MagicBytes identifies a valid .ndss snapshot file.
const (
	MagicBytes    uint32 = 0x4E445353
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
	FileExt              = ".ndss"
	filePrefix           = "snap_"
)

// SnapshotHeader is the 64-byte header written at the start of every snapshot.
type SnapshotHeader struct {
	Magic       uint32
	Version     uint32
	DocCount    uint32
	RecordsCRC  uint32
	CreatedAt   int64
	DictOffset  int64
	DictSize    int64
	RecordsOff  int64
	RecordsSize int64
}

// Manifest carries everything needed to rebuild an identical index: the
// shingle width and the exact hash coefficients.
type Manifest struct {
	ShingleSize  int                  `json:"shingle_size"`
	Coefficients minhash.Coefficients `json:"coefficients"`
	CreatedAt    time.Time            `json:"created_at"`
}

// DictEntry locates one document's encoded shingle set in the records
// section.
type DictEntry struct {
	ID       string `json:"id"`
	Text     string `json:"t,omitempty"`
	Offset   int64  `json:"o"`
	Len      int    `json:"l"`
	Shingles int    `json:"n"`
}

type dictionary struct {
	Manifest Manifest    `json:"manifest"`
	Docs     []DictEntry `json:"docs"`
}

// Record is one document as persisted. Records are stored in handle order.
type Record struct {
	ID       string
	Text     string
	Shingles shingle.Set
}

// Writer serialises index contents into snapshot files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes snapshots into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new snapshot holding m and records. It writes
// to a .tmp file first and renames on success, so readers never observe a
// partial snapshot. It returns the full path of the new file.
func (w *Writer) Write(m Manifest, records []Record) (string, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	name := fmt.Sprintf("%s%019d%s", filePrefix, m.CreatedAt.UnixNano(), FileExt)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()
	defer os.Remove(tmpPath)

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	recordsStart := int64(HeaderSize)
	offset := int64(0)
	recordsCRC := crc32.NewIEEE()
	dict := dictionary{Manifest: m, Docs: make([]DictEntry, 0, len(records))}
	for _, rec := range records {
		data, err := rec.Shingles.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("encoding shingles for %q: %w", rec.ID, err)
		}
		if _, err := f.Write(data); err != nil {
			return "", fmt.Errorf("writing shingles for %q: %w", rec.ID, err)
		}
		recordsCRC.Write(data)
		dict.Docs = append(dict.Docs, DictEntry{
			ID:       rec.ID,
			Text:     rec.Text,
			Offset:   offset,
			Len:      len(data),
			Shingles: rec.Shingles.Len(),
		})
		offset += int64(len(data))
	}
	recordsSize := offset
	dictStart := recordsStart + recordsSize

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	dictSize := int64(len(dictData))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(records)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(dictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(recordsSize))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(records)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], recordsCRC.Sum32())
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(m.CreatedAt.Unix()))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(dictSize))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(recordsStart))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(recordsSize))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	return finalPath, nil
}
