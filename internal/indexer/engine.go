package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/minhash"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/shingle"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/similarity"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultThreshold is the distance below which two documents are reported
// as near-duplicates.
const DefaultThreshold = 0.2

// ReasonNoSignature marks a query whose shingle set was empty.
const ReasonNoSignature = "no_signature"

// ReasonNoCandidates marks a query that shared no bucket with the corpus.
const ReasonNoCandidates = "no_candidates"

// ReasonAboveThreshold marks a query whose verified candidates were all too far.
const ReasonAboveThreshold = "above_threshold"

// ctxCheckInterval is how many candidates are verified between checks for
// cancellation.
const ctxCheckInterval = 256

// Document is one indexed corpus entry. Handles are dense and assigned in
// input order; a Document never changes after it enters the arena.
type Document struct {
	Handle    uint32
	ID        string
	Text      string
	Shingles  shingle.Set
	Signature minhash.Signature
}

// Input is a pre-cleaned, pre-shingled document handed to Build or Insert.
type Input struct {
	ID       string
	Text     string
	Shingles shingle.Set
}

// Options configure a new Engine.
type Options struct {
	Params      minhash.Params
	ShingleSize int
	Workers     int
	KeepText    bool
}

// Engine owns the document arena and the LSH band index built from it.
// Queries take a read lock; Build swaps in a fresh arena and index, and the
// opt-in Insert takes the write lock, so lookups never observe a partially
// inserted document.
type Engine struct {
	family      *minhash.Family
	shingleSize int
	workers     int
	keepText    bool
	logger      *slog.Logger

	mu    sync.RWMutex
	docs  []*Document
	byID  map[string]uint32
	bands *index.BandIndex
}

// NewEngine draws a hash family from opts.Params and returns an empty engine.
func NewEngine(opts Options) (*Engine, error) {
	family, err := minhash.NewFamily(opts.Params)
	if err != nil {
		return nil, fmt.Errorf("creating hash family: %w", err)
	}
	return NewEngineWithFamily(family, opts)
}

// NewEngineWithFamily returns an empty engine that hashes with family;
// opts.Params is ignored. Used when restoring a snapshot, whose coefficients
// must be reused exactly.
func NewEngineWithFamily(family *minhash.Family, opts Options) (*Engine, error) {
	if opts.ShingleSize < 1 || opts.ShingleSize > shingle.MaxK {
		return nil, fmt.Errorf("%w: shingle size %d outside [1, %d]",
			apperrors.ErrConfiguration, opts.ShingleSize, shingle.MaxK)
	}
	bands, err := index.New(family.Bands())
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		family:      family,
		shingleSize: opts.ShingleSize,
		workers:     workers,
		keepText:    opts.KeepText,
		logger:      slog.Default().With("component", "indexer"),
		byID:        make(map[string]uint32),
		bands:       bands,
	}, nil
}

// Family returns the hash family shared by every indexed document.
func (e *Engine) Family() *minhash.Family {
	return e.family
}

// ShingleSize returns the k used by ShingleText.
func (e *Engine) ShingleSize() int {
	return e.shingleSize
}

// ShingleText cleans raw text and shingles it with the engine's k.
func (e *Engine) ShingleText(raw string) (string, shingle.Set) {
	cleaned := tokenizer.Clean(raw)
	return cleaned, shingle.Shingle(cleaned, e.shingleSize)
}

// BuildReport describes the outcome of Build.
type BuildReport struct {
	Documents int           `json:"documents"`
	Indexed   int           `json:"indexed"`
	Skipped   []string      `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// Build replaces the engine's contents with inputs. Documents with an empty
// shingle set get no signature and are listed in BuildReport.Skipped; they
// never fail the batch. Signatures are computed on parallel workers and
// merged into the band tables under per-band locks. progress, if non-nil,
// is called once per input and may be called concurrently.
func (e *Engine) Build(ctx context.Context, inputs []Input, progress func(n int)) (*BuildReport, error) {
	start := time.Now()
	report := &BuildReport{Documents: len(inputs), Skipped: make([]string, 0)}
	bands, err := index.New(e.family.Bands())
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(inputs))
	byID := make(map[string]uint32, len(inputs))
	for _, in := range inputs {
		if in.Shingles.IsEmpty() {
			report.Skipped = append(report.Skipped, in.ID)
			e.logger.Debug("document skipped, empty shingle set", "doc_id", in.ID)
			if progress != nil {
				progress(1)
			}
			continue
		}
		doc := &Document{
			Handle:   uint32(len(docs)),
			ID:       in.ID,
			Shingles: in.Shingles,
		}
		if e.keepText {
			doc.Text = in.Text
		}
		if _, dup := byID[in.ID]; dup {
			e.logger.Warn("duplicate document id, first occurrence wins id lookups", "doc_id", in.ID)
		} else {
			byID[in.ID] = doc.Handle
		}
		docs = append(docs, doc)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	chunk := (len(docs) + e.workers - 1) / e.workers
	if chunk < 64 {
		chunk = 64
	}
	for lo := 0; lo < len(docs); lo += chunk {
		part := docs[lo:min(lo+chunk, len(docs))]
		g.Go(func() error {
			for _, doc := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := e.sign(bands, doc); err != nil {
					return fmt.Errorf("indexing document %s: %w", doc.ID, err)
				}
				if progress != nil {
					progress(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.docs = docs
	e.byID = byID
	e.bands = bands
	e.mu.Unlock()

	report.Indexed = len(docs)
	report.Duration = time.Since(start)
	e.logger.Info("index built",
		"documents", report.Documents,
		"indexed", report.Indexed,
		"skipped", len(report.Skipped),
		"bands", e.family.Bands(),
		"rows_per_band", e.family.RowsPerBand(),
		"duration", report.Duration,
	)
	return report, nil
}

// sign computes doc's signature and band keys and inserts it into bands.
func (e *Engine) sign(bands *index.BandIndex, doc *Document) error {
	sig, err := e.family.Signature(doc.Shingles)
	if err != nil {
		return err
	}
	keys, err := e.family.BandKeys(sig)
	if err != nil {
		return err
	}
	doc.Signature = sig
	return bands.Insert(doc.Handle, keys)
}

// Insert appends a single document to the arena and index. It returns
// ErrEmptyInput, leaving the engine untouched, when in has no shingles.
func (e *Engine) Insert(in Input) (*Document, error) {
	sig, err := e.family.Signature(in.Shingles)
	if err != nil {
		return nil, err
	}
	keys, err := e.family.BandKeys(sig)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	doc := &Document{
		Handle:    uint32(len(e.docs)),
		ID:        in.ID,
		Shingles:  in.Shingles,
		Signature: sig,
	}
	if e.keepText {
		doc.Text = in.Text
	}
	if err := e.bands.Insert(doc.Handle, keys); err != nil {
		return nil, err
	}
	e.docs = append(e.docs, doc)
	if _, dup := e.byID[in.ID]; !dup {
		e.byID[in.ID] = doc.Handle
	}
	e.logger.Debug("document inserted", "doc_id", in.ID, "handle", doc.Handle)
	return doc, nil
}

// Len returns the number of indexed documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

// Document returns the document stored under handle.
func (e *Engine) Document(handle uint32) (*Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if int(handle) >= len(e.docs) {
		return nil, false
	}
	return e.docs[handle], true
}

// DocumentByID returns the first document indexed under id.
func (e *Engine) DocumentByID(id string) (*Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.byID[id]
	if !ok {
		return nil, false
	}
	return e.docs[h], true
}

// Documents returns a snapshot of the arena in handle order.
func (e *Engine) Documents() []*Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Document, len(e.docs))
	copy(out, e.docs)
	return out
}

// Candidates returns the handles sharing at least one band bucket with
// shingles, in ascending order. An empty set has no candidates.
func (e *Engine) Candidates(shingles shingle.Set) ([]uint32, error) {
	keys, err := e.bandKeys(shingles)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyInput) {
			return nil, nil
		}
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	bm, err := e.bands.Lookup(keys)
	if err != nil {
		return nil, err
	}
	return bm.ToArray(), nil
}

func (e *Engine) bandKeys(shingles shingle.Set) ([]uint64, error) {
	sig, err := e.family.Signature(shingles)
	if err != nil {
		return nil, err
	}
	return e.family.BandKeys(sig)
}

// Stats describes the engine configuration and index occupancy.
type Stats struct {
	Documents     int         `json:"documents"`
	ShingleSize   int         `json:"shingle_size"`
	NumHashes     int         `json:"num_hashes"`
	Bands         int         `json:"bands"`
	RowsPerBand   int         `json:"rows_per_band"`
	ThresholdKnee float64     `json:"similarity_knee"`
	Index         index.Stats `json:"index"`
}

// Stats returns a point-in-time description of the engine.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Documents:     len(e.docs),
		ShingleSize:   e.shingleSize,
		NumHashes:     e.family.NumHashes(),
		Bands:         e.family.Bands(),
		RowsPerBand:   e.family.RowsPerBand(),
		ThresholdKnee: e.family.Params().Threshold(),
		Index:         e.bands.Stats(),
	}
}

// DistanceDistribution samples n random pairs of indexed documents.
func (e *Engine) DistanceDistribution(n int, seed int64) similarity.Distribution {
	e.mu.RLock()
	sets := make([]shingle.Set, len(e.docs))
	for i, d := range e.docs {
		sets[i] = d.Shingles
	}
	e.mu.RUnlock()
	return similarity.SampleDistribution(sets, n, seed)
}

func sortHandles(hs []uint32) {
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
}
