package vector

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ltmc/internal/apperrors"
	"ltmc/internal/logging"
)

// FlatIndex is an exhaustive-scan index persisted as a single gob
// file. Exhaustive search is exact and fast enough below roughly 1e5
// vectors; beyond that the provider abstraction is the escape hatch.
type FlatIndex struct {
	mu        sync.RWMutex
	path      string
	dimension int
	metric    string
	vectors   map[int64][]float32
	logger    logging.Logger
}

// flatSnapshot is the on-disk layout.
type flatSnapshot struct {
	Dimension int
	Metric    string
	Vectors   map[int64][]float32
}

// OpenFlatIndex loads the index file, or starts fresh when the file is
// missing or unreadable. A corrupt file is logged and set aside, never
// a crash.
func OpenFlatIndex(path string, dimension int, metric string, logger logging.Logger) (*FlatIndex, error) {
	idx := &FlatIndex{
		path:      path,
		dimension: dimension,
		metric:    metric,
		vectors:   make(map[int64][]float32),
		logger:    logger.WithComponent("vector"),
	}

	f, err := os.Open(path) // #nosec G304 -- path comes from validated config
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeVector, "opening vector index", err)
	}
	defer f.Close()

	var snap flatSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		idx.logger.Warn("vector index file is corrupt, starting fresh", "path", path, "error", err.Error())
		return idx, nil
	}
	if snap.Dimension != dimension {
		idx.logger.Warn("vector index dimension mismatch, starting fresh",
			"path", path, "file_dimension", snap.Dimension, "configured_dimension", dimension)
		return idx, nil
	}
	idx.vectors = snap.Vectors
	if idx.vectors == nil {
		idx.vectors = make(map[int64][]float32)
	}
	return idx, nil
}

// Add stores a vector, replacing any existing entry with the same id.
func (idx *FlatIndex) Add(ctx context.Context, vectorID int64, vec []float32) error {
	if len(vec) != idx.dimension {
		return apperrors.NewValidationError("vector",
			fmt.Sprintf("dimension %d does not match index dimension %d", len(vec), idx.dimension), vectorID)
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)

	idx.mu.Lock()
	idx.vectors[vectorID] = cp
	idx.mu.Unlock()
	return nil
}

// Search scans every vector and returns the k best matches in
// descending similarity. Ties break on ascending vector id so ranks
// are stable.
func (idx *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	if len(query) != idx.dimension {
		return nil, apperrors.NewValidationError("query_vector",
			fmt.Sprintf("dimension %d does not match index dimension %d", len(query), idx.dimension), nil)
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	matches := make([]Match, 0, len(idx.vectors))
	for id, vec := range idx.vectors {
		matches = append(matches, Match{VectorID: id, Score: idx.similarity(query, vec)})
	}
	idx.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].VectorID < matches[j].VectorID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// similarity is higher-is-better for both metrics; l2 distances are
// negated so the sort order stays uniform.
func (idx *FlatIndex) similarity(a, b []float32) float32 {
	if idx.metric == "l2" {
		var sum float64
		for i := range a {
			d := float64(a[i] - b[i])
			sum += d * d
		}
		return float32(-math.Sqrt(sum))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Remove deletes a vector. Removing an unknown id is a no-op.
func (idx *FlatIndex) Remove(ctx context.Context, vectorID int64) error {
	idx.mu.Lock()
	delete(idx.vectors, vectorID)
	idx.mu.Unlock()
	return nil
}

// IDs lists every stored vector id in ascending order.
func (idx *FlatIndex) IDs(ctx context.Context) ([]int64, error) {
	idx.mu.RLock()
	ids := make([]int64, 0, len(idx.vectors))
	for id := range idx.vectors {
		ids = append(ids, id)
	}
	idx.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Count reports the number of stored vectors.
func (idx *FlatIndex) Count(ctx context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors), nil
}

// Save writes a snapshot to <path>.tmp, fsyncs, and renames it over
// the canonical path. A failure before the rename leaves the live
// index untouched. Transient filesystem errors are retried briefly.
func (idx *FlatIndex) Save(ctx context.Context) error {
	idx.mu.RLock()
	snap := flatSnapshot{
		Dimension: idx.dimension,
		Metric:    idx.metric,
		Vectors:   make(map[int64][]float32, len(idx.vectors)),
	}
	for id, vec := range idx.vectors {
		snap.Vectors[id] = vec
	}
	idx.mu.RUnlock()

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewConstantBackOff(50*time.Millisecond), 3), ctx)
	err := backoff.Retry(func() error {
		return idx.writeSnapshot(&snap)
	}, policy)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeVector, "saving vector index", err)
	}
	return nil
}

func (idx *FlatIndex) writeSnapshot(snap *flatSnapshot) error {
	tmp := idx.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640) // #nosec G304 -- path comes from validated config
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encoding vector index: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("syncing vector index: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("closing temp index file: %w", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing vector index: %w", err)
	}
	return nil
}

// Reload discards in-memory state in favor of the last saved
// snapshot. The coordinator uses it to unwind additions after a
// failed save.
func (idx *FlatIndex) Reload(ctx context.Context) error {
	fresh, err := OpenFlatIndex(idx.path, idx.dimension, idx.metric, idx.logger)
	if err != nil {
		return err
	}
	idx.mu.Lock()
	idx.vectors = fresh.vectors
	idx.mu.Unlock()
	return nil
}

// Close persists a final snapshot.
func (idx *FlatIndex) Close() error {
	return idx.Save(context.Background())
}
