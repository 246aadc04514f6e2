package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// HNSWStore implements VectorStore using the coder/hnsw pure Go HNSW
// graph. Writes are serialized; queries run concurrently under a read
// lock.
type HNSWStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]

	dimensions int

	// ID mapping (chunk ID <-> internal graph key)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	chunks   map[string]*Chunk   // chunk ID -> metadata
	bySource map[string][]string // source path -> chunk IDs

	closed bool
}

// hnswMetadata is the gob sidecar persisted next to the graph export.
type hnswMetadata struct {
	Dimensions int
	IDMap      map[string]uint64
	NextKey    uint64
	Chunks     map[string]*Chunk
}

// Verify interface implementation at compile time
var _ VectorStore = (*HNSWStore)(nil)

// NewHNSWStore creates an empty store for vectors of the given dimension.
func NewHNSWStore(dimensions int) (*HNSWStore, error) {
	if dimensions <= 0 {
		return nil, qerrors.New(qerrors.ErrCodeInvalidInput,
			fmt.Sprintf("dimensions must be positive, got %d", dimensions), nil)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &HNSWStore{
		graph:      graph,
		dimensions: dimensions,
		idMap:      make(map[string]uint64),
		keyMap:     make(map[uint64]string),
		chunks:     make(map[string]*Chunk),
		bySource:   make(map[string][]string),
	}, nil
}

// Insert replaces all chunks for source with the given set.
func (s *HNSWStore) Insert(ctx context.Context, source string, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	// Validate dimensions before touching any state
	for _, c := range chunks {
		if len(c.Vector) != s.dimensions {
			return qerrors.New(qerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d for chunk %s",
					s.dimensions, len(c.Vector), c.ID), nil)
		}
	}

	s.removeSourceLocked(source)

	ids := make([]string, 0, len(chunks))
	for i := range chunks {
		c := chunks[i]

		// Replace any chunk with the same ID via lazy deletion.
		// Removing nodes from the graph breaks coder/hnsw when the
		// last node goes, so the old node stays and is orphaned.
		if existingKey, exists := s.idMap[c.ID]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, c.ID)
			delete(s.chunks, c.ID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(c.Vector))
		copy(vec, c.Vector)
		normalizeVectorInPlace(vec)
		c.Vector = vec

		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[c.ID] = key
		s.keyMap[key] = c.ID
		s.chunks[c.ID] = &c
		ids = append(ids, c.ID)
	}

	if len(ids) > 0 {
		s.bySource[source] = ids
	}

	return nil
}

// DeleteBySource removes every chunk for source. Unknown sources are a
// no-op.
func (s *HNSWStore) DeleteBySource(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	s.removeSourceLocked(source)
	return nil
}

// removeSourceLocked drops the mappings for all chunks of source.
// Graph nodes remain as orphans (lazy deletion). Caller holds the
// write lock.
func (s *HNSWStore) removeSourceLocked(source string) {
	for _, id := range s.bySource[source] {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.chunks, id)
		}
	}
	delete(s.bySource, source)
}

// Query returns up to k candidates with similarity >= floor, ordered by
// descending similarity, ties broken by most recent CreatedAt.
func (s *HNSWStore) Query(ctx context.Context, vector []float32, k int, floor float64) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	if len(vector) != s.dimensions {
		return nil, qerrors.New(qerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("expected %d dimensions, got %d", s.dimensions, len(vector)), nil)
	}

	if k <= 0 || s.graph.Len() == 0 {
		return []Candidate{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeVectorInPlace(query)

	// Over-fetch to compensate for lazily deleted orphans still in the
	// graph.
	searchK := k + (s.graph.Len() - len(s.idMap))
	nodes := s.graph.Search(query, searchK)

	candidates := make([]Candidate, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // orphaned by lazy deletion
		}

		// CosineDistance = 1 - cosine similarity
		similarity := 1.0 - float64(s.graph.Distance(query, node.Value))
		if similarity < floor {
			continue
		}

		candidates = append(candidates, Candidate{
			Chunk:      s.chunks[id],
			Similarity: similarity,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Chunk.CreatedAt.After(candidates[j].Chunk.CreatedAt)
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	return candidates, nil
}

// CountBySource returns the number of chunks stored for source.
func (s *HNSWStore) CountBySource(source string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.bySource[source])
}

// Count returns the total number of stored chunks.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Dimensions returns the vector dimension the store was created with.
func (s *HNSWStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

// Save persists the graph and metadata sidecar to disk using temp file
// + rename.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	if err := s.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}

	return nil
}

// saveMetadata writes the gob sidecar with ID mappings and chunk
// metadata.
func (s *HNSWStore) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		Dimensions: s.dimensions,
		IDMap:      s.idMap,
		NextKey:    s.nextKey,
		Chunks:     s.chunks,
	}

	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load restores the graph and metadata from disk.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return qerrors.New(qerrors.ErrCodeCorruptIndex, "import graph", err)
	}

	return nil
}

// loadMetadata reads the gob sidecar and rebuilds the derived maps.
func (s *HNSWStore) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return qerrors.New(qerrors.ErrCodeCorruptIndex, "decode metadata", err)
	}

	s.dimensions = meta.Dimensions
	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.chunks = meta.Chunks

	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}

	s.bySource = make(map[string][]string)
	for id, c := range s.chunks {
		s.bySource[c.Source] = append(s.bySource[c.Source], id)
	}
	for _, ids := range s.bySource {
		sort.Strings(ids)
	}

	return nil
}

// ReadStoredDimensions reads the dimension from an existing store's
// metadata sidecar. Returns 0 when no sidecar exists (fresh start).
func ReadStoredDimensions(path string) (int, error) {
	file, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, qerrors.New(qerrors.ErrCodeCorruptIndex, "decode metadata", err)
	}
	return meta.Dimensions, nil
}

// Close releases resources.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.graph = nil
	return nil
}

// normalizeVectorInPlace scales v to unit length. Zero vectors are left
// unchanged.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
