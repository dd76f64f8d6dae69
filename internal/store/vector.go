package store

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/lyralabs/evidence-runtime/internal/errors"
)

// vectorBucket is the bbolt bucket holding durable fragment embeddings,
// keyed by fragment_id (SPEC_FULL.md §11: bbolt as the vector cache backing
// the Extractor/NLI Verifier's vector_search operation).
const vectorBucket = "fragment_embeddings"

// VectorIndex is an in-memory cosine-similarity index over fragment
// embeddings, snapshotted to a bbolt file so it survives restarts without
// re-embedding every fragment. Cosine search itself stays in-process
// (no pgvector/sqlite-vss in the stack), matching spec §4.3's "approximate
// nearest neighbour over fragment embeddings" without naming a backend.
type VectorIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32 // fragment_id -> embedding
	taskOf  map[string]string    // fragment_id -> task_id, for scoping search
	db      *bolt.DB
}

// OpenVectorIndex opens (or creates) the bbolt-backed embedding cache at
// path and loads any previously persisted vectors into memory.
func OpenVectorIndex(path string) (*VectorIndex, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	vi := &VectorIndex{
		vectors: make(map[string][]float32),
		taskOf:  make(map[string]string),
		db:      db,
	}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(vectorBucket))
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var rec vectorRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // skip corrupt record rather than fail startup
			}
			vi.vectors[string(k)] = rec.Embedding
			vi.taskOf[string(k)] = rec.TaskID
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return vi, nil
}

func (vi *VectorIndex) Close() error {
	return vi.db.Close()
}

type vectorRecord struct {
	TaskID    string    `json:"task_id"`
	Embedding []float32 `json:"embedding"`
}

// Put stores (or overwrites) a fragment's embedding, persisting it to bbolt.
func (vi *VectorIndex) Put(ctx context.Context, taskID, fragmentID string, embedding []float32) error {
	vi.mu.Lock()
	vi.vectors[fragmentID] = embedding
	vi.taskOf[fragmentID] = taskID
	vi.mu.Unlock()

	buf, err := json.Marshal(vectorRecord{TaskID: taskID, Embedding: embedding})
	if err != nil {
		return err
	}
	return vi.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(vectorBucket)).Put([]byte(fragmentID), buf)
	})
}

// Delete removes a fragment's embedding (used if a page is deleted/invalidated).
func (vi *VectorIndex) Delete(fragmentID string) error {
	vi.mu.Lock()
	delete(vi.vectors, fragmentID)
	delete(vi.taskOf, fragmentID)
	vi.mu.Unlock()
	return vi.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(vectorBucket)).Delete([]byte(fragmentID))
	})
}

// ScoredFragment is one vector_search result.
type ScoredFragment struct {
	FragmentID string  `json:"fragment_id"`
	Score      float64 `json:"score"`
}

// Search returns the top-k fragments by cosine similarity to query, scoped
// to a task (spec §4.3: vector_search(claim_text, k) over task fragments).
func (vi *VectorIndex) Search(ctx context.Context, taskID string, query []float32, k int) ([]ScoredFragment, error) {
	if k <= 0 {
		return nil, errors.InvalidArgumentError("k must be > 0")
	}
	vi.mu.RLock()
	defer vi.mu.RUnlock()

	results := make([]ScoredFragment, 0, len(vi.vectors))
	for fragID, emb := range vi.vectors {
		if vi.taskOf[fragID] != taskID {
			continue
		}
		score := cosineSimilarity(query, emb)
		results = append(results, ScoredFragment{FragmentID: fragID, Score: score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
