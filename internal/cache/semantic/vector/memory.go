package vector

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with an exact cosine scan over in-process
// vectors. It is the default backend when no external vector database is
// configured, and the backend the cache tests run against. Expired entries
// are skipped at search time and dropped lazily.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an in-process vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Search scans all stored vectors and returns the most similar ones first.
func (s *MemoryStore) Search(_ context.Context, vec []float64, opts SearchOptions) ([]SearchResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = 1
	}
	now := time.Now().Unix()

	s.mu.RLock()
	var results []SearchResult
	var expired []string
	for id, e := range s.entries {
		if e.Payload.ExpiresAt > 0 && e.Payload.ExpiresAt <= now {
			expired = append(expired, id)
			continue
		}
		if opts.TenantID != "" && e.Payload.TenantID != opts.TenantID {
			continue
		}
		// Exact match like the Qdrant filter: an entry stored without a
		// model never answers a model-scoped search.
		if opts.Model != "" && e.Payload.Model != opts.Model {
			continue
		}

		score := cosineSimilarity(vec, e.Vector)
		distance := 1 - score
		if opts.DistanceThreshold > 0 && distance > opts.DistanceThreshold {
			continue
		}

		results = append(results, SearchResult{
			ID:       id,
			Score:    score,
			Distance: distance,
			Payload:  e.Payload,
		})
	}
	s.mu.RUnlock()

	if len(expired) > 0 {
		s.mu.Lock()
		for _, id := range expired {
			delete(s.entries, id)
		}
		s.mu.Unlock()
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

// Insert stores a vector with associated payload.
func (s *MemoryStore) Insert(_ context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.TTL > 0 && entry.Payload.ExpiresAt == 0 {
		entry.Payload.ExpiresAt = time.Now().Add(entry.TTL).Unix()
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()
	return nil
}

// Delete removes a vector by ID.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// Ping always succeeds for the in-process store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close releases nothing for the in-process store.
func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored vectors, including not-yet-collected
// expired ones.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
