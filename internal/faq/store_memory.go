package faq

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps embeddings in memory and ranks by cosine similarity.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]memoryDoc
}

type memoryDoc struct {
	Document
	embedding []float32
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]memoryDoc)}
}

func (s *MemoryStore) Insert(ctx context.Context, doc Document, embedding []float32) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	s.docs[doc.TenantID] = append(s.docs[doc.TenantID], memoryDoc{Document: doc, embedding: embedding})
	return doc.ID, nil
}

func (s *MemoryStore) Search(ctx context.Context, tenantID string, embedding []float32, threshold float64, limit int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Match
	for _, d := range s.docs[tenantID] {
		score := cosineSimilarity(embedding, d.embedding)
		if score > threshold {
			out = append(out, Match{Document: d.Document, Similarity: score})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
