package e2e

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/newsloom/newsloom/pkg/vector"
)

type memPoint struct {
	vec     []float32
	payload map[string]string
}

// MemoryIndex is an in-process vector index with cosine search, standing in
// for the real backend in end-to-end tests. Points live per collection,
// keyed by point UUID; upserting an existing ID replaces the point.
type MemoryIndex struct {
	mu        sync.Mutex
	points    map[string]map[uuid.UUID]memPoint
	healthErr error
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string]map[uuid.UUID]memPoint)}
}

func (m *MemoryIndex) Upsert(_ context.Context, collection string, id uuid.UUID, vec []float32, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.points[collection]
	if coll == nil {
		coll = make(map[uuid.UUID]memPoint)
		m.points[collection] = coll
	}

	fields := make(map[string]string, len(payload))
	for k, v := range payload {
		fields[k] = fmt.Sprint(v)
	}
	coll[id] = memPoint{vec: append([]float32(nil), vec...), payload: fields}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, collection string, vec []float32, limit int, scoreThreshold float32) ([]vector.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hits []vector.Hit
	for id, p := range m.points[collection] {
		score := cosine(vec, p.vec)
		if score < scoreThreshold {
			continue
		}
		payload := make(map[string]string, len(p.payload))
		for k, v := range p.payload {
			payload[k] = v
		}
		hits = append(hits, vector.Hit{ID: id.String(), Score: score, Payload: payload})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) Health(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthErr
}

// SetHealthErr makes Health return err until cleared with nil.
func (m *MemoryIndex) SetHealthErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthErr = err
}

// Len returns how many points a collection holds.
func (m *MemoryIndex) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points[collection])
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
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
