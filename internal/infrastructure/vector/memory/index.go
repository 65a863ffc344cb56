// Package memory is an exact in-process vector index: unit-normalized
// vectors compared by inner product.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
)

type Index struct {
	mu      sync.RWMutex
	vectors [][]float32
	missing int
	dim     int
}

func New() *Index {
	return &Index{}
}

func (i *Index) Add(_ context.Context, start int, vectors [][]float32) error {
	normalized := make([][]float32, len(vectors))
	for n, v := range vectors {
		if len(v) > 0 {
			normalized[n] = NormalizeL2(v)
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if start != len(i.vectors) {
		return fmt.Errorf("vector index: add at %d, expected %d", start, len(i.vectors))
	}
	for n, v := range normalized {
		if v == nil {
			i.missing++
			continue
		}
		if err := i.checkDim(len(v)); err != nil {
			i.missing++
			normalized[n] = nil
		}
	}
	i.vectors = append(i.vectors, normalized...)
	return nil
}

func (i *Index) Set(_ context.Context, position int, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("vector index: empty vector for position %d", position)
	}
	normalized := NormalizeL2(vector)

	i.mu.Lock()
	defer i.mu.Unlock()
	if position < 0 || position >= len(i.vectors) {
		return fmt.Errorf("vector index: position %d out of range", position)
	}
	if err := i.checkDim(len(normalized)); err != nil {
		return err
	}
	if i.vectors[position] == nil {
		i.missing--
	}
	i.vectors[position] = normalized
	return nil
}

// Nearest scans every stored vector. Placeholders and vectors of another
// dimension are skipped.
func (i *Index) Nearest(_ context.Context, query []float32, k int) ([]domain.Neighbor, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	q := NormalizeL2(query)

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.dim != 0 && len(q) != i.dim {
		return nil, fmt.Errorf("vector index: query has %d dimensions, index has %d", len(q), i.dim)
	}

	out := make([]domain.Neighbor, 0, k+1)
	for pos, v := range i.vectors {
		if v == nil {
			continue
		}
		score := Dot(q, v)
		if len(out) == k && score <= out[k-1].Score {
			continue
		}
		out = append(out, domain.Neighbor{Position: pos, Score: score})
		sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
		if len(out) > k {
			out = out[:k]
		}
	}
	return out, nil
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.vectors)
}

func (i *Index) Missing() []int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.missing == 0 {
		return nil
	}
	out := make([]int, 0, i.missing)
	for pos, v := range i.vectors {
		if v == nil {
			out = append(out, pos)
		}
	}
	return out
}

func (i *Index) Reset(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.vectors = nil
	i.missing = 0
	i.dim = 0
	return nil
}

func (i *Index) checkDim(n int) error {
	if i.dim == 0 {
		i.dim = n
		return nil
	}
	if n != i.dim {
		return fmt.Errorf("vector index: vector has %d dimensions, index has %d", n, i.dim)
	}
	return nil
}

// NormalizeL2 returns a new vector normalized to unit L2 norm.
func NormalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	n := math.Sqrt(sum)
	out := make([]float32, len(v))
	if n == 0 {
		copy(out, v)
		return out
	}
	inv := float32(1.0 / n)
	for i := range v {
		out[i] = v[i] * inv
	}
	return out
}

func Dot(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
