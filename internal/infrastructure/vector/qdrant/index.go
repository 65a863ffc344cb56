// Package qdrant stores document embeddings in a Qdrant collection. Point
// ids are corpus positions; documents that could not be embedded are kept
// as vector-less points so the collection stays aligned with the corpus.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
)

const (
	vectorName   = "content"
	stateField   = "state"
	stateEmbed   = "embedded"
	statePending = "pending"
	upsertBatch  = 256
	scrollBatch  = uint32(256)
)

var ErrUnreachable = errors.New("qdrant unreachable")

// pointsAPI is the subset of *qdrant.Client the index uses.
type pointsAPI interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	Scroll(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
}

type Config struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
	VectorSize int
}

type Index struct {
	api        pointsAPI
	collection string
	dim        int
	closeFn    func() error
	newBackoff func() backoff.BackOff

	mu      sync.RWMutex
	size    int
	missing map[int]struct{}
}

// Open connects, waits for the server to report healthy, ensures the
// collection exists and loads its size and pending positions.
func Open(ctx context.Context, cfg Config) (*Index, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	health := func() error {
		_, err := client.HealthCheck(ctx)
		return err
	}
	if err := backoff.Retry(health, backoff.WithContext(startupBackoff(), ctx)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	idx := newIndex(client, cfg.Collection, cfg.VectorSize)
	idx.closeFn = client.Close
	if err := idx.load(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

func newIndex(api pointsAPI, collection string, dim int) *Index {
	return &Index{
		api:        api,
		collection: collection,
		dim:        dim,
		newBackoff: writeBackoff,
		missing:    make(map[int]struct{}),
	}
}

func startupBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func writeBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	return b
}

func (i *Index) Close() error {
	if i.closeFn == nil {
		return nil
	}
	return i.closeFn()
}

func (i *Index) load(ctx context.Context) error {
	if err := i.ensureCollection(ctx); err != nil {
		return err
	}
	count, err := i.api.Count(ctx, &qdrant.CountPoints{
		CollectionName: i.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("count qdrant points: %w", err)
	}
	pending, err := i.pendingPositions(ctx)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.size = int(count)
	i.missing = pending
	return nil
}

func (i *Index) ensureCollection(ctx context.Context) error {
	exists, err := i.api.CollectionExists(ctx, i.collection)
	if err != nil {
		return fmt.Errorf("check qdrant collection: %w", err)
	}
	if exists {
		return nil
	}
	err = i.api.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(i.dim),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("create qdrant collection: %w", err)
	}
	return nil
}

func (i *Index) pendingPositions(ctx context.Context) (map[int]struct{}, error) {
	pending := make(map[int]struct{})
	var offset *qdrant.PointId
	for {
		points, err := i.api.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: i.collection,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch(stateField, statePending)},
			},
			Limit:       qdrant.PtrOf(scrollBatch),
			Offset:      offset,
			WithPayload: qdrant.NewWithPayload(false),
		})
		if err != nil {
			return nil, fmt.Errorf("scroll pending qdrant points: %w", err)
		}
		for _, p := range points {
			pending[int(p.GetId().GetNum())] = struct{}{}
		}
		if uint32(len(points)) < scrollBatch {
			return pending, nil
		}
		next := points[len(points)-1].GetId().GetNum() + 1
		offset = qdrant.NewIDNum(next)
	}
}

// Add appends vectors at positions start..start+len-1. Nil entries are
// stored as pending points. When an upsert fails the positions are still
// reserved and reported by Missing, so the length keeps tracking the store
// and a reindex can fill them.
func (i *Index) Add(ctx context.Context, start int, vectors [][]float32) error {
	i.mu.RLock()
	size := i.size
	i.mu.RUnlock()
	if start != size {
		return fmt.Errorf("vector index: add at %d, expected %d", start, size)
	}

	points := make([]*qdrant.PointStruct, 0, len(vectors))
	pending := make([]int, 0)
	for n, v := range vectors {
		pos := start + n
		if len(v) == 0 || (i.dim > 0 && len(v) != i.dim) {
			pending = append(pending, pos)
			points = append(points, point(pos, nil))
			continue
		}
		points = append(points, point(pos, v))
	}

	var upsertErr error
	for lo := 0; lo < len(points); lo += upsertBatch {
		hi := min(lo+upsertBatch, len(points))
		if err := i.upsert(ctx, points[lo:hi]); err != nil {
			upsertErr = err
			for pos := start + lo; pos < start+len(points); pos++ {
				pending = append(pending, pos)
			}
			break
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.size = start + len(vectors)
	for _, pos := range pending {
		i.missing[pos] = struct{}{}
	}
	return upsertErr
}

func (i *Index) Set(ctx context.Context, position int, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("vector index: empty vector for position %d", position)
	}
	if i.dim > 0 && len(vector) != i.dim {
		return fmt.Errorf("vector index: vector has %d dimensions, index has %d", len(vector), i.dim)
	}
	i.mu.RLock()
	size := i.size
	i.mu.RUnlock()
	if position < 0 || position >= size {
		return fmt.Errorf("vector index: position %d out of range", position)
	}

	if err := i.upsert(ctx, []*qdrant.PointStruct{point(position, vector)}); err != nil {
		return err
	}

	i.mu.Lock()
	delete(i.missing, position)
	i.mu.Unlock()
	return nil
}

func (i *Index) Nearest(ctx context.Context, query []float32, k int) ([]domain.Neighbor, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	results, err := i.api.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(query...),
		Using:          qdrant.PtrOf(vectorName),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("query qdrant: %w", err)
	}

	out := make([]domain.Neighbor, 0, len(results))
	for _, r := range results {
		out = append(out, domain.Neighbor{
			Position: int(r.GetId().GetNum()),
			Score:    float64(r.GetScore()),
		})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out, nil
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.size
}

func (i *Index) Missing() []int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if len(i.missing) == 0 {
		return nil
	}
	out := make([]int, 0, len(i.missing))
	for pos := range i.missing {
		out = append(out, pos)
	}
	sort.Ints(out)
	return out
}

// Reset drops and recreates the collection.
func (i *Index) Reset(ctx context.Context) error {
	if err := i.api.DeleteCollection(ctx, i.collection); err != nil {
		return fmt.Errorf("delete qdrant collection: %w", err)
	}
	if err := i.ensureCollection(ctx); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.size = 0
	i.missing = make(map[int]struct{})
	return nil
}

func (i *Index) upsert(ctx context.Context, points []*qdrant.PointStruct) error {
	op := func() error {
		_, err := i.api.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: i.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(i.newBackoff(), ctx)); err != nil {
		return domain.WrapError(domain.ErrTemporary, "qdrant upsert", err)
	}
	return nil
}

func point(pos int, vector []float32) *qdrant.PointStruct {
	if vector == nil {
		return &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(pos)),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
			Payload: qdrant.NewValueMap(map[string]any{"position": pos, stateField: statePending}),
		}
	}
	return &qdrant.PointStruct{
		Id: qdrant.NewIDNum(uint64(pos)),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
			vectorName: qdrant.NewVector(vector...),
		}),
		Payload: qdrant.NewValueMap(map[string]any{"position": pos, stateField: stateEmbed}),
	}
}
