package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
)

type corpusFake struct {
	mu      sync.Mutex
	docs    []domain.Document
	appends int
	err     error
}

func (f *corpusFake) Load(context.Context) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Document(nil), f.docs...), nil
}

func (f *corpusFake) Append(_ context.Context, docs []domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.appends++
	f.docs = append(f.docs, docs...)
	return nil
}

type embedderFake struct {
	mu     sync.Mutex
	err    error
	calls  int
	vector []float32
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec()
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.vec(), nil
}

func (f *embedderFake) vec() []float32 {
	if f.vector != nil {
		return f.vector
	}
	return []float32{1, 0}
}

// vectorsFake stores vectors by position and answers Nearest with a canned
// neighbour list when one is set.
type vectorsFake struct {
	mu        sync.Mutex
	vectors   [][]float32
	neighbors []domain.Neighbor
	err       error
	onAdd     func(start int)
}

func (f *vectorsFake) Add(_ context.Context, start int, vectors [][]float32) error {
	if f.onAdd != nil {
		f.onAdd(start)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if start != len(f.vectors) {
		return errors.New("misaligned add")
	}
	f.vectors = append(f.vectors, vectors...)
	return nil
}

func (f *vectorsFake) Set(_ context.Context, pos int, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pos < 0 || pos >= len(f.vectors) {
		return errors.New("position out of range")
	}
	f.vectors[pos] = vector
	return nil
}

func (f *vectorsFake) Nearest(context.Context, []float32, int) ([]domain.Neighbor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.neighbors, nil
}

func (f *vectorsFake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.vectors)
}

func (f *vectorsFake) Missing() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for i, v := range f.vectors {
		if v == nil {
			out = append(out, i)
		}
	}
	return out
}

func (f *vectorsFake) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = nil
	return nil
}

type providerFake struct {
	method domain.Method
	hit    domain.LiveHit
	ok     bool
	err    error
	calls  int
}

func (f *providerFake) Method() domain.Method { return f.method }

func (f *providerFake) Lookup(context.Context, string) (domain.LiveHit, bool, error) {
	f.calls++
	return f.hit, f.ok, f.err
}

type tierFake struct {
	name   string
	result domain.Result
	ok     bool
	err    error
	accept bool
	calls  int
}

func (f *tierFake) Name() string { return f.name }

func (f *tierFake) Match(context.Context, string) (domain.Result, bool, error) {
	f.calls++
	return f.result, f.ok, f.err
}

func (f *tierFake) Accept(domain.Result) bool { return f.accept }

type observerFake struct {
	mu       sync.Mutex
	tiers    map[string]int
	methods  map[domain.Method]int
	ingested map[string]int
	size     int
}

func newObserverFake() *observerFake {
	return &observerFake{
		tiers:    map[string]int{},
		methods:  map[domain.Method]int{},
		ingested: map[string]int{},
	}
}

func (f *observerFake) ObserveTier(tier, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tiers[tier+"/"+outcome]++
}

func (f *observerFake) ObserveRetrieval(method domain.Method, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods[method]++
}

func (f *observerFake) ObserveIngest(outcome string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested[outcome] += count
}

func (f *observerFake) ObserveCorpusSize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = n
}
