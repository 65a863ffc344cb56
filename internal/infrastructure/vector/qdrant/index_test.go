package qdrant

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	exists      bool
	created     int
	deleted     int
	points      map[uint64]*qdrant.PointStruct
	upsertFails int
	upserts     int
	queried     *qdrant.QueryPoints
	results     []*qdrant.ScoredPoint
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{points: make(map[uint64]*qdrant.PointStruct)}
}

func (f *fakeAPI) CollectionExists(context.Context, string) (bool, error) {
	return f.exists, nil
}

func (f *fakeAPI) CreateCollection(context.Context, *qdrant.CreateCollection) error {
	f.created++
	f.exists = true
	return nil
}

func (f *fakeAPI) DeleteCollection(context.Context, string) error {
	f.deleted++
	f.exists = false
	f.points = make(map[uint64]*qdrant.PointStruct)
	return nil
}

func (f *fakeAPI) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserts++
	if f.upsertFails > 0 {
		f.upsertFails--
		return nil, errors.New("unavailable")
	}
	for _, p := range req.GetPoints() {
		f.points[p.GetId().GetNum()] = p
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeAPI) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queried = req
	return f.results, nil
}

func (f *fakeAPI) Count(context.Context, *qdrant.CountPoints) (uint64, error) {
	return uint64(len(f.points)), nil
}

func (f *fakeAPI) Scroll(_ context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
	ids := make([]uint64, 0)
	for id, p := range f.points {
		if p.GetPayload()[stateField].GetStringValue() == statePending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	from := uint64(0)
	if req.GetOffset() != nil {
		from = req.GetOffset().GetNum()
	}
	out := make([]*qdrant.RetrievedPoint, 0)
	for _, id := range ids {
		if id >= from && uint32(len(out)) < req.GetLimit() {
			out = append(out, &qdrant.RetrievedPoint{Id: qdrant.NewIDNum(id)})
		}
	}
	return out, nil
}

func testIndex(api *fakeAPI) *Index {
	idx := newIndex(api, "knowledge", 2)
	idx.newBackoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	return idx
}

func TestLoadCreatesMissingCollection(t *testing.T) {
	api := newFakeAPI()
	idx := testIndex(api)
	require.NoError(t, idx.load(context.Background()))
	assert.Equal(t, 1, api.created)
	assert.Equal(t, 0, idx.Len())
}

func TestAddStoresPendingPointsForMissingVectors(t *testing.T) {
	api := newFakeAPI()
	idx := testIndex(api)
	ctx := context.Background()
	require.NoError(t, idx.load(ctx))

	require.NoError(t, idx.Add(ctx, 0, [][]float32{{1, 0}, nil, {0, 1, 0}}))
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, []int{1, 2}, idx.Missing())
	assert.Len(t, api.points, 3)
	assert.Equal(t, statePending, api.points[1].GetPayload()[stateField].GetStringValue())
	assert.Equal(t, stateEmbed, api.points[0].GetPayload()[stateField].GetStringValue())

	assert.Error(t, idx.Add(ctx, 1, [][]float32{{1, 1}}))
}

func TestLoadRecoversSizeAndPendingPositions(t *testing.T) {
	api := newFakeAPI()
	ctx := context.Background()
	first := testIndex(api)
	require.NoError(t, first.load(ctx))
	require.NoError(t, first.Add(ctx, 0, [][]float32{{1, 0}, nil, {0, 1}, nil}))

	reopened := testIndex(api)
	require.NoError(t, reopened.load(ctx))
	assert.Equal(t, 4, reopened.Len())
	assert.Equal(t, []int{1, 3}, reopened.Missing())
}

func TestSetFillsPendingPosition(t *testing.T) {
	api := newFakeAPI()
	idx := testIndex(api)
	ctx := context.Background()
	require.NoError(t, idx.load(ctx))
	require.NoError(t, idx.Add(ctx, 0, [][]float32{nil}))

	require.NoError(t, idx.Set(ctx, 0, []float32{0.5, 0.5}))
	assert.Empty(t, idx.Missing())
	assert.Equal(t, stateEmbed, api.points[0].GetPayload()[stateField].GetStringValue())
	assert.Error(t, idx.Set(ctx, 5, []float32{1, 0}))
}

func TestUpsertRetriesThenFailsTemporary(t *testing.T) {
	api := newFakeAPI()
	idx := testIndex(api)
	ctx := context.Background()
	require.NoError(t, idx.load(ctx))

	api.upsertFails = 1
	require.NoError(t, idx.Add(ctx, 0, [][]float32{{1, 0}}))
	assert.Equal(t, 2, api.upserts)

	api.upsertFails = 10
	err := idx.Add(ctx, 1, [][]float32{{0, 1}})
	require.Error(t, err)
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, []int{1}, idx.Missing())
}

func TestFailedUpsertReservesPositionsForReindex(t *testing.T) {
	api := newFakeAPI()
	idx := testIndex(api)
	ctx := context.Background()
	require.NoError(t, idx.load(ctx))
	require.NoError(t, idx.Add(ctx, 0, [][]float32{{1, 0}}))

	api.upsertFails = 10
	require.Error(t, idx.Add(ctx, 1, [][]float32{{0, 1}, nil}))
	api.upsertFails = 0

	require.NoError(t, idx.Add(ctx, 3, [][]float32{{1, 1}}))
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, []int{1, 2}, idx.Missing())

	require.NoError(t, idx.Set(ctx, 1, []float32{0, 1}))
	require.NoError(t, idx.Set(ctx, 2, []float32{1, 0}))
	assert.Empty(t, idx.Missing())
	assert.Len(t, api.points, 4)
}

func TestNearestMapsPointIDsToPositions(t *testing.T) {
	api := newFakeAPI()
	api.results = []*qdrant.ScoredPoint{
		{Id: qdrant.NewIDNum(4), Score: 0.7},
		{Id: qdrant.NewIDNum(2), Score: 0.9},
	}
	idx := testIndex(api)

	got, err := idx.Nearest(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Position)
	assert.InDelta(t, 0.9, got[0].Score, 1e-6)
	assert.Equal(t, uint64(3), api.queried.GetLimit())
	assert.Equal(t, vectorName, api.queried.GetUsing())
}

func TestResetRecreatesCollection(t *testing.T) {
	api := newFakeAPI()
	idx := testIndex(api)
	ctx := context.Background()
	require.NoError(t, idx.load(ctx))
	require.NoError(t, idx.Add(ctx, 0, [][]float32{{1, 0}, nil}))

	require.NoError(t, idx.Reset(ctx))
	assert.Equal(t, 1, api.deleted)
	assert.Equal(t, 2, api.created)
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Missing())
}
