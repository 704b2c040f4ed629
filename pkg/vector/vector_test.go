package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

type mockPoints struct {
	upsertReq  *pb.UpsertPoints
	upsertErr  error
	deleteReq  *pb.DeletePoints
	deleteErr  error
	searchReq  *pb.SearchPoints
	searchResp *pb.SearchResponse
	searchErr  error
	countResp  *pb.CountResponse
	countErr   error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upsertReq = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}

func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deleteReq = in
	return &pb.PointsOperationResponse{}, m.deleteErr
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searchReq = in
	return m.searchResp, m.searchErr
}

func (m *mockPoints) Count(_ context.Context, _ *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	return m.countResp, m.countErr
}

type mockCollections struct {
	listResp  *pb.ListCollectionsResponse
	listErr   error
	created   []*pb.CreateCollection
	createErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = append(m.created, in)
	return &pb.CollectionOperationResponse{Result: true}, m.createErr
}

func TestEnsureCollectionAlreadyExists(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "forum_posts"}},
		},
	}
	s := newWithClients(&mockPoints{}, cols)

	err := s.EnsureCollection(context.Background(), "forum_posts", 768)

	require.NoError(t, err)
	assert.Empty(t, cols.created)
}

func TestEnsureCollectionCreatesMissing(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{},
	}
	s := newWithClients(&mockPoints{}, cols)

	err := s.EnsureCollection(context.Background(), "tech_articles", 768)

	require.NoError(t, err)
	require.Len(t, cols.created, 1)
	created := cols.created[0]
	assert.Equal(t, "tech_articles", created.CollectionName)
	params := created.GetVectorsConfig().GetParams()
	require.NotNil(t, params)
	assert.Equal(t, uint64(768), params.Size)
	assert.Equal(t, pb.Distance_Cosine, params.Distance)
}

func TestEnsureCollectionListError(t *testing.T) {
	cols := &mockCollections{listErr: errors.New("connection refused")}
	s := newWithClients(&mockPoints{}, cols)

	err := s.EnsureCollection(context.Background(), "forum_posts", 768)

	assert.ErrorContains(t, err, "list collections")
}

func TestEnsureAllCreatesEveryKindCollection(t *testing.T) {
	cols := &mockCollections{listResp: &pb.ListCollectionsResponse{}}
	s := newWithClients(&mockPoints{}, cols)

	err := s.EnsureAll(context.Background(), 768)

	require.NoError(t, err)
	names := make([]string, 0, len(cols.created))
	for _, c := range cols.created {
		names = append(names, c.CollectionName)
	}
	assert.ElementsMatch(t, []string{"forum_posts", "tech_articles", "chat_messages", "blog_articles"}, names)
}

func TestUpsertBuildsPoint(t *testing.T) {
	pts := &mockPoints{}
	s := newWithClients(pts, &mockCollections{})
	id := uuid.MustParse("b6c54489-38a0-5f50-a60a-fd8d76219cae")

	err := s.Upsert(context.Background(), "forum_posts", id, []float32{0.1, 0.2}, map[string]any{
		"source_id": "abc123",
		"title":     "release notes",
		"score":     42,
		"pinned":    true,
	})

	require.NoError(t, err)
	require.NotNil(t, pts.upsertReq)
	assert.Equal(t, "forum_posts", pts.upsertReq.CollectionName)
	require.NotNil(t, pts.upsertReq.Wait)
	assert.True(t, *pts.upsertReq.Wait)

	require.Len(t, pts.upsertReq.Points, 1)
	point := pts.upsertReq.Points[0]
	assert.Equal(t, id.String(), point.GetId().GetUuid())
	assert.Equal(t, []float32{0.1, 0.2}, point.GetVectors().GetVector().GetData())
	assert.Equal(t, "abc123", point.Payload["source_id"].GetStringValue())
	assert.Equal(t, "release notes", point.Payload["title"].GetStringValue())
	assert.Equal(t, int64(42), point.Payload["score"].GetIntegerValue())
	assert.True(t, point.Payload["pinned"].GetBoolValue())
}

func TestUpsertError(t *testing.T) {
	pts := &mockPoints{upsertErr: errors.New("deadline exceeded")}
	s := newWithClients(pts, &mockCollections{})

	err := s.Upsert(context.Background(), "forum_posts", uuid.New(), []float32{1}, nil)

	assert.ErrorContains(t, err, "upsert point")
}

func TestSearchMapsHits(t *testing.T) {
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "11111111-1111-5111-8111-111111111111"}},
					Score: 0.97,
					Payload: map[string]*pb.Value{
						"source_id": {Kind: &pb.Value_StringValue{StringValue: "t3_xyz"}},
						"title":     {Kind: &pb.Value_StringValue{StringValue: "new model drop"}},
					},
				},
			},
		},
	}
	s := newWithClients(pts, &mockCollections{})

	hits, err := s.Search(context.Background(), "forum_posts", []float32{0.5, 0.5}, 1, 0.95)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "11111111-1111-5111-8111-111111111111", hits[0].ID)
	assert.InDelta(t, 0.97, float64(hits[0].Score), 1e-6)
	assert.Equal(t, "t3_xyz", hits[0].Payload["source_id"])
	assert.Equal(t, "new model drop", hits[0].Payload["title"])

	require.NotNil(t, pts.searchReq)
	assert.Equal(t, uint64(1), pts.searchReq.Limit)
	require.NotNil(t, pts.searchReq.ScoreThreshold)
	assert.InDelta(t, 0.95, float64(*pts.searchReq.ScoreThreshold), 1e-6)
}

func TestSearchZeroThresholdOmitted(t *testing.T) {
	pts := &mockPoints{searchResp: &pb.SearchResponse{}}
	s := newWithClients(pts, &mockCollections{})

	_, err := s.Search(context.Background(), "forum_posts", []float32{1}, 5, 0)

	require.NoError(t, err)
	assert.Nil(t, pts.searchReq.ScoreThreshold)
}

func TestSearchError(t *testing.T) {
	pts := &mockPoints{searchErr: errors.New("unavailable")}
	s := newWithClients(pts, &mockCollections{})

	_, err := s.Search(context.Background(), "forum_posts", []float32{1}, 5, 0.95)

	assert.ErrorContains(t, err, "search forum_posts")
}

func TestDeleteSelectsPointByID(t *testing.T) {
	pts := &mockPoints{}
	s := newWithClients(pts, &mockCollections{})
	id := uuid.New()

	err := s.Delete(context.Background(), "chat_messages", id)

	require.NoError(t, err)
	require.NotNil(t, pts.deleteReq)
	ids := pts.deleteReq.GetPoints().GetPoints().GetIds()
	require.Len(t, ids, 1)
	assert.Equal(t, id.String(), ids[0].GetUuid())
}

func TestCount(t *testing.T) {
	pts := &mockPoints{
		countResp: &pb.CountResponse{Result: &pb.CountResult{Count: 12}},
	}
	s := newWithClients(pts, &mockCollections{})

	n, err := s.Count(context.Background(), "blog_articles")

	require.NoError(t, err)
	assert.Equal(t, uint64(12), n)
}

func TestHealth(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		s := newWithClients(&mockPoints{}, &mockCollections{listResp: &pb.ListCollectionsResponse{}})
		assert.NoError(t, s.Health(context.Background()))
	})

	t.Run("unreachable", func(t *testing.T) {
		s := newWithClients(&mockPoints{}, &mockCollections{listErr: errors.New("refused")})
		assert.ErrorContains(t, s.Health(context.Background()), "unreachable")
	})
}

func TestPayloadValueConversions(t *testing.T) {
	tests := []struct {
		name  string
		in    any
		check func(t *testing.T, v *pb.Value)
	}{
		{
			name: "string",
			in:   "hello",
			check: func(t *testing.T, v *pb.Value) {
				assert.Equal(t, "hello", v.GetStringValue())
			},
		},
		{
			name: "int",
			in:   7,
			check: func(t *testing.T, v *pb.Value) {
				assert.Equal(t, int64(7), v.GetIntegerValue())
			},
		},
		{
			name: "float64",
			in:   0.5,
			check: func(t *testing.T, v *pb.Value) {
				assert.InDelta(t, 0.5, v.GetDoubleValue(), 1e-9)
			},
		},
		{
			name: "bool",
			in:   true,
			check: func(t *testing.T, v *pb.Value) {
				assert.True(t, v.GetBoolValue())
			},
		},
		{
			name: "fallback stringifies",
			in:   []int{1, 2},
			check: func(t *testing.T, v *pb.Value) {
				assert.Equal(t, "[1 2]", v.GetStringValue())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, payloadValue(tt.in))
		})
	}
}
