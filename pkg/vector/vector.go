// Package vector wraps the Qdrant gRPC API behind the small surface the
// pipeline needs: per-source-kind collections with cosine distance, point
// upserts keyed by UUID, and threshold-filtered similarity search.
package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/models"
)

// pointsAPI is the subset of pb.PointsClient the store calls.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the store calls.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Hit is a single similarity-search result.
type Hit struct {
	// ID is the point UUID as stored.
	ID string
	// Score is the cosine similarity to the query vector.
	Score float32
	// Payload holds the string payload fields stored with the point
	// (source_id, title, caller metadata).
	Payload map[string]string
}

// Store is the sole owner of all Qdrant operations.
type Store struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	logger      *slog.Logger
}

// New connects to Qdrant at the configured gRPC address. The connection is
// lazy; failures surface on the first RPC.
func New(cfg config.VectorConfig) (*Store, error) {
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vector: dial qdrant %s: %w", cfg.Addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		logger:      slog.With("component", "vector"),
	}, nil
}

// newWithClients builds a Store over injected clients. Test seam.
func newWithClients(points pointsAPI, collections collectionsAPI) *Store {
	return &Store{
		points:      points,
		collections: collections,
		logger:      slog.With("component", "vector"),
	}
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Health probes the backend with a collection listing.
func (s *Store) Health(ctx context.Context) error {
	if _, err := s.collections.List(ctx, &pb.ListCollectionsRequest{}); err != nil {
		return fmt.Errorf("vector: qdrant unreachable: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist yet. Dimension is fixed per embedding model; switching models
// requires recreating collections.
func (s *Store) EnsureCollection(ctx context.Context, collection string, dim int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vector: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vector: create collection %s: %w", collection, err)
	}
	s.logger.Info("created vector collection", "collection", collection, "dim", dim)
	return nil
}

// EnsureAll creates the per-source-kind collections that are missing.
func (s *Store) EnsureAll(ctx context.Context, dim int) error {
	for _, kind := range models.AllSourceKinds {
		if err := s.EnsureCollection(ctx, kind.Collection(), dim); err != nil {
			return err
		}
	}
	return nil
}

// Upsert stores one embedding under the given point UUID. Writing the same
// UUID twice replaces the point, which makes pipeline retries idempotent.
func (s *Store) Upsert(ctx context.Context, collection string, id uuid.UUID, vec []float32, payload map[string]any) error {
	fields := make(map[string]*pb.Value, len(payload))
	for k, val := range payload {
		fields[k] = payloadValue(val)
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: id.String()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vec},
				},
			},
			Payload: fields,
		}},
	})
	if err != nil {
		return fmt.Errorf("vector: upsert point %s into %s: %w", id, collection, err)
	}
	return nil
}

// Search returns the points most similar to vec, best first. Hits scoring
// below scoreThreshold are filtered server-side; pass 0 to disable.
func (s *Store) Search(ctx context.Context, collection string, vec []float32, limit int, scoreThreshold float32) ([]Hit, error) {
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vec,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if scoreThreshold > 0 {
		req.ScoreThreshold = &scoreThreshold
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vector: search %s: %w", collection, err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		h := Hit{
			ID:      r.GetId().GetUuid(),
			Score:   r.GetScore(),
			Payload: make(map[string]string),
		}
		for k, val := range r.GetPayload() {
			h.Payload[k] = val.GetStringValue()
		}
		hits[i] = h
	}
	return hits, nil
}

// Delete removes one point by UUID. Deleting a missing point is not an error.
func (s *Store) Delete(ctx context.Context, collection string, id uuid.UUID) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{
						PointIdOptions: &pb.PointId_Uuid{Uuid: id.String()},
					}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vector: delete point %s from %s: %w", id, collection, err)
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (s *Store) Count(ctx context.Context, collection string) (uint64, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("vector: count %s: %w", collection, err)
	}
	return resp.GetResult().GetCount(), nil
}

func payloadValue(val any) *pb.Value {
	switch tv := val.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}
