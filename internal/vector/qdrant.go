package vector

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"ltmc/internal/apperrors"
	"ltmc/internal/config"
	"ltmc/internal/logging"
)

// QdrantIndex stores vectors in a remote qdrant collection. Numeric
// point ids carry the allocator's vector ids directly. The remote
// service owns durability, so Save is a flush-level no-op.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	logger     logging.Logger
}

// OpenQdrantIndex connects and ensures the collection exists with the
// configured dimension and metric.
func OpenQdrantIndex(ctx context.Context, cfg config.VectorConfig, logger logging.Logger) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantKey,
		UseTLS: cfg.QdrantKey != "",
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeVector, "connecting to qdrant", err)
	}

	idx := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		logger:     logger.WithComponent("vector"),
	}
	if err := idx.ensureCollection(ctx, cfg.Metric); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, metric string) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeVector, "listing qdrant collections", err)
	}
	for _, name := range collections {
		if name == q.collection {
			return nil
		}
	}

	distance := qdrant.Distance_Cosine
	if metric == "l2" {
		distance = qdrant.Distance_Euclid
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeVector, "creating qdrant collection", err)
	}
	q.logger.Info("created qdrant collection", "collection", q.collection, "dimension", q.dimension)
	return nil
}

// Add upserts a point under the numeric vector id.
func (q *QdrantIndex) Add(ctx context.Context, vectorID int64, vec []float32) error {
	if len(vec) != q.dimension {
		return apperrors.NewValidationError("vector",
			fmt.Sprintf("dimension %d does not match index dimension %d", len(vec), q.dimension), vectorID)
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(uint64(vectorID)),
			Vectors: qdrant.NewVectors(vec...),
		}},
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeVector, "upserting vector", err)
	}
	return nil
}

// Search queries the collection and returns hits in descending score.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeVector, "querying qdrant", err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		num, ok := p.GetId().GetPointIdOptions().(*qdrant.PointId_Num)
		if !ok {
			continue
		}
		matches = append(matches, Match{VectorID: int64(num.Num), Score: p.GetScore()})
	}
	return matches, nil
}

// Remove deletes a point by vector id.
func (q *QdrantIndex) Remove(ctx context.Context, vectorID int64) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDNum(uint64(vectorID))),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeVector, "deleting vector", err)
	}
	return nil
}

// IDs scrolls the collection and lists every point id.
func (q *QdrantIndex) IDs(ctx context.Context) ([]int64, error) {
	var (
		ids    []int64
		offset *qdrant.PointId
	)
	for {
		points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Limit:          qdrant.PtrOf(uint32(1000)),
			Offset:         offset,
		})
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorCodeVector, "scrolling qdrant collection", err)
		}
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			if num, ok := p.GetId().GetPointIdOptions().(*qdrant.PointId_Num); ok {
				ids = append(ids, int64(num.Num))
			}
		}
		offset = points[len(points)-1].GetId()
		if len(points) < 1000 {
			break
		}
	}
	return ids, nil
}

// Count reports the number of stored points.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{CollectionName: q.collection})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrorCodeVector, "counting vectors", err)
	}
	return int(n), nil
}

// Save is a no-op; qdrant persists on write.
func (q *QdrantIndex) Save(ctx context.Context) error { return nil }

// Close releases the grpc connection.
func (q *QdrantIndex) Close() error { return q.client.Close() }
