package vector

import (
	"context"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the weaviate class holding chunk vectors
const ClassName = "TranscriptChunk"

// Object is one vector entry tagged for filtering
type Object struct {
	ID         string
	MediaID    string
	ModuleID   string
	ChunkIndex int
	StartTime  float64
	Vector     []float32
}

// Match is a nearest neighbour result
type Match struct {
	ID         string
	MediaID    string
	ChunkIndex int
	Score      float64
}

// QueryOptions restrict a vector query
type QueryOptions struct {
	Limit    int
	MediaID  string
	ModuleID string
}

// Store wraps the weaviate client
type Store struct {
	client *weaviate.Client
}

// NewStore creates a vector store instance
func NewStore(client *weaviate.Client) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("no weaviate client")
	}
	return &Store{client: client}, nil
}

// Upsert writes vectors in one batch. Object ids are stable per
// media/chunk index, so a rerun overwrites instead of duplicating.
func (s *Store) Upsert(ctx context.Context, objs []Object) error {
	if len(objs) == 0 {
		return nil
	}
	batch := make([]*models.Object, 0, len(objs))
	for _, o := range objs {
		batch = append(batch, &models.Object{
			Class: ClassName,
			ID:    strfmt.UUID(o.ID),
			Properties: map[string]interface{}{
				"mediaId":    o.MediaID,
				"moduleId":   o.ModuleID,
				"chunkIndex": o.ChunkIndex,
				"startTime":  o.StartTime,
			},
			Vector: o.Vector,
		})
	}
	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(batch...).Do(ctx)
	if err != nil {
		return fmt.Errorf("can't upsert vectors: %w", err)
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("can't upsert vector %s: %s", r.ID, r.Result.Errors.Error[0].Message)
		}
	}
	goapp.Log.Debug().Int("count", len(objs)).Msg("upserted vectors")
	return nil
}

// DeleteByMedia removes all vectors of a media
func (s *Store) DeleteByMedia(ctx context.Context, mediaID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"mediaId"}).
			WithOperator(filters.Equal).
			WithValueString(mediaID)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("can't delete vectors: %w", err)
	}
	return nil
}

// Query returns nearest matches for the vector, most similar first
func (s *Store) Query(ctx context.Context, vec []float32, opts QueryOptions) ([]Match, error) {
	nv := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)
	fields := []graphql.Field{
		{Name: "mediaId"},
		{Name: "chunkIndex"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "certainty"}}},
	}
	q := s.client.GraphQL().Get().
		WithClassName(ClassName).
		WithNearVector(nv).
		WithLimit(opts.Limit).
		WithFields(fields...)
	if w := buildWhere(opts); w != nil {
		q = q.WithWhere(w)
	}
	res, err := q.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't query vectors: %w", err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}
	return parseMatches(res.Data), nil
}

func buildWhere(opts QueryOptions) *filters.WhereBuilder {
	var conds []*filters.WhereBuilder
	if opts.MediaID != "" {
		conds = append(conds, filters.Where().
			WithPath([]string{"mediaId"}).WithOperator(filters.Equal).WithValueString(opts.MediaID))
	}
	if opts.ModuleID != "" {
		conds = append(conds, filters.Where().
			WithPath([]string{"moduleId"}).WithOperator(filters.Equal).WithValueString(opts.ModuleID))
	}
	if len(conds) == 0 {
		return nil
	}
	if len(conds) == 1 {
		return conds[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(conds)
}

func parseMatches(data map[string]models.JSONObject) []Match {
	var res []Match
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return res
	}
	items, ok := get[ClassName].([]interface{})
	if !ok {
		return res
	}
	for _, it := range items {
		props, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		var m Match
		if v, ok := props["mediaId"].(string); ok {
			m.MediaID = v
		}
		if v, ok := props["chunkIndex"].(float64); ok {
			m.ChunkIndex = int(v)
		}
		if add, ok := props["_additional"].(map[string]interface{}); ok {
			if v, ok := add["id"].(string); ok {
				m.ID = v
			}
			if v, ok := add["certainty"].(float64); ok {
				m.Score = v
			}
		}
		res = append(res, m)
	}
	return res
}
