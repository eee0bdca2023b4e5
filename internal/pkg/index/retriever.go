package index

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vidmill/vidmill/internal/pkg/api"
	"github.com/vidmill/vidmill/internal/pkg/vector"
)

const (
	defaultTopK     = 5
	defaultMinScore = 0.5
)

// Retriever serves search queries against the stored index
type Retriever struct {
	db  ChunkDB
	vec VectorStore
	emb Embedder
}

// NewRetriever creates a retriever
func NewRetriever(db ChunkDB, vec VectorStore, emb Embedder) (*Retriever, error) {
	if db == nil {
		return nil, fmt.Errorf("no chunk DB")
	}
	if vec == nil {
		return nil, fmt.Errorf("no vector store")
	}
	if emb == nil {
		return nil, fmt.Errorf("no embedder")
	}
	return &Retriever{db: db, vec: vec, emb: emb}, nil
}

// SearchChunks embeds the query, ranks vector matches and hydrates
// surviving ones from the relational store, in vector index order
func (r *Retriever) SearchChunks(ctx context.Context, req *api.SearchRequest) (*api.SearchResponse, error) {
	start := time.Now()
	if req.Query == "" {
		return nil, fmt.Errorf("no query")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	minScore := req.MinScore
	if minScore <= 0 {
		minScore = defaultMinScore
	}

	vec, err := r.emb.EmbedText(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("can't embed query: %w", err)
	}
	matches, err := r.vec.Query(ctx, vec, vector.QueryOptions{Limit: 2 * topK,
		MediaID: req.VideoID, ModuleID: req.ModuleID})
	if err != nil {
		return nil, fmt.Errorf("can't query index: %w", err)
	}

	kept := make([]vector.Match, 0, topK)
	for _, m := range matches {
		if m.Score < minScore {
			continue
		}
		kept = append(kept, m)
		if len(kept) == topK {
			break
		}
	}

	res := &api.SearchResponse{Query: req.Query, Chunks: []api.SearchChunk{}}
	if len(kept) > 0 {
		ids := make([]string, 0, len(kept))
		for _, m := range kept {
			ids = append(ids, m.ID)
		}
		rows, err := r.db.LoadChunksByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("can't hydrate chunks: %w", err)
		}
		for _, m := range kept {
			row, found := rows[m.ID]
			if !found {
				// stale index entry
				goapp.Log.Warn().Str("chunkID", m.ID).Msg("no row for vector match")
				continue
			}
			res.Chunks = append(res.Chunks, api.SearchChunk{ID: row.ID, MediaID: row.MediaID,
				ModuleID: row.ModuleID, ChunkIndex: row.ChunkIndex, Content: row.Content,
				StartTime: row.StartTime, EndTime: row.EndTime, Language: row.Language, Score: m.Score})
		}
	}
	res.TotalFound = len(res.Chunks)
	res.SearchTimeMs = time.Since(start).Milliseconds()
	return res, nil
}
