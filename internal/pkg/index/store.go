package index

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/vidmill/vidmill/internal/pkg/chunker"
	"github.com/vidmill/vidmill/internal/pkg/persistence"
	"github.com/vidmill/vidmill/internal/pkg/vector"
)

// ChunkDB provides relational chunk persistence
type ChunkDB interface {
	InsertChunks(ctx context.Context, items []*persistence.Chunk) error
	DeleteChunks(ctx context.Context, mediaID string) error
	LoadChunksByIDs(ctx context.Context, ids []string) (map[string]*persistence.Chunk, error)
}

// VectorStore provides vector index operations
type VectorStore interface {
	Upsert(ctx context.Context, objs []vector.Object) error
	DeleteByMedia(ctx context.Context, mediaID string) error
	Query(ctx context.Context, vec []float32, opts vector.QueryOptions) ([]vector.Match, error)
}

// Embedder calls the embedding model
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	// relational inserts are parameter count limited
	dbBatchSize = 5
	// vector upserts go in larger batches
	vectorBatchSize = 100
)

// Store writes chunks to the relational store and vectors to the index
// as one logical operation with compensating rollback on partial failure
type Store struct {
	db  ChunkDB
	vec VectorStore
	emb Embedder
}

// NewStore creates the dual store writer
func NewStore(db ChunkDB, vec VectorStore, emb Embedder) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("no chunk DB")
	}
	if vec == nil {
		return nil, fmt.Errorf("no vector store")
	}
	if emb == nil {
		return nil, fmt.Errorf("no embedder")
	}
	return &Store{db: db, vec: vec, emb: emb}, nil
}

// StoreChunks embeds and writes the complete chunk set of a media.
// Any prior set is removed first. On failure after writes started,
// partially written rows and vectors are compensated away and the
// original error returned.
func (s *Store) StoreChunks(ctx context.Context, media *persistence.Media, chunks []chunker.Chunk) error {
	if err := s.DeleteChunks(ctx, media.ID); err != nil {
		return fmt.Errorf("can't drop prior chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Content)
	}
	vectors, err := s.emb.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("can't embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("vector count mismatch: got %d, want %d", len(vectors), len(chunks))
	}

	now := time.Now()
	rows := make([]*persistence.Chunk, 0, len(chunks))
	objs := make([]vector.Object, 0, len(chunks))
	for i, c := range chunks {
		id := chunkID(media.ID, c.Index)
		segIDs := make([]int32, 0, len(c.SegmentIDs))
		for _, sid := range c.SegmentIDs {
			segIDs = append(segIDs, int32(sid))
		}
		rows = append(rows, &persistence.Chunk{ID: id, MediaID: media.ID, ModuleID: media.ModuleID,
			ChunkIndex: c.Index, Content: c.Content, TokenCount: c.TokenCount, StartTime: c.StartTime,
			EndTime: c.EndTime, SegmentIDs: segIDs, Confidence: c.Confidence, Language: c.Language, Created: now})
		objs = append(objs, vector.Object{ID: id, MediaID: media.ID, ModuleID: media.ModuleID,
			ChunkIndex: c.Index, StartTime: math.Round(c.StartTime), Vector: vectors[i]})
	}

	if err := s.writeAll(ctx, rows, objs); err != nil {
		s.compensate(ctx, media.ID)
		return err
	}
	goapp.Log.Info().Str("ID", media.ID).Int("chunks", len(rows)).Msg("indexed")
	return nil
}

func (s *Store) writeAll(ctx context.Context, rows []*persistence.Chunk, objs []vector.Object) error {
	for i := 0; i < len(rows); i += dbBatchSize {
		end := i + dbBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.db.InsertChunks(ctx, rows[i:end]); err != nil {
			return fmt.Errorf("can't insert chunk rows: %w", err)
		}
	}
	for i := 0; i < len(objs); i += vectorBatchSize {
		end := i + vectorBatchSize
		if end > len(objs) {
			end = len(objs)
		}
		if err := s.vec.Upsert(ctx, objs[i:end]); err != nil {
			return fmt.Errorf("can't upsert vectors: %w", err)
		}
	}
	return nil
}

// compensate removes whatever was partially written, best effort
func (s *Store) compensate(ctx context.Context, mediaID string) {
	goapp.Log.Warn().Str("ID", mediaID).Msg("compensating partial index write")
	if err := s.DeleteChunks(ctx, mediaID); err != nil {
		goapp.Log.Error().Err(err).Str("ID", mediaID).Msg("compensation incomplete")
	}
}

// DeleteChunks removes the chunk set of a media from both stores.
// Deletions run concurrently; both are awaited regardless of outcome.
func (s *Store) DeleteChunks(ctx context.Context, mediaID string) error {
	var wg sync.WaitGroup
	var dbErr, vecErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		dbErr = s.db.DeleteChunks(ctx, mediaID)
	}()
	go func() {
		defer wg.Done()
		vecErr = s.vec.DeleteByMedia(ctx, mediaID)
	}()
	wg.Wait()
	if dbErr != nil {
		return fmt.Errorf("can't delete chunk rows: %w", dbErr)
	}
	if vecErr != nil {
		return fmt.Errorf("can't delete vectors: %w", vecErr)
	}
	return nil
}

// chunkID derives a stable id from media and chunk index,
// shared by the relational row and the vector object
func chunkID(mediaID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", mediaID, index))).String()
}
