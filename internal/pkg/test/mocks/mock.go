package mocks

import (
	"context"
	"io"

	"github.com/airenas/async-api/pkg/messages"
	"github.com/stretchr/testify/mock"
	"github.com/vidmill/vidmill/internal/pkg/api"
	"github.com/vidmill/vidmill/internal/pkg/chunker"
	"github.com/vidmill/vidmill/internal/pkg/persistence"
	"github.com/vidmill/vidmill/internal/pkg/status"
	"github.com/vidmill/vidmill/internal/pkg/vector"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error {
	args := m.Called(ctx, name, r, fileSize)
	return args.Error(0)
}

// LoadFile func mock
func (m *Filer) LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error) {
	args := m.Called(ctx, fileName)
	return to[io.ReadSeekCloser](args.Get(0)), args.Error(1)
}

func (m *Filer) Stat(ctx context.Context, fileName string) (int64, error) {
	args := m.Called(ctx, fileName)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Filer) Delete(ctx context.Context, fileName string) error {
	args := m.Called(ctx, fileName)
	return args.Error(0)
}

func (m *Filer) DeletePrefix(ctx context.Context, prefix string) error {
	args := m.Called(ctx, prefix)
	return args.Error(0)
}

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) InsertMedia(ctx context.Context, d *persistence.Media) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *DB) LoadMedia(ctx context.Context, id string) (*persistence.Media, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Media](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateMediaStatus(ctx context.Context, id string, toSt status.Status, from ...status.Status) (bool, error) {
	args := m.Called(ctx, id, toSt, from)
	return args.Bool(0), args.Error(1)
}

func (m *DB) SetMediaFailure(ctx context.Context, id string, st status.Status, errMsg string) error {
	args := m.Called(ctx, id, st, errMsg)
	return args.Error(0)
}

func (m *DB) SetMediaSourceMeta(ctx context.Context, id string, width, height int32, duration float64, codec string, bitrate int32, fps float64) error {
	args := m.Called(ctx, id, width, height, duration, codec, bitrate, fps)
	return args.Error(0)
}

func (m *DB) SetMediaThumbnail(ctx context.Context, id, path string) error {
	args := m.Called(ctx, id, path)
	return args.Error(0)
}

func (m *DB) SetMediaAudio(ctx context.Context, id, path string) error {
	args := m.Called(ctx, id, path)
	return args.Error(0)
}

func (m *DB) SetMediaTranscript(ctx context.Context, id, path string) error {
	args := m.Called(ctx, id, path)
	return args.Error(0)
}

func (m *DB) SetMediaDuration(ctx context.Context, id string, duration float64) error {
	args := m.Called(ctx, id, duration)
	return args.Error(0)
}

func (m *DB) InsertVariants(ctx context.Context, items []*persistence.Variant) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func (m *DB) ListVariants(ctx context.Context, mediaID string) ([]*persistence.Variant, error) {
	args := m.Called(ctx, mediaID)
	return to[[]*persistence.Variant](args.Get(0)), args.Error(1)
}

func (m *DB) SetVariantReady(ctx context.Context, mediaID, quality string, width, height, bitrate int, fileSize int64, path string) error {
	args := m.Called(ctx, mediaID, quality, width, height, bitrate, fileSize, path)
	return args.Error(0)
}

func (m *DB) SetVariantStatus(ctx context.Context, mediaID, quality, st string) error {
	args := m.Called(ctx, mediaID, quality, st)
	return args.Error(0)
}

func (m *DB) ResetErrorVariants(ctx context.Context, mediaID string) error {
	args := m.Called(ctx, mediaID)
	return args.Error(0)
}

func (m *DB) InsertJob(ctx context.Context, j *persistence.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) MarkJobQueued(ctx context.Context, id, externalID string) error {
	args := m.Called(ctx, id, externalID)
	return args.Error(0)
}

func (m *DB) MarkJobProcessing(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DB) MarkJobCompleted(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DB) MarkJobFailed(ctx context.Context, id, code, message, details string) error {
	args := m.Called(ctx, id, code, message, details)
	return args.Error(0)
}

func (m *DB) MarkMediaJobCompleted(ctx context.Context, mediaID, jobType string) error {
	args := m.Called(ctx, mediaID, jobType)
	return args.Error(0)
}

func (m *DB) UpdateJobProgress(ctx context.Context, id string, progress int32, message string) error {
	args := m.Called(ctx, id, progress, message)
	return args.Error(0)
}

func (m *DB) PrepareJobRetry(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *DB) InsertChunks(ctx context.Context, items []*persistence.Chunk) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func (m *DB) DeleteChunks(ctx context.Context, mediaID string) error {
	args := m.Called(ctx, mediaID)
	return args.Error(0)
}

func (m *DB) LoadChunksByIDs(ctx context.Context, ids []string) (map[string]*persistence.Chunk, error) {
	args := m.Called(ctx, ids)
	return to[map[string]*persistence.Chunk](args.Get(0)), args.Error(1)
}

func (m *DB) LockEmailTable(ctx context.Context, id, informType string) error {
	args := m.Called(ctx, id, informType)
	return args.Error(0)
}

func (m *DB) UnLockEmailTable(ctx context.Context, id, informType string, value *int) error {
	args := m.Called(ctx, id, informType, value)
	return args.Error(0)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) (string, error) {
	args := m.Called(ctx, msg, queue)
	return args.String(0), args.Error(1)
}

// Transcriber is transcription client mock
type Transcriber struct{ mock.Mock }

func (m *Transcriber) TranscribeAudio(ctx context.Context, media *persistence.Media) (*api.Transcript, error) {
	args := m.Called(ctx, media)
	return to[*api.Transcript](args.Get(0)), args.Error(1)
}

// Embedder is gemini embedding mock
type Embedder struct{ mock.Mock }

func (m *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	return to[[]float32](args.Get(0)), args.Error(1)
}

func (m *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	return to[[][]float32](args.Get(0)), args.Error(1)
}

// VectorStore is weaviate mock
type VectorStore struct{ mock.Mock }

func (m *VectorStore) Upsert(ctx context.Context, objs []vector.Object) error {
	args := m.Called(ctx, objs)
	return args.Error(0)
}

func (m *VectorStore) DeleteByMedia(ctx context.Context, mediaID string) error {
	args := m.Called(ctx, mediaID)
	return args.Error(0)
}

func (m *VectorStore) Query(ctx context.Context, vec []float32, opts vector.QueryOptions) ([]vector.Match, error) {
	args := m.Called(ctx, vec, opts)
	return to[[]vector.Match](args.Get(0)), args.Error(1)
}

// Indexer is chunk index mock
type Indexer struct{ mock.Mock }

func (m *Indexer) StoreChunks(ctx context.Context, media *persistence.Media, chunks []chunker.Chunk) error {
	args := m.Called(ctx, media, chunks)
	return args.Error(0)
}

func (m *Indexer) DeleteChunks(ctx context.Context, mediaID string) error {
	args := m.Called(ctx, mediaID)
	return args.Error(0)
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}

// To casts mock call results for test helpers outside this package
func To[T interface{}](val interface{}) T {
	return to[T](val)
}
