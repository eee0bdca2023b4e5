package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"
	"github.com/vidmill/vidmill/internal/pkg/api"
	"github.com/vidmill/vidmill/internal/pkg/chunker"
	"github.com/vidmill/vidmill/internal/pkg/messages"
	"github.com/vidmill/vidmill/internal/pkg/persistence"
	"github.com/vidmill/vidmill/internal/pkg/status"
	"github.com/vidmill/vidmill/internal/pkg/transcription"
	"github.com/vidmill/vidmill/internal/pkg/utils"
	"github.com/vidmill/vidmill/internal/pkg/utils/handler"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) (string, error)
}

// DB provides persistence functionality
type DB interface {
	LoadMedia(ctx context.Context, id string) (*persistence.Media, error)
	UpdateMediaStatus(ctx context.Context, id string, to status.Status, from ...status.Status) (bool, error)
	SetMediaFailure(ctx context.Context, id string, st status.Status, errMsg string) error
	SetMediaTranscript(ctx context.Context, id, path string) error
	SetMediaDuration(ctx context.Context, id string, duration float64) error
}

// Transcriber calls the transcription model
type Transcriber interface {
	TranscribeAudio(ctx context.Context, media *persistence.Media) (*api.Transcript, error)
}

// Indexer writes chunk rows and vectors
type Indexer interface {
	StoreChunks(ctx context.Context, media *persistence.Media, chunks []chunker.Chunk) error
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	MsgSender   MsgSender
	DB          DB
	Transcriber Transcriber
	Indexer     Indexer
	Testing     bool
}

// StartWorkerService starts the event queue listener service to listen for events
// returns channel for tracking if all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	wm := gue.WorkMap{
		messages.Pipeline: handler.Create(data, handleTranscribe, handler.DefaultOpts[messages.TranscribeMessage]().
			WithFailure(pipelineFailure(data)).WithTimeout(time.Minute*30).
			WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Pipeline),
		gue.WithPoolLogger(newGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("pipeline-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

// stageError tags a pipeline failure with the terminal status it maps to
type stageError struct {
	stage status.Status
	err   error
}

func (e *stageError) Error() string {
	return e.err.Error()
}

func (e *stageError) Unwrap() error {
	return e.err
}

func handleTranscribe(ctx context.Context, m *messages.TranscribeMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.MediaID).Msg("handling transcribe")
	media, err := data.DB.LoadMedia(ctx, m.MediaID)
	if err != nil {
		return fmt.Errorf("can't load media: %w", err)
	}
	if media == nil {
		goapp.Log.Warn().Str("ID", m.MediaID).Msg("no media - skip")
		return nil
	}
	// encoding completion may already have promoted the media to ready,
	// redelivery after a crash lands on transcribing again
	moved, err := data.DB.UpdateMediaStatus(ctx, media.ID, status.Transcribing,
		status.Encoding, status.Ready, status.Transcribing)
	if err != nil {
		return fmt.Errorf("can't update media status: %w", err)
	}
	if !moved {
		goapp.Log.Warn().Str("ID", media.ID).Str("status", media.Status).Msg("wrong status - skip")
		return nil
	}
	sendStatus(ctx, data, media.ID, status.Transcribing)

	tr, err := data.Transcriber.TranscribeAudio(ctx, media)
	if err != nil {
		var tooBig *transcription.ErrAudioTooLarge
		if errors.As(err, &tooBig) {
			// no amount of retries shrinks the audio
			return finishFailed(ctx, data, media.ID, status.FailedTranscription, err.Error())
		}
		return &stageError{stage: status.FailedTranscription, err: fmt.Errorf("can't transcribe: %w", err)}
	}
	if err := data.DB.SetMediaTranscript(ctx, media.ID, transcription.TranscriptPath(media.ID)); err != nil {
		return fmt.Errorf("can't save transcript path: %w", err)
	}
	if tr.Duration > 0 && utils.FromSQLFloat64OrZero(media.Duration) == 0 {
		if err := data.DB.SetMediaDuration(ctx, media.ID, tr.Duration); err != nil {
			return fmt.Errorf("can't save duration: %w", err)
		}
	}

	if _, err := data.DB.UpdateMediaStatus(ctx, media.ID, status.Indexing, status.Transcribing); err != nil {
		return fmt.Errorf("can't update media status: %w", err)
	}
	sendStatus(ctx, data, media.ID, status.Indexing)

	chunks := chunker.ChunkTranscript(tr)
	if len(chunks) == 0 {
		goapp.Log.Warn().Str("ID", media.ID).Msg("empty transcript - nothing to index")
	} else {
		if err := data.Indexer.StoreChunks(ctx, media, chunks); err != nil {
			return &stageError{stage: status.FailedIndexing, err: fmt.Errorf("can't index chunks: %w", err)}
		}
	}

	if _, err := data.DB.UpdateMediaStatus(ctx, media.ID, status.Ready, status.Indexing); err != nil {
		return fmt.Errorf("can't update media status: %w", err)
	}
	sendStatus(ctx, data, media.ID, status.Ready)
	if _, err := data.MsgSender.SendMessage(ctx, &amessages.InformMessage{
		QueueMessage: *amessages.NewQueueMessageFromM(&m.QueueMessage),
		Type:         amessages.InformTypeFinished, At: time.Now()}, messages.Inform); err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	goapp.Log.Info().Str("ID", media.ID).Int("chunks", len(chunks)).Msg("pipeline completed")
	return nil
}

// pipelineFailure gives transient errors a few retries, then settles the
// media in the stage failure status so it does not hang in a working state
func pipelineFailure(data *ServiceData) func(context.Context, *messages.TranscribeMessage, error, *gue.Job) (bool, time.Duration, error) {
	return func(ctx context.Context, m *messages.TranscribeMessage, err error, j *gue.Job) (bool, time.Duration, error) {
		if j.ErrorCount < 2 {
			return true, 0, nil
		}
		st := status.FailedTranscription
		var se *stageError
		if errors.As(err, &se) {
			st = se.stage
		}
		if errF := finishFailed(ctx, data, m.MediaID, st, err.Error()); errF != nil {
			return true, 0, errF
		}
		return false, 0, nil
	}
}

func finishFailed(ctx context.Context, data *ServiceData, id string, st status.Status, errMsg string) error {
	goapp.Log.Warn().Str("ID", id).Str("status", st.String()).Str("error", errMsg).Msg("pipeline failed")
	if err := data.DB.SetMediaFailure(ctx, id, st, errMsg); err != nil {
		return fmt.Errorf("can't update media status: %w", err)
	}
	sendStatus(ctx, data, id, st)
	if _, err := data.MsgSender.SendMessage(ctx, &amessages.InformMessage{
		QueueMessage: amessages.QueueMessage{ID: id},
		Type:         amessages.InformTypeFailed, At: time.Now()}, messages.Inform); err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	return nil
}

// sendStatus is best effort - a lost ws update does not fail the pipeline
func sendStatus(ctx context.Context, data *ServiceData, id string, st status.Status) {
	if _, err := data.MsgSender.SendMessage(ctx, &messages.StatusMessage{
		QueueMessage: amessages.QueueMessage{ID: id}, MediaID: id, Status: st.String()},
		messages.StatusChange); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", id).Msg("can't send status msg")
	}
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Transcriber == nil {
		return fmt.Errorf("no Transcriber")
	}
	if data.Indexer == nil {
		return fmt.Errorf("no Indexer")
	}
	return nil
}
