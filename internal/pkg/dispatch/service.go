package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/vidmill/vidmill/internal/pkg/messages"
	"github.com/vidmill/vidmill/internal/pkg/persistence"
	"github.com/vidmill/vidmill/internal/pkg/status"
	"github.com/vidmill/vidmill/internal/pkg/utils"
)

// ErrRetryDenied indicates the job is not in a retryable state
var ErrRetryDenied = errors.New("retry denied")

// MsgSender publishes the dispatch message to the encoder queue
type MsgSender interface {
	SendMessage(ctx context.Context, msg amessages.Message, queue string) (string, error)
}

// DB provides persistence for media, variants and jobs
type DB interface {
	LoadMedia(ctx context.Context, id string) (*persistence.Media, error)
	UpdateMediaStatus(ctx context.Context, id string, to status.Status, from ...status.Status) (bool, error)
	InsertVariants(ctx context.Context, items []*persistence.Variant) error
	ListVariants(ctx context.Context, mediaID string) ([]*persistence.Variant, error)
	ResetErrorVariants(ctx context.Context, mediaID string) error
	InsertJob(ctx context.Context, j *persistence.Job) error
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
	MarkJobQueued(ctx context.Context, id, externalID string) error
	MarkJobFailed(ctx context.Context, id, code, message, details string) error
	PrepareJobRetry(ctx context.Context, id string) (bool, error)
}

// Options keeps dispatcher configuration
type Options struct {
	Bucket          string
	WebhookURL      string
	WebhookSecret   string
	DefaultAttempts int
}

// Dispatcher builds and publishes encoding jobs
type Dispatcher struct {
	db     DB
	sender MsgSender
	opts   Options
}

// JobOptions are per request knobs passed from the upload confirmation
type JobOptions struct {
	SelectedQualities []string
	EnableAI          bool
}

// NewDispatcher creates a dispatcher
func NewDispatcher(db DB, sender MsgSender, opts Options) (*Dispatcher, error) {
	if db == nil {
		return nil, fmt.Errorf("no DB")
	}
	if sender == nil {
		return nil, fmt.Errorf("no msg sender")
	}
	if opts.DefaultAttempts < 1 {
		opts.DefaultAttempts = 3
	}
	if err := validateCallback(opts.WebhookURL, opts.WebhookSecret); err != nil {
		return nil, err
	}
	return &Dispatcher{db: db, sender: sender, opts: opts}, nil
}

// CreateEncodingJobs creates variant and job rows for the media and publishes
// the dispatch message to the encoder queue. On publish failure the job is
// marked failed and the error returned - no automatic retry here.
func (d *Dispatcher) CreateEncodingJobs(ctx context.Context, media *persistence.Media,
	sourceWidth, sourceHeight int, opts JobOptions) (string, error) {
	selected := selectQualities(sourceWidth, sourceHeight, opts.SelectedQualities)
	selName := map[string]bool{}
	for _, q := range selected {
		selName[q.Quality] = true
	}

	now := time.Now()
	variants := make([]*persistence.Variant, 0, len(ladder))
	for _, q := range ladder {
		st := status.VariantSkipped
		if selName[q.Quality] {
			st = status.VariantPending
		}
		variants = append(variants, &persistence.Variant{ID: uuid.New().String(), MediaID: media.ID,
			Quality: q.Quality, Width: q.Width, Height: q.Height, Bitrate: q.Bitrate,
			AudioBitrate: q.AudioBitrate, Status: st, Created: now})
	}
	if err := d.db.InsertVariants(ctx, variants); err != nil {
		return "", fmt.Errorf("can't create variants: %w", err)
	}

	encodeJob := &persistence.Job{ID: uuid.New().String(), MediaID: media.ID, JobType: persistence.JobTypeEncode,
		Status: status.JobPending, Attempt: 1, MaxAttempts: d.opts.DefaultAttempts, Created: now}
	thumbJob := &persistence.Job{ID: uuid.New().String(), MediaID: media.ID, JobType: persistence.JobTypeThumbnail,
		Status: status.JobPending, Attempt: 1, MaxAttempts: d.opts.DefaultAttempts, Created: now}
	for _, j := range []*persistence.Job{encodeJob, thumbJob} {
		if err := d.db.InsertJob(ctx, j); err != nil {
			return "", fmt.Errorf("can't create job: %w", err)
		}
	}

	return encodeJob.ID, d.publish(ctx, media, encodeJob.ID, selected, opts.EnableAI)
}

// RetryFailedJob republishes a failed job under the same id with an
// incremented attempt counter. Fails closed on exhausted attempts.
func (d *Dispatcher) RetryFailedJob(ctx context.Context, jobID string) error {
	job, err := d.db.LoadJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("can't load job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("no job '%s'", jobID)
	}
	ok, err := d.db.PrepareJobRetry(ctx, jobID)
	if err != nil {
		return fmt.Errorf("can't prepare retry: %w", err)
	}
	if !ok {
		return fmt.Errorf("job '%s' is not retryable (status %s, attempt %d/%d): %w",
			jobID, job.Status, job.Attempt, job.MaxAttempts, ErrRetryDenied)
	}
	if err := d.db.ResetErrorVariants(ctx, job.MediaID); err != nil {
		return fmt.Errorf("can't reset variants: %w", err)
	}
	media, err := d.db.LoadMedia(ctx, job.MediaID)
	if err != nil {
		return fmt.Errorf("can't load media: %w", err)
	}
	if media == nil {
		return fmt.Errorf("no media '%s'", job.MediaID)
	}
	if _, err := d.db.UpdateMediaStatus(ctx, media.ID, status.Encoding); err != nil {
		return fmt.Errorf("can't update media status: %w", err)
	}

	variants, err := loadSelected(ctx, d.db, media.ID)
	if err != nil {
		return err
	}
	return d.publish(ctx, media, job.ID, variants, media.AIEnabled)
}

func loadSelected(ctx context.Context, db DB, mediaID string) ([]messages.QualityConfig, error) {
	rows, err := db.ListVariants(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("can't load variants: %w", err)
	}
	var res []messages.QualityConfig
	for _, v := range rows {
		if v.Status == status.VariantSkipped {
			continue
		}
		res = append(res, messages.QualityConfig{Quality: v.Quality, Width: v.Width, Height: v.Height,
			Bitrate: v.Bitrate, AudioBitrate: v.AudioBitrate})
	}
	return res, nil
}

func (d *Dispatcher) publish(ctx context.Context, media *persistence.Media, jobID string,
	qualities []messages.QualityConfig, enableAI bool) error {
	msg := &messages.EncodeMessage{
		QueueMessage: amessages.QueueMessage{ID: media.ID},
		JobID:        jobID,
		VideoID:      media.ID,
		Source: messages.SourceLocation{Bucket: d.opts.Bucket, Path: utils.FromSQLStr(media.RawPath),
			Filename: media.Title},
		Output:    messages.OutputLocation{Bucket: d.opts.Bucket, BasePath: media.ID + "/variants"},
		Qualities: qualities,
		Thumbnail: messages.ThumbnailRequest{Enabled: true, TimestampPercent: 25,
			Path: media.ID + "/thumbnail.jpg"},
		AudioForStt: messages.AudioRequest{Enabled: enableAI},
		Callback:    messages.Callback{WebhookURL: d.opts.WebhookURL, WebhookSecret: d.opts.WebhookSecret},
		Metadata: messages.DispatchMetadata{UserID: media.UserID, Title: media.Title,
			CreatedAt: media.Created.Format(time.RFC3339)},
	}
	if err := validateMessage(msg); err != nil {
		if errDB := d.db.MarkJobFailed(ctx, jobID, "invalid_dispatch", err.Error(), ""); errDB != nil {
			goapp.Log.Error().Err(errDB).Str("jobID", jobID).Msg("can't mark job failed")
		}
		return fmt.Errorf("invalid dispatch message: %w", err)
	}
	extID, err := d.sender.SendMessage(ctx, msg, messages.Encode)
	if err != nil {
		if errDB := d.db.MarkJobFailed(ctx, jobID, "publish_failed", err.Error(), ""); errDB != nil {
			goapp.Log.Error().Err(errDB).Str("jobID", jobID).Msg("can't mark job failed")
		}
		return fmt.Errorf("can't publish: %w", err)
	}
	if err := d.db.MarkJobQueued(ctx, jobID, extID); err != nil {
		return fmt.Errorf("can't mark job queued: %w", err)
	}
	goapp.Log.Info().Str("ID", media.ID).Str("jobID", jobID).Str("extID", extID).Msg("dispatched")
	return nil
}
