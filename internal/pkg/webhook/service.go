package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/vidmill/vidmill/internal/pkg/messages"
	"github.com/vidmill/vidmill/internal/pkg/persistence"
	"github.com/vidmill/vidmill/internal/pkg/status"
	"github.com/vidmill/vidmill/internal/pkg/utils"
)

// Encoder event names
const (
	EvJobStarted         = "job.started"
	EvJobProgress        = "job.progress"
	EvQualityCompleted   = "quality.completed"
	EvThumbnailGenerated = "thumbnail.generated"
	EvAudioExtracted     = "audio.extracted"
	EvJobCompleted       = "job.completed"
	EvJobFailed          = "job.failed"
)

const maxBodyBytes = 1 << 20

// DB provides persistence functionality
type DB interface {
	LoadMedia(ctx context.Context, id string) (*persistence.Media, error)
	UpdateMediaStatus(ctx context.Context, id string, to status.Status, from ...status.Status) (bool, error)
	SetMediaFailure(ctx context.Context, id string, st status.Status, errMsg string) error
	SetMediaSourceMeta(ctx context.Context, id string, width, height int32, duration float64, codec string, bitrate int32, fps float64) error
	SetMediaThumbnail(ctx context.Context, id, path string) error
	SetMediaAudio(ctx context.Context, id, path string) error
	SetMediaDuration(ctx context.Context, id string, duration float64) error
	SetVariantReady(ctx context.Context, mediaID, quality string, width, height, bitrate int, fileSize int64, path string) error
	SetVariantStatus(ctx context.Context, mediaID, quality, st string) error
	MarkJobProcessing(ctx context.Context, id string) error
	MarkJobCompleted(ctx context.Context, id string) error
	MarkMediaJobCompleted(ctx context.Context, mediaID, jobType string) error
	MarkJobFailed(ctx context.Context, id, code, message, details string) error
	UpdateJobProgress(ctx context.Context, id string, progress int32, message string) error
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) (string, error)
}

// Data keeps data required for service work
type Data struct {
	Port      int
	Secret    string
	DB        DB
	MsgSender MsgSender

	nowF func() time.Time
}

// Payload is the envelope the encoding worker posts back
type Payload struct {
	Event     string          `json:"event"`
	JobID     string          `json:"jobId"`
	VideoID   string          `json:"videoId"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type progressData struct {
	Percent        float64 `json:"percent"`
	CurrentQuality string  `json:"currentQuality"`
}

type qualityData struct {
	Quality   string  `json:"quality"`
	Path      string  `json:"path"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Bitrate   int     `json:"bitrate"`
	SizeBytes int64   `json:"sizeBytes"`
	Duration  float64 `json:"durationSec"`
}

type fileData struct {
	Path      string  `json:"path"`
	SizeBytes int64   `json:"sizeBytes"`
	Duration  float64 `json:"durationSec"`
}

type startedData struct {
	SourceWidth   int32   `json:"sourceWidth"`
	SourceHeight  int32   `json:"sourceHeight"`
	SourceCodec   string  `json:"sourceCodec"`
	SourceBitrate int32   `json:"sourceBitrate"`
	SourceFPS     float64 `json:"sourceFps"`
	Duration      float64 `json:"durationSec"`
}

type completedData struct {
	Duration       float64 `json:"durationSec"`
	TotalSizeBytes int64   `json:"totalSizeBytes"`
}

type failedData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Quality string `json:"quality"`
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP VIDMILL webhook service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	e := initRoutes(data)

	e.Server.Addr = ":" + strconv.Itoa(data.Port)
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.DB == nil {
		return errors.New("no DB")
	}
	if data.MsgSender == nil {
		return errors.New("no msg sender")
	}
	if len(data.Secret) < 32 {
		return errors.New("webhook secret too short")
	}
	if data.nowF == nil {
		data.nowF = time.Now
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("vidmill_webhook", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/webhook/encoding", handleEvent(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type eventResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func handleEvent(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("webhook method")()
		ctx := c.Request().Context()

		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't read body")
		}
		if err := Verify(data.Secret, c.Request().Header.Get(SignatureHeader), body, data.nowF()); err != nil {
			goapp.Log.Warn().Err(err).Msg("signature rejected")
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}

		var p Payload
		if err := json.Unmarshal(body, &p); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't parse payload")
		}
		if err := validatePayload(&p); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		goapp.Log.Info().Str("ID", p.VideoID).Str("jobID", p.JobID).Str("event", p.Event).Msg("got event")
		if err := processEvent(ctx, data, &p); err != nil {
			// signed and well-formed, so acknowledge - the worker must not redeliver
			goapp.Log.Error().Err(err).Str("ID", p.VideoID).Str("event", p.Event).Send()
			return c.JSON(http.StatusOK, eventResult{Status: "failed", Error: err.Error()})
		}
		return c.JSON(http.StatusOK, eventResult{Status: "ok"})
	}
}

func validatePayload(p *Payload) error {
	if p.JobID == "" {
		return fmt.Errorf("no jobId")
	}
	if p.VideoID == "" {
		return fmt.Errorf("no videoId")
	}
	switch p.Event {
	case EvJobStarted, EvJobProgress, EvQualityCompleted, EvThumbnailGenerated,
		EvAudioExtracted, EvJobCompleted, EvJobFailed:
		return nil
	}
	return fmt.Errorf("unknown event '%s'", p.Event)
}

func processEvent(ctx context.Context, data *Data, p *Payload) error {
	switch p.Event {
	case EvJobStarted:
		return handleStarted(ctx, data, p)
	case EvJobProgress:
		return handleProgress(ctx, data, p)
	case EvQualityCompleted:
		return handleQuality(ctx, data, p)
	case EvThumbnailGenerated:
		return handleThumbnail(ctx, data, p)
	case EvAudioExtracted:
		return handleAudio(ctx, data, p)
	case EvJobCompleted:
		return handleCompleted(ctx, data, p)
	case EvJobFailed:
		return handleFailed(ctx, data, p)
	}
	return fmt.Errorf("unknown event '%s'", p.Event)
}

func handleStarted(ctx context.Context, data *Data, p *Payload) error {
	if err := data.DB.MarkJobProcessing(ctx, p.JobID); err != nil {
		return fmt.Errorf("can't mark job processing: %w", err)
	}
	var sd startedData
	if len(p.Data) > 0 {
		if err := json.Unmarshal(p.Data, &sd); err != nil {
			return fmt.Errorf("can't parse event data: %w", err)
		}
	}
	if sd.SourceWidth > 0 || sd.Duration > 0 {
		if err := data.DB.SetMediaSourceMeta(ctx, p.VideoID, sd.SourceWidth, sd.SourceHeight,
			sd.Duration, sd.SourceCodec, sd.SourceBitrate, sd.SourceFPS); err != nil {
			return fmt.Errorf("can't save source meta: %w", err)
		}
	}
	// media already past encoding is left alone
	if _, err := data.DB.UpdateMediaStatus(ctx, p.VideoID, status.Encoding,
		status.Uploading, status.Encoding); err != nil {
		return fmt.Errorf("can't update media status: %w", err)
	}
	return nil
}

func handleProgress(ctx context.Context, data *Data, p *Payload) error {
	var pd progressData
	if err := json.Unmarshal(p.Data, &pd); err != nil {
		return fmt.Errorf("can't parse event data: %w", err)
	}
	if pd.Percent < 0 || pd.Percent > 100 {
		return fmt.Errorf("wrong percent %.2f", pd.Percent)
	}
	if pd.CurrentQuality != "" {
		if err := data.DB.SetVariantStatus(ctx, p.VideoID, pd.CurrentQuality, status.VariantEncoding); err != nil {
			return fmt.Errorf("can't update variant: %w", err)
		}
	}
	if err := data.DB.UpdateJobProgress(ctx, p.JobID, int32(pd.Percent), pd.CurrentQuality); err != nil {
		return fmt.Errorf("can't update progress: %w", err)
	}
	return nil
}

func handleQuality(ctx context.Context, data *Data, p *Payload) error {
	var qd qualityData
	if err := json.Unmarshal(p.Data, &qd); err != nil {
		return fmt.Errorf("can't parse event data: %w", err)
	}
	if qd.Quality == "" {
		return fmt.Errorf("no quality")
	}
	if err := utils.ValidateObjectPath(qd.Path); err != nil {
		return fmt.Errorf("wrong path: %w", err)
	}
	if err := data.DB.SetVariantReady(ctx, p.VideoID, qd.Quality, qd.Width, qd.Height,
		qd.Bitrate, qd.SizeBytes, qd.Path); err != nil {
		return fmt.Errorf("can't update variant: %w", err)
	}
	return nil
}

func handleThumbnail(ctx context.Context, data *Data, p *Payload) error {
	var fd fileData
	if err := json.Unmarshal(p.Data, &fd); err != nil {
		return fmt.Errorf("can't parse event data: %w", err)
	}
	if err := utils.ValidateObjectPath(fd.Path); err != nil {
		return fmt.Errorf("wrong path: %w", err)
	}
	if err := data.DB.SetMediaThumbnail(ctx, p.VideoID, fd.Path); err != nil {
		return fmt.Errorf("can't save thumbnail path: %w", err)
	}
	if err := data.DB.MarkMediaJobCompleted(ctx, p.VideoID, persistence.JobTypeThumbnail); err != nil {
		return fmt.Errorf("can't mark job completed: %w", err)
	}
	return nil
}

func handleAudio(ctx context.Context, data *Data, p *Payload) error {
	var fd fileData
	if err := json.Unmarshal(p.Data, &fd); err != nil {
		return fmt.Errorf("can't parse event data: %w", err)
	}
	if err := utils.ValidateObjectPath(fd.Path); err != nil {
		return fmt.Errorf("wrong path: %w", err)
	}
	if err := data.DB.SetMediaAudio(ctx, p.VideoID, fd.Path); err != nil {
		return fmt.Errorf("can't save audio path: %w", err)
	}
	// kick off transcription right away, the encoder may still be packaging variants
	if _, err := data.MsgSender.SendMessage(ctx, &messages.TranscribeMessage{
		QueueMessage: amessages.QueueMessage{ID: p.VideoID}, MediaID: p.VideoID}, messages.Pipeline); err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	return nil
}

func handleCompleted(ctx context.Context, data *Data, p *Payload) error {
	if err := data.DB.MarkJobCompleted(ctx, p.JobID); err != nil {
		return fmt.Errorf("can't mark job completed: %w", err)
	}
	var cd completedData
	if len(p.Data) > 0 {
		if err := json.Unmarshal(p.Data, &cd); err != nil {
			return fmt.Errorf("can't parse event data: %w", err)
		}
	}
	if cd.Duration > 0 {
		if err := data.DB.SetMediaDuration(ctx, p.VideoID, cd.Duration); err != nil {
			return fmt.Errorf("can't save duration: %w", err)
		}
	}
	m, err := data.DB.LoadMedia(ctx, p.VideoID)
	if err != nil {
		return fmt.Errorf("can't load media: %w", err)
	}
	if m == nil {
		return fmt.Errorf("no media '%s'", p.VideoID)
	}
	if m.AIEnabled {
		// transcription pipeline owns the rest of the lifecycle
		return nil
	}
	moved, err := data.DB.UpdateMediaStatus(ctx, p.VideoID, status.Ready, status.Encoding)
	if err != nil {
		return fmt.Errorf("can't update media status: %w", err)
	}
	if moved {
		return sendFinal(ctx, data, p.VideoID, status.Ready, amessages.InformTypeFinished)
	}
	return nil
}

func handleFailed(ctx context.Context, data *Data, p *Payload) error {
	var fd failedData
	if err := json.Unmarshal(p.Data, &fd); err != nil {
		return fmt.Errorf("can't parse event data: %w", err)
	}
	if err := data.DB.MarkJobFailed(ctx, p.JobID, fd.Code, fd.Message, fd.Details); err != nil {
		return fmt.Errorf("can't mark job failed: %w", err)
	}
	if fd.Quality != "" {
		if err := data.DB.SetVariantStatus(ctx, p.VideoID, fd.Quality, status.VariantError); err != nil {
			return fmt.Errorf("can't update variant: %w", err)
		}
	}
	if err := data.DB.SetMediaFailure(ctx, p.VideoID, status.Error,
		fmt.Sprintf("%s: %s", fd.Code, fd.Message)); err != nil {
		return fmt.Errorf("can't update media status: %w", err)
	}
	return sendFinal(ctx, data, p.VideoID, status.Error, amessages.InformTypeFailed)
}

func sendFinal(ctx context.Context, data *Data, id string, st status.Status, informType string) error {
	if _, err := data.MsgSender.SendMessage(ctx, &messages.StatusMessage{
		QueueMessage: amessages.QueueMessage{ID: id}, MediaID: id, Status: st.String()}, messages.StatusChange); err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	if _, err := data.MsgSender.SendMessage(ctx, &amessages.InformMessage{
		QueueMessage: amessages.QueueMessage{ID: id}, Type: informType, At: time.Now()}, messages.Inform); err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	return nil
}
