package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/generative-ai-go/genai"
	"github.com/vidmill/vidmill/internal/pkg/api"
	"github.com/vidmill/vidmill/internal/pkg/persistence"
	"github.com/vidmill/vidmill/internal/pkg/utils"
	"google.golang.org/api/option"
)

// MaxAudioBytes is the inline payload ceiling of the model API.
// Larger audio is rejected without retry.
const MaxAudioBytes = 20 << 20

const systemPrompt = `You are a speech transcription engine. Transcribe the provided audio completely.
Respond with JSON only, no prose, matching exactly this schema:
{"language": "<ISO 639-1>", "duration": <seconds>, "text": "<full transcript>",
"segments": [{"id": <int>, "start": <seconds>, "end": <seconds>, "text": "<segment text>"}]}
Segments must cover the whole audio in order, 5-15 seconds each, split at sentence boundaries.`

// Filer loads audio and stores the transcript object
type Filer interface {
	LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error)
	SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error
	Stat(ctx context.Context, name string) (int64, error)
}

// ErrAudioTooLarge indicates the audio exceeds the inline payload ceiling
type ErrAudioTooLarge struct {
	Size, Limit int64
}

func (e *ErrAudioTooLarge) Error() string {
	return fmt.Sprintf("audio size %d exceeds limit %d", e.Size, e.Limit)
}

// Client calls the external transcription model
type Client struct {
	client   *genai.Client
	model    string
	filer    Filer
	language string
	backoff  func() backoff.BackOff
}

// NewClient creates a transcription client
func NewClient(ctx context.Context, apiKey, model, language string, filer Filer) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no api key")
	}
	if filer == nil {
		return nil, fmt.Errorf("no filer")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	gc, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("can't init genai client: %w", err)
	}
	return &Client{client: gc, model: model, filer: filer, language: language, backoff: newSimpleBackoff}, nil
}

// TranscriptPath is the deterministic transcript object key for a media
func TranscriptPath(mediaID string) string {
	return mediaID + "/transcript.json"
}

// TranscribeAudio fetches the extracted audio, calls the model and persists
// the transcript object. The audio size ceiling is checked before any call.
func (c *Client) TranscribeAudio(ctx context.Context, media *persistence.Media) (*api.Transcript, error) {
	start := time.Now()
	audioPath := utils.FromSQLStr(media.AudioPath)
	if audioPath == "" {
		return nil, fmt.Errorf("no audio path for media '%s'", media.ID)
	}
	size, err := c.filer.Stat(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("can't stat audio: %w", err)
	}
	if size > MaxAudioBytes {
		return nil, &ErrAudioTooLarge{Size: size, Limit: MaxAudioBytes}
	}
	f, err := c.filer.LoadFile(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("can't load audio: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("can't read audio: %w", err)
	}

	goapp.Log.Info().Str("ID", media.ID).Int("bytes", len(data)).Str("model", c.model).Msg("transcribing")
	raw, err := c.generate(ctx, audioPath, data)
	if err != nil {
		return nil, fmt.Errorf("can't call transcription model: %w", err)
	}

	out := ParseModelOutput(raw, utils.FromSQLFloat64OrZero(media.Duration))
	tr := &api.Transcript{
		Version:          "1.0",
		VideoID:          media.ID,
		Language:         c.language,
		DetectedLanguage: out.Language,
		Duration:         out.Duration,
		Text:             out.Text,
		Segments:         out.Segments,
		Metadata: &api.TranscriptMetadata{
			Model:            c.model,
			ProcessedAt:      time.Now().Format(time.RFC3339),
			AudioPath:        audioPath,
			AudioSizeBytes:   size,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
	}

	body, err := json.Marshal(tr)
	if err != nil {
		return nil, fmt.Errorf("can't marshal transcript: %w", err)
	}
	name := TranscriptPath(media.ID)
	if err := c.filer.SaveFile(ctx, name, strings.NewReader(string(body)), int64(len(body))); err != nil {
		return nil, fmt.Errorf("can't save transcript: %w", err)
	}
	goapp.Log.Info().Str("ID", media.ID).Int("segments", len(tr.Segments)).Msg("transcribed")
	return tr, nil
}

func (c *Client) generate(ctx context.Context, audioPath string, data []byte) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	model.ResponseMIMEType = "application/json"

	return goapp.InvokeWithBackoff(ctx, func() (string, bool, error) {
		resp, err := model.GenerateContent(ctx,
			genai.Blob{MIMEType: audioMIME(audioPath), Data: data},
			genai.Text("Transcribe this audio."))
		if err != nil {
			return "", goapp.IsRetryableErr(err), err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", false, fmt.Errorf("empty model response")
		}
		var sb strings.Builder
		for _, p := range resp.Candidates[0].Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		return sb.String(), false, nil
	}, c.backoff())
}

// Close releases the underlying client
func (c *Client) Close() error {
	return c.client.Close()
}

func audioMIME(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	}
	return "audio/mpeg"
}

func newSimpleBackoff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
}
