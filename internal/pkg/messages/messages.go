package messages

import (
	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "VIDMILL/"
	// Encode queue name - dispatch channel to the external encoding worker
	Encode = st + "Encode"
	// Pipeline queue name - internal transcription/indexing work
	Pipeline = st + "Pipeline"
	// StatusChange queue name
	StatusChange = st + "StatusChange"
	// Inform queue name
	Inform = st + "Inform"
)

// TranscribeMessage starts the transcription pipeline for a media
type TranscribeMessage struct {
	amessages.QueueMessage
	MediaID string `json:"mediaId"`
}

// StatusMessage notifies about a media status change
type StatusMessage struct {
	amessages.QueueMessage
	MediaID string `json:"mediaId"`
	Status  string `json:"status"`
}

// QualityConfig is one rung of the encoding ladder in the dispatch message
type QualityConfig struct {
	Quality      string `json:"quality"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Bitrate      int    `json:"bitrate"`
	AudioBitrate int    `json:"audioBitrate"`
}

// SourceLocation points at the raw uploaded object
type SourceLocation struct {
	Bucket   string `json:"bucket"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// OutputLocation points at the encoded variants base path
type OutputLocation struct {
	Bucket   string `json:"bucket"`
	BasePath string `json:"basePath"`
}

// ThumbnailRequest asks the worker for a capture
type ThumbnailRequest struct {
	Enabled          bool    `json:"enabled"`
	TimestampPercent float64 `json:"timestampPercent"`
	Path             string  `json:"path"`
}

// AudioRequest asks the worker to extract audio for transcription
type AudioRequest struct {
	Enabled bool `json:"enabled"`
}

// Callback describes the signed webhook the worker reports to
type Callback struct {
	WebhookURL    string `json:"webhookUrl"`
	WebhookSecret string `json:"webhookSecret"`
}

// DispatchMetadata carries informational fields for the worker
type DispatchMetadata struct {
	UserID    string `json:"userId"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
}

// EncodeMessage is the dispatch message sent to the external encoding worker
type EncodeMessage struct {
	amessages.QueueMessage
	JobID       string           `json:"jobId"`
	VideoID     string           `json:"videoId"`
	Source      SourceLocation   `json:"source"`
	Output      OutputLocation   `json:"output"`
	Qualities   []QualityConfig  `json:"qualities"`
	Thumbnail   ThumbnailRequest `json:"thumbnail"`
	AudioForStt AudioRequest     `json:"audioForStt"`
	Callback    Callback         `json:"callback"`
	Metadata    DispatchMetadata `json:"metadata"`
}
