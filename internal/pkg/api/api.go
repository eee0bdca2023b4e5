package api

// Form parameter names for the upload service
const (
	PrmFile      = "file"
	PrmTitle     = "title"
	PrmUser      = "user"
	PrmEmail     = "email"
	PrmModule    = "module"
	PrmQualities = "qualities"
	PrmAI        = "aiFeatures"
)

// Transcript is the persisted transcript object, version 1.0
type Transcript struct {
	Version          string              `json:"version"`
	VideoID          string              `json:"videoId"`
	Language         string              `json:"language"`
	DetectedLanguage string              `json:"detectedLanguage"`
	Duration         float64             `json:"duration"`
	Text             string              `json:"text"`
	Segments         []Segment           `json:"segments"`
	Metadata         *TranscriptMetadata `json:"metadata,omitempty"`
}

// Segment is one timed span of the transcript
type Segment struct {
	ID         int     `json:"id"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TranscriptMetadata keeps processing info
type TranscriptMetadata struct {
	Model            string `json:"model"`
	ProcessedAt      string `json:"processedAt"`
	AudioPath        string `json:"audioPath"`
	AudioSizeBytes   int64  `json:"audioSizeBytes"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
}

// SearchRequest is the retrieval query interface
type SearchRequest struct {
	Query    string  `json:"query"`
	ModuleID string  `json:"moduleId,omitempty"`
	VideoID  string  `json:"videoId,omitempty"`
	TopK     int     `json:"topK,omitempty"`
	MinScore float64 `json:"minScore,omitempty"`
}

// SearchChunk is one ranked retrieval result
type SearchChunk struct {
	ID         string  `json:"id"`
	MediaID    string  `json:"videoId"`
	ModuleID   string  `json:"moduleId"`
	ChunkIndex int     `json:"chunkIndex"`
	Content    string  `json:"content"`
	StartTime  float64 `json:"startTime"`
	EndTime    float64 `json:"endTime"`
	Language   string  `json:"language,omitempty"`
	Score      float64 `json:"score"`
}

// SearchResponse is the retrieval answer
type SearchResponse struct {
	Chunks       []SearchChunk `json:"chunks"`
	Query        string        `json:"query"`
	TotalFound   int           `json:"totalFound"`
	SearchTimeMs int64         `json:"searchTimeMs"`
}
