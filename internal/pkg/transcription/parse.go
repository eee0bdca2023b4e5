package transcription

import (
	"encoding/json"
	"strings"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vidmill/vidmill/internal/pkg/api"
)

// ModelOutput is the parsed transcription result
type ModelOutput struct {
	Language string
	Duration float64
	Text     string
	Segments []api.Segment
}

type rawOutput struct {
	Language string       `json:"language"`
	Duration float64      `json:"duration"`
	Text     string       `json:"text"`
	Segments []rawSegment `json:"segments"`
}

type rawSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

const segmentConfidence = 0.9

// ParseModelOutput parses the model response. Models wrap JSON in markdown
// fences despite instructions, so fences are stripped first. Unparseable
// output degrades to a single segment spanning the whole audio.
func ParseModelOutput(resp string, fallbackDuration float64) *ModelOutput {
	s := stripFences(resp)
	var raw rawOutput
	if err := json.Unmarshal([]byte(s), &raw); err != nil || raw.Text == "" {
		if err != nil {
			goapp.Log.Warn().Err(err).Msg("can't parse model output, using plain text")
		}
		return fallbackOutput(s, fallbackDuration)
	}
	res := &ModelOutput{Language: raw.Language, Duration: raw.Duration, Text: raw.Text}
	if res.Duration == 0 {
		res.Duration = fallbackDuration
	}
	for i, rs := range raw.Segments {
		id := rs.ID
		if id == 0 && i > 0 {
			id = i
		}
		res.Segments = append(res.Segments, api.Segment{ID: id, Start: rs.Start,
			End: rs.End, Text: strings.TrimSpace(rs.Text), Confidence: segmentConfidence})
	}
	if len(res.Segments) == 0 {
		res.Segments = pseudoSegments(res.Text, res.Duration)
	}
	return res
}

func fallbackOutput(text string, duration float64) *ModelOutput {
	text = strings.TrimSpace(text)
	return &ModelOutput{Text: text, Duration: duration, Segments: pseudoSegments(text, duration)}
}

func pseudoSegments(text string, duration float64) []api.Segment {
	if text == "" {
		return nil
	}
	return []api.Segment{{ID: 0, Start: 0, End: duration, Text: text, Confidence: 0.5}}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
