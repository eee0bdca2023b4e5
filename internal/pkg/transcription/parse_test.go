package transcription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelOutput(t *testing.T) {
	res := ParseModelOutput(`{"language":"en","duration":12.5,"text":"hello world",
		"segments":[{"id":0,"start":0,"end":6,"text":"hello"},{"id":1,"start":6,"end":12.5,"text":"world"}]}`, 0)
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, 12.5, res.Duration)
	assert.Equal(t, "hello world", res.Text)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, 1, res.Segments[1].ID)
	assert.Equal(t, "world", res.Segments[1].Text)
	assert.InDelta(t, 0.9, res.Segments[0].Confidence, 0.0001)
}

func TestParseModelOutput_Fenced(t *testing.T) {
	res := ParseModelOutput("```json\n{\"language\":\"lt\",\"duration\":3,\"text\":\"labas\",\"segments\":[{\"id\":0,\"start\":0,\"end\":3,\"text\":\"labas\"}]}\n```", 0)
	assert.Equal(t, "lt", res.Language)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, "labas", res.Segments[0].Text)
}

func TestParseModelOutput_PlainTextFallback(t *testing.T) {
	res := ParseModelOutput("just a plain transcript", 30)
	assert.Equal(t, "just a plain transcript", res.Text)
	assert.Equal(t, 30.0, res.Duration)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, 0.0, res.Segments[0].Start)
	assert.Equal(t, 30.0, res.Segments[0].End)
	assert.InDelta(t, 0.5, res.Segments[0].Confidence, 0.0001)
}

func TestParseModelOutput_NoSegments(t *testing.T) {
	res := ParseModelOutput(`{"language":"en","duration":5,"text":"abc"}`, 0)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, "abc", res.Segments[0].Text)
	assert.Equal(t, 5.0, res.Segments[0].End)
}

func TestParseModelOutput_FallbackDuration(t *testing.T) {
	res := ParseModelOutput(`{"language":"en","text":"abc","segments":[{"id":0,"start":0,"end":4,"text":"abc"}]}`, 42)
	assert.Equal(t, 42.0, res.Duration)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}
