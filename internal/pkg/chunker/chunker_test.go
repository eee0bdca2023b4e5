package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidmill/vidmill/internal/pkg/api"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
}

func TestChunkTranscript_Empty(t *testing.T) {
	assert.Nil(t, ChunkTranscript(nil))
	assert.Nil(t, ChunkTranscript(&api.Transcript{}))
}

func TestChunkTranscript_Single(t *testing.T) {
	tr := testTranscript(3, 40)
	chunks := ChunkTranscript(tr)
	require.Equal(t, 1, len(chunks))
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, []int{0, 1, 2}, chunks[0].SegmentIDs)
	assert.Equal(t, 0.0, chunks[0].StartTime)
	assert.Equal(t, 15.0, chunks[0].EndTime)
	assert.Equal(t, "lt", chunks[0].Language)
}

func TestChunkTranscript_SplitsOnTarget(t *testing.T) {
	// 10 segments of ~100 tokens force several chunks
	tr := testTranscript(10, 100)
	chunks := ChunkTranscript(tr)
	require.True(t, len(chunks) > 1, "expected multiple chunks, got %d", len(chunks))
	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, TargetTokens+110, "chunk %d too big", c.Index)
	}
}

func TestChunkTranscript_Overlap(t *testing.T) {
	tr := testTranscript(10, 100)
	chunks := ChunkTranscript(tr)
	require.True(t, len(chunks) > 1)
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].SegmentIDs
		assert.Equal(t, prev[len(prev)-1], chunks[i].SegmentIDs[0],
			"chunk %d does not start with last segment of chunk %d", i, i-1)
	}
}

func TestChunkTranscript_MergesSmallTail(t *testing.T) {
	// tiny trailing pair merges back into the filled chunk
	segs := []api.Segment{
		{ID: 0, Start: 0, End: 5, Text: strings.Repeat("a", 1560), Confidence: 0.9},
		{ID: 1, Start: 5, End: 6, Text: strings.Repeat("b", 20), Confidence: 0.9},
		{ID: 2, Start: 6, End: 7, Text: strings.Repeat("c", 20), Confidence: 0.9},
	}
	tr := &api.Transcript{Language: "lt", Segments: segs}
	chunks := ChunkTranscript(tr)
	require.Equal(t, 1, len(chunks))
	assert.Equal(t, []int{0, 1, 2}, chunks[0].SegmentIDs)
	assert.Equal(t, 7.0, chunks[0].EndTime)
}

func TestChunkTranscript_Confidence(t *testing.T) {
	segs := []api.Segment{
		{ID: 0, Start: 0, End: 5, Text: "olia", Confidence: 0.8},
		{ID: 1, Start: 5, End: 10, Text: "olia", Confidence: 0.6},
	}
	chunks := ChunkTranscript(&api.Transcript{Language: "lt", Segments: segs})
	require.Equal(t, 1, len(chunks))
	assert.InDelta(t, 0.7, chunks[0].Confidence, 0.0001)
}

func testTranscript(n, tokensPerSeg int) *api.Transcript {
	segs := make([]api.Segment, 0, n)
	for i := 0; i < n; i++ {
		segs = append(segs, api.Segment{ID: i, Start: float64(i * 5), End: float64(i*5 + 5),
			Text: fmt.Sprintf("s%d %s", i, strings.Repeat("a", tokensPerSeg*4-5)), Confidence: 0.9})
	}
	return &api.Transcript{Language: "lt", Segments: segs}
}
