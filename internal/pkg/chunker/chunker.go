package chunker

import (
	"strings"

	"github.com/vidmill/vidmill/internal/pkg/api"
)

const (
	// TargetTokens is the soft chunk size limit
	TargetTokens = 400
	// MinTokens - a smaller trailing chunk is merged into the previous one
	MinTokens = 100
)

// Chunk is a token budgeted span of transcript segments
type Chunk struct {
	Index      int
	Content    string
	TokenCount int
	StartTime  float64
	EndTime    float64
	SegmentIDs []int
	Confidence float64
	Language   string
}

// EstimateTokens approximates token count as ceil(len/4)
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// ChunkTranscript splits the transcript into overlapping chunks.
// Segments are never split; consecutive chunks share one segment for continuity.
func ChunkTranscript(tr *api.Transcript) []Chunk {
	if tr == nil || len(tr.Segments) == 0 {
		return nil
	}
	var groups [][]api.Segment
	var pend []api.Segment
	for _, seg := range tr.Segments {
		if len(pend) > 0 && EstimateTokens(joinTexts(append(pend, seg))) > TargetTokens {
			groups = append(groups, pend)
			// seed the next chunk with the last emitted segment
			pend = []api.Segment{pend[len(pend)-1]}
		}
		pend = append(pend, seg)
	}
	if len(pend) > 0 {
		if len(groups) > 0 && EstimateTokens(joinTexts(pend)) < MinTokens {
			last := groups[len(groups)-1]
			groups[len(groups)-1] = append(last, pend...)
		} else {
			groups = append(groups, pend)
		}
	}

	res := make([]Chunk, 0, len(groups))
	for i, g := range groups {
		c := buildChunk(dedupe(g))
		c.Index = i
		c.Language = tr.Language
		res = append(res, c)
	}
	return res
}

func buildChunk(segs []api.Segment) Chunk {
	var c Chunk
	var confSum float64
	texts := make([]string, 0, len(segs))
	for _, s := range segs {
		c.SegmentIDs = append(c.SegmentIDs, s.ID)
		texts = append(texts, s.Text)
		confSum += s.Confidence
	}
	c.Content = strings.Join(texts, " ")
	c.TokenCount = EstimateTokens(c.Content)
	c.StartTime = segs[0].Start
	c.EndTime = segs[len(segs)-1].End
	c.Confidence = confSum / float64(len(segs))
	return c
}

func dedupe(segs []api.Segment) []api.Segment {
	seen := map[int]bool{}
	res := make([]api.Segment, 0, len(segs))
	for _, s := range segs {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		res = append(res, s)
	}
	return res
}

func joinTexts(segs []api.Segment) string {
	texts := make([]string, 0, len(segs))
	for _, s := range segs {
		texts = append(texts, s.Text)
	}
	return strings.Join(texts, " ")
}
