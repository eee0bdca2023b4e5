package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_selectQualities(t *testing.T) {
	tests := []struct {
		name     string
		w, h     int
		selected []string
		want     []string
	}{
		{name: "full hd", w: 1920, h: 1080, want: []string{"1080p", "720p", "480p", "360p", "240p"}},
		{name: "hd skips above", w: 1280, h: 720, want: []string{"720p", "480p", "360p", "240p"}},
		{name: "tiny source keeps lowest", w: 100, h: 80, want: []string{"240p"}},
		{name: "selection restricts", w: 1920, h: 1080, selected: []string{"720p", "240p"}, want: []string{"720p", "240p"}},
		{name: "selection above source dropped", w: 1280, h: 720, selected: []string{"1080p", "480p"}, want: []string{"480p"}},
		{name: "empty intersection falls back", w: 1280, h: 720, selected: []string{"1080p"}, want: []string{"240p"}},
		{name: "unknown name ignored", w: 1920, h: 1080, selected: []string{"4K", "360p"}, want: []string{"360p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectQualities(tt.w, tt.h, tt.selected)
			gotNames := make([]string, 0, len(got))
			for _, q := range got {
				gotNames = append(gotNames, q.Quality)
			}
			assert.Equal(t, tt.want, gotNames)
		})
	}
}

func Test_Ladder_Copy(t *testing.T) {
	l := Ladder()
	require.Equal(t, 5, len(l))
	l[0].Quality = "olia"
	assert.Equal(t, "1080p", Ladder()[0].Quality)
}
