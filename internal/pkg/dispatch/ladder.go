package dispatch

import "github.com/vidmill/vidmill/internal/pkg/messages"

// ladder is the fixed tier set, top quality first.
// Variant rows are created for every tier, selection only flips pending/skipped.
var ladder = []messages.QualityConfig{
	{Quality: "1080p", Width: 1920, Height: 1080, Bitrate: 5000, AudioBitrate: 128},
	{Quality: "720p", Width: 1280, Height: 720, Bitrate: 2800, AudioBitrate: 128},
	{Quality: "480p", Width: 854, Height: 480, Bitrate: 1400, AudioBitrate: 96},
	{Quality: "360p", Width: 640, Height: 360, Bitrate: 800, AudioBitrate: 96},
	{Quality: "240p", Width: 426, Height: 240, Bitrate: 400, AudioBitrate: 64},
}

// Ladder returns the fixed quality tiers
func Ladder() []messages.QualityConfig {
	res := make([]messages.QualityConfig, len(ladder))
	copy(res, ladder)
	return res
}

// selectQualities picks the tiers to encode: tiers above the source resolution
// are dropped, the lowest tier always stays, and an explicit user selection
// restricts further (falling back to the lowest tier on an empty intersection).
func selectQualities(sourceWidth, sourceHeight int, selected []string) []messages.QualityConfig {
	var fit []messages.QualityConfig
	for _, q := range ladder {
		if q.Width <= sourceWidth && q.Height <= sourceHeight {
			fit = append(fit, q)
		}
	}
	if len(fit) == 0 {
		fit = []messages.QualityConfig{ladder[len(ladder)-1]}
	}
	if len(selected) == 0 {
		return fit
	}
	sel := map[string]bool{}
	for _, s := range selected {
		sel[s] = true
	}
	var res []messages.QualityConfig
	for _, q := range fit {
		if sel[q.Quality] {
			res = append(res, q)
		}
	}
	if len(res) == 0 {
		res = []messages.QualityConfig{fit[len(fit)-1]}
	}
	return res
}
