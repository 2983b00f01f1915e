package downloader

import (
	"strconv"
	"strings"
)

// Quality tiers accepted from input.
const (
	QualityBest  = "best"
	QualityAudio = "audio_only"
	Quality1080  = "1080p"
	Quality720   = "720p"
)

const (
	mergeFormatSort   = "res,fps,vcodec:h264,acodec:m4a,ext:mp4:m4a"
	plainFormatSort   = "res,fps,ext:mp4:m4a"
	mergeContainer    = "mp4"
	bestFormat        = "best"
	audioCodec        = "mp3"
	audioBitrateLabel = "192K"
)

type tier int

const (
	tierDefault tier = iota
	tierAudio
	tier1080
	tier720
)

func parseTier(quality string) tier {
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case "audio_only", "audio":
		return tierAudio
	case "1080p", "1080":
		return tier1080
	case "720p", "720":
		return tier720
	default:
		return tierDefault
	}
}

// IsAudioQuality reports whether quality selects the audio-only tier.
func IsAudioQuality(quality string) bool {
	return parseTier(quality) == tierAudio
}

// FormatCandidates returns the ordered, deduplicated selector cascade for quality.
// canMerge reports whether a transcoder is available to merge separate streams.
// Only the first candidate is handed to the engine; the rest document the
// fallbacks its own selector syntax already expresses.
func FormatCandidates(quality string, canMerge bool) []string {
	var candidates []string
	switch parseTier(quality) {
	case tierAudio:
		candidates = []string{"bestaudio/best", "best"}
	case tier1080:
		candidates = heightCandidates(1080, 1440, canMerge)
	case tier720:
		candidates = heightCandidates(720, 1080, canMerge)
	default:
		if canMerge {
			candidates = []string{"bestvideo*+bestaudio/best", "bestvideo+bestaudio/best", "best"}
		} else {
			candidates = []string{"best", "bestvideo", "bestaudio"}
		}
	}
	return dedupe(candidates)
}

func heightCandidates(height, relaxed int, canMerge bool) []string {
	h := strconv.Itoa(height)
	if !canMerge {
		return []string{
			"best[height<=" + h + "]",
			"bestvideo[height<=" + h + "]",
			bestFormat,
		}
	}
	return []string{
		"bestvideo*[height<=" + h + "][fps<=60]+bestaudio/best[height<=" + h + "]",
		"bestvideo*[height<=" + h + "]+bestaudio/best",
		"bestvideo[height<=" + strconv.Itoa(relaxed) + "]+bestaudio/best",
		bestFormat,
	}
}

// FormatSort returns the engine's format ordering for the merge capability.
func FormatSort(canMerge bool) string {
	if canMerge {
		return mergeFormatSort
	}
	return plainFormatSort
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		out = append(out, bestFormat)
	}
	return out
}
