package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCandidates(t *testing.T) {
	tests := []struct {
		quality  string
		canMerge bool
		want     []string
	}{
		{"audio_only", true, []string{"bestaudio/best", "best"}},
		{"audio", false, []string{"bestaudio/best", "best"}},
		{"1080p", true, []string{
			"bestvideo*[height<=1080][fps<=60]+bestaudio/best[height<=1080]",
			"bestvideo*[height<=1080]+bestaudio/best",
			"bestvideo[height<=1440]+bestaudio/best",
			"best",
		}},
		{"1080", false, []string{"best[height<=1080]", "bestvideo[height<=1080]", "best"}},
		{"720p", true, []string{
			"bestvideo*[height<=720][fps<=60]+bestaudio/best[height<=720]",
			"bestvideo*[height<=720]+bestaudio/best",
			"bestvideo[height<=1080]+bestaudio/best",
			"best",
		}},
		{"720", false, []string{"best[height<=720]", "bestvideo[height<=720]", "best"}},
		{"best", true, []string{"bestvideo*+bestaudio/best", "bestvideo+bestaudio/best", "best"}},
		{"best", false, []string{"best", "bestvideo", "bestaudio"}},
		{"4k-ultra", false, []string{"best", "bestvideo", "bestaudio"}},
		{"", true, []string{"bestvideo*+bestaudio/best", "bestvideo+bestaudio/best", "best"}},
	}
	for _, tt := range tests {
		got := FormatCandidates(tt.quality, tt.canMerge)
		assert.Equal(t, tt.want, got, "%s merge=%v", tt.quality, tt.canMerge)
	}
}

func TestFormatCandidatesAreNonEmptyAndUnique(t *testing.T) {
	for _, q := range []string{"best", "720p", "720", "1080p", "1080", "audio_only", "AUDIO", "weird", ""} {
		for _, merge := range []bool{true, false} {
			got := FormatCandidates(q, merge)
			require.NotEmpty(t, got)
			seen := map[string]bool{}
			for _, sel := range got {
				assert.False(t, seen[sel], "duplicate %q for %q", sel, q)
				seen[sel] = true
			}
		}
	}
}

func TestDedupePreservesOrder(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedupe([]string{"a", "b", "a", "c", "b"}))
	assert.Equal(t, []string{"best"}, dedupe(nil))
}

func TestFormatSort(t *testing.T) {
	assert.Equal(t, "res,fps,vcodec:h264,acodec:m4a,ext:mp4:m4a", FormatSort(true))
	assert.Equal(t, "res,fps,ext:mp4:m4a", FormatSort(false))
}
