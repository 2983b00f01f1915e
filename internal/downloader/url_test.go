package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"instagram.com/reel/ABC123", "https://www.instagram.com/reel/ABC123"},
		{"www.instagram.com/p/XYZ/", "https://www.instagram.com/p/XYZ/"},
		{"http://instagram.com/p/XYZ/", "https://www.instagram.com/p/XYZ/"},
		{"https://instagram.com/tv/abc?igsh=1", "https://www.instagram.com/tv/abc?igsh=1"},
		{"  https://www.instagram.com/reel/abc/  ", "https://www.instagram.com/reel/abc/"},
		{"HTTPS://Instagram.com/p/Case/", "https://www.instagram.com/p/Case/"},
		{"/p/abc/", "https://www.instagram.com/p/abc/"},
		{"p/abc/", "https://www.instagram.com/p/abc/"},
		{"https://example.com/reel/x", "https://example.com/reel/x"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestNormalizeURLIsIdempotent(t *testing.T) {
	inputs := []string{
		"instagram.com/reel/ABC123",
		"http://instagram.com/p/x",
		"stories/someone/123",
		"https://example.com/reel/x",
		"ftp://instagram.com/p/x",
		"   ",
		"https://instagram.com",
	}
	for _, in := range inputs {
		once := NormalizeURL(in)
		assert.Equal(t, once, NormalizeURL(once), in)
	}
}

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://www.instagram.com/reel/ABC123",
		"https://www.instagram.com/p/abc/",
		"https://www.instagram.com/tv/abc/",
		"https://www.instagram.com/stories/user/123/",
		"HTTPS://WWW.INSTAGRAM.COM/P/ABC/",
	}
	for _, u := range valid {
		assert.True(t, ValidateURL(u), u)
	}

	invalid := []string{
		"",
		"https://example.com/reel/x",
		"https://www.instagram.com/someuser/",
		"https://www.instagram.com/explore/",
	}
	for _, u := range invalid {
		assert.False(t, ValidateURL(u), u)
	}
}

func TestParseTarget(t *testing.T) {
	target, ok := ParseTarget("instagram.com/reel/ABC123")
	assert.True(t, ok)
	assert.Equal(t, "https://www.instagram.com/reel/ABC123", target.URL())
	assert.Equal(t, "instagram.com/reel/ABC123", target.Raw())

	_, ok = ParseTarget("https://example.com/reel/x")
	assert.False(t, ok)
}
