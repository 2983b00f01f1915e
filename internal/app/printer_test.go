package app

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrinterSummary(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Summary(Counters{
		Processed: 3,
		Succeeded: 3,
		Failed:    2,
		URLs: []URLOutcome{
			{URL: "https://www.instagram.com/p/A/", Records: 1, Succeeded: 1},
			{URL: "https://www.instagram.com/p/B/", Records: 1, Err: strings.Repeat("x", 100)},
			{URL: "https://www.instagram.com/stories/u/", Records: 3, Succeeded: 2},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "https://www.instagram.com/p/A/")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "PARTIAL")
	assert.Contains(t, out, "1 of 3 items failed")
	assert.Contains(t, out, strings.Repeat("x", 57)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 58))
	assert.Contains(t, out, "Summary: OK 3 | FAIL 2 | URLS 3")
	assert.NotContains(t, out, "\x1b[", "a buffer is not a terminal")
}

func TestPrinterInterrupted(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Summary(Counters{Cancelled: true})
	assert.Contains(t, buf.String(), "(interrupted)")
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "abc", truncateText("abc", 5))
	assert.Equal(t, "ab...", truncateText("abcdef", 5))
	assert.Equal(t, "ab", truncateText("abcdef", 2))
	assert.Equal(t, "abcdef", truncateText("abcdef", 0))
}
