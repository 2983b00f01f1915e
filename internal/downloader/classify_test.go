package downloader

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternClassifierDefaultTable(t *testing.T) {
	c := NewPatternClassifier(nil)
	tests := []struct {
		msg       string
		retryable bool
		category  ErrorCategory
	}{
		{"ERROR: [Instagram] abc: HTTP Error 429: Too Many Requests", true, CategoryRateLimited},
		{"Rate Limit Exceeded", true, CategoryRateLimited},
		{"Sign in to confirm you're not a bot", true, CategoryBotChallenge},
		{"request was BLOCKED by upstream", true, CategoryBotChallenge},
		{"read tcp: connection reset by peer", true, CategoryNetwork},
		{"dial tcp: network is unreachable", true, CategoryNetwork},
		{"The read operation timed out: timeout", true, CategoryNetwork},
		{"Service Unavailable", true, CategoryUnavailable},
		{"This reel not available in your country", true, CategoryUnavailable},
		{"This account is private", true, CategoryRestricted},
		{"Unsupported URL: https://example.com", false, CategoryExtraction},
		{"", false, CategoryExtraction},
	}
	for _, tt := range tests {
		got := c.Classify(errors.New(tt.msg))
		assert.Equal(t, tt.retryable, got.Retryable, tt.msg)
		assert.Equal(t, tt.category, got.Category, tt.msg)
	}
	assert.Equal(t, Classification{}, c.Classify(nil))
}

func TestPatternClassifierEarliestPatternWins(t *testing.T) {
	c := NewPatternClassifier([]ErrorPattern{
		{Pattern: "private", Retryable: false, Category: CategoryRestricted},
		{Pattern: "timeout", Retryable: true, Category: CategoryNetwork},
	})
	got := c.Classify(errors.New("timeout while loading private profile"))
	assert.False(t, got.Retryable)
	assert.Equal(t, CategoryRestricted, got.Category)
}

func TestPatternClassifierCustomTableAndEmptyTable(t *testing.T) {
	c := NewPatternClassifier([]ErrorPattern{{Pattern: "Checkpoint Required", Retryable: true, Category: CategoryBotChallenge}})
	assert.True(t, c.Classify(errors.New("checkpoint required")).Retryable)
	assert.False(t, c.Classify(errors.New("too many requests")).Retryable)

	empty := NewPatternClassifier([]ErrorPattern{})
	assert.False(t, empty.Classify(errors.New("too many requests")).Retryable)
}

func TestPatternClassifierMissingMediaIsFatal(t *testing.T) {
	c := NewPatternClassifier(nil)
	err := wrapCategory(CategoryFilesystem, fmt.Errorf("timeout: %w", ErrNoMediaProduced))
	got := c.Classify(err)
	assert.False(t, got.Retryable)
	assert.Equal(t, CategoryFilesystem, got.Category)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("try again later")))
	assert.False(t, IsRetryable(errors.New("404 not found")))
}
