package downloader

import (
	"errors"
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// Classification is the verdict for one error.
type Classification struct {
	Retryable bool
	Category  ErrorCategory
}

// Classifier decides whether an engine error is worth another attempt.
type Classifier interface {
	Classify(err error) Classification
}

// ErrorPattern maps a case-insensitive message fragment to a verdict.
type ErrorPattern struct {
	Pattern   string
	Retryable bool
	Category  ErrorCategory
}

// DefaultErrorPatterns covers rate limiting, bot challenges, transient
// network failures and the platform's intermittent "not available" replies.
var DefaultErrorPatterns = []ErrorPattern{
	{"rate limit exceeded", true, CategoryRateLimited},
	{"too many requests", true, CategoryRateLimited},
	{"http error 429", true, CategoryRateLimited},
	{"try again later", true, CategoryRateLimited},
	{"sign in to confirm you're not a bot", true, CategoryBotChallenge},
	{"blocked", true, CategoryBotChallenge},
	{"bot", true, CategoryBotChallenge},
	{"connection reset", true, CategoryNetwork},
	{"timeout", true, CategoryNetwork},
	{"network is unreachable", true, CategoryNetwork},
	{"temporarily unavailable", true, CategoryUnavailable},
	{"service unavailable", true, CategoryUnavailable},
	{"content not available", true, CategoryUnavailable},
	{"video not available", true, CategoryUnavailable},
	{"reel not available", true, CategoryUnavailable},
	{"private account", true, CategoryRestricted},
	{"account is private", true, CategoryRestricted},
}

// PatternClassifier matches error messages against a pattern table in a single pass.
// When several patterns match, the earliest table entry wins.
type PatternClassifier struct {
	patterns []ErrorPattern
	mu       sync.Mutex
	matcher  *ahocorasick.Matcher
}

// NewPatternClassifier builds a classifier over patterns. A nil table uses DefaultErrorPatterns.
func NewPatternClassifier(patterns []ErrorPattern) *PatternClassifier {
	if patterns == nil {
		patterns = DefaultErrorPatterns
	}
	keywords := make([]string, len(patterns))
	for i, p := range patterns {
		keywords[i] = strings.ToLower(p.Pattern)
	}
	c := &PatternClassifier{patterns: patterns}
	if len(keywords) > 0 {
		c.matcher = ahocorasick.NewStringMatcher(keywords)
	}
	return c
}

func (c *PatternClassifier) Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}
	var categorized *CategorizedError
	if errors.As(err, &categorized) && categorized.Category == CategoryFilesystem {
		return Classification{Category: CategoryFilesystem}
	}
	if errors.Is(err, ErrNoMediaProduced) {
		return Classification{Category: CategoryFilesystem}
	}
	if c.matcher == nil {
		return Classification{Category: CategoryExtraction}
	}

	c.mu.Lock()
	hits := c.matcher.Match([]byte(strings.ToLower(err.Error())))
	c.mu.Unlock()

	best := -1
	for _, idx := range hits {
		if best == -1 || idx < best {
			best = idx
		}
	}
	if best == -1 {
		return Classification{Category: CategoryExtraction}
	}
	p := c.patterns[best]
	return Classification{Retryable: p.Retryable, Category: p.Category}
}

// IsRetryable is a convenience wrapper around the default table.
func IsRetryable(err error) bool {
	return defaultClassifier.Classify(err).Retryable
}

var defaultClassifier = NewPatternClassifier(nil)
