package downloader

import (
	"context"
	"errors"
)

// ErrorCategory groups failures by what the operator can do about them.
type ErrorCategory string

const (
	CategoryInvalidURL   ErrorCategory = "invalid_url"
	CategoryRateLimited  ErrorCategory = "rate_limited"
	CategoryBotChallenge ErrorCategory = "bot_challenge"
	CategoryNetwork      ErrorCategory = "network"
	CategoryUnavailable  ErrorCategory = "unavailable"
	CategoryRestricted   ErrorCategory = "restricted"
	CategoryExtraction   ErrorCategory = "extraction"
	CategoryFilesystem   ErrorCategory = "filesystem"
	CategoryStorage      ErrorCategory = "storage"
	CategoryCancelled    ErrorCategory = "cancelled"
)

var (
	// ErrNoInfo means the engine finished without producing an info document.
	ErrNoInfo = errors.New("could not extract info")
	// ErrNoMediaProduced means a download finished without leaving a media file behind.
	ErrNoMediaProduced = errors.New("no media file produced")
)

// CategorizedError attaches a category to an underlying error.
type CategorizedError struct {
	Category ErrorCategory
	Err      error
}

func (e *CategorizedError) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

func wrapCategory(category ErrorCategory, err error) error {
	if err == nil {
		return nil
	}
	var existing *CategorizedError
	if errors.As(err, &existing) {
		return err
	}
	return &CategorizedError{Category: category, Err: err}
}

// CategoryOf returns the category attached to err, or CategoryExtraction when none is.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return CategoryCancelled
	}
	var categorized *CategorizedError
	if errors.As(err, &categorized) {
		return categorized.Category
	}
	return CategoryExtraction
}

// ExitCode maps a run-level error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case CategoryOf(err) == CategoryCancelled:
		return 130
	case CategoryOf(err) == CategoryInvalidURL:
		return 2
	default:
		return 1
	}
}
