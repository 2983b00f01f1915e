package downloader

import (
	"time"

	"github.com/lvcoi/igfetch/internal/engine"
)

// Record is one dataset row.
type Record interface {
	// Failed reports whether the row carries an error field.
	Failed() bool
	// SourceURL is the page URL the row describes.
	SourceURL() string
}

// ItemMetadata describes one successfully processed media item. Fields the
// engine did not report, and file fields in metadata-only mode, are null.
type ItemMetadata struct {
	VideoID          *string  `json:"video_id"`
	Title            *string  `json:"title"`
	Author           *string  `json:"author"`
	PublishDate      *string  `json:"publish_date"`
	Duration         *float64 `json:"duration"`
	ViewCount        *int64   `json:"view_count"`
	LikeCount        *int64   `json:"like_count"`
	CommentCount     *int64   `json:"comment_count"`
	Description      *string  `json:"description"`
	Thumbnail        *string  `json:"thumbnail"`
	URL              *string  `json:"url"`
	CollectedAt      string   `json:"collected_at"`
	QualityRequested string   `json:"quality_requested"`
	FileSize         *int64   `json:"file_size"`
	FileExtension    *string  `json:"file_extension"`
	FilePath         *string  `json:"file_path"`
	DownloadedFormat *string  `json:"downloaded_format"`
	DownloadURL      *string  `json:"download_url"`
}

func (m ItemMetadata) Failed() bool { return false }

func (m ItemMetadata) SourceURL() string { return deref(m.URL) }

// ItemFailure is the row for an item whose download or storage failed after extraction.
type ItemFailure struct {
	VideoID          *string       `json:"video_id"`
	URL              *string       `json:"url"`
	Error            string        `json:"error"`
	ErrorKind        ErrorCategory `json:"error_kind"`
	QualityRequested string        `json:"quality_requested"`
	DownloadedFormat *string       `json:"downloaded_format"`
	DownloadURL      *string       `json:"download_url"`
	CollectedAt      string        `json:"collected_at"`
}

func (f ItemFailure) Failed() bool { return true }

func (f ItemFailure) SourceURL() string { return deref(f.URL) }

// URLFailure is the single row recorded when a URL could not be extracted at all.
type URLFailure struct {
	URL              string        `json:"url"`
	Error            string        `json:"error"`
	ErrorKind        ErrorCategory `json:"error_kind"`
	QualityRequested string        `json:"quality_requested"`
	CollectedAt      string        `json:"collected_at"`
}

func (f URLFailure) Failed() bool { return true }

func (f URLFailure) SourceURL() string { return f.URL }

// Hints carries page-level values discovered before extraction.
type Hints struct {
	Title       string
	Description string
	Image       string
}

func buildItemMetadata(info *engine.Info, quality string, hints Hints, now time.Time) ItemMetadata {
	return ItemMetadata{
		VideoID:          optString(info.ID),
		Title:            optString(firstNonEmpty(info.Title, hints.Title)),
		Author:           optString(info.Author()),
		PublishDate:      optString(info.UploadDate),
		Duration:         info.Duration,
		ViewCount:        info.ViewCount,
		LikeCount:        info.LikeCount,
		CommentCount:     info.CommentCount,
		Description:      optString(firstNonEmpty(info.Description, hints.Description)),
		Thumbnail:        optString(firstNonEmpty(info.Thumbnail, hints.Image)),
		URL:              optString(info.PageURL()),
		CollectedAt:      timestamp(now),
		QualityRequested: quality,
	}
}

// NewItemFailure builds the row for an item that was extracted but could not be stored.
func NewItemFailure(videoID, url, quality string, err error, now time.Time) ItemFailure {
	return ItemFailure{
		VideoID:          optString(videoID),
		URL:              optString(url),
		Error:            err.Error(),
		ErrorKind:        CategoryOf(err),
		QualityRequested: quality,
		CollectedAt:      timestamp(now),
	}
}

// NewURLFailure builds the row for a URL that failed before any item was produced.
func NewURLFailure(url, quality string, err error, now time.Time) URLFailure {
	return URLFailure{
		URL:              url,
		Error:            err.Error(),
		ErrorKind:        CategoryOf(err),
		QualityRequested: quality,
		CollectedAt:      timestamp(now),
	}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
