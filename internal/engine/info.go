// Package engine is the boundary to the external media extraction engine.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Engine resolves page URLs into media information and downloads media.
type Engine interface {
	// Extract returns the info for url, or nil when the engine produced nothing.
	Extract(ctx context.Context, url string, opts Options) (*Info, error)
	// Download writes the media for url according to opts.Output.
	Download(ctx context.Context, url string, opts Options) error
}

// Info is the subset of the engine's info document the pipeline consumes.
// Container results carry their items in Entries; entries may be nil.
type Info struct {
	ID           string   `json:"id"`
	Type         string   `json:"_type"`
	Title        string   `json:"title"`
	Uploader     string   `json:"uploader"`
	Channel      string   `json:"channel"`
	UploadDate   string   `json:"upload_date"`
	Duration     *float64 `json:"duration"`
	ViewCount    *int64   `json:"view_count"`
	LikeCount    *int64   `json:"like_count"`
	CommentCount *int64   `json:"comment_count"`
	Description  string   `json:"description"`
	Thumbnail    string   `json:"thumbnail"`
	WebpageURL   string   `json:"webpage_url"`
	URL          string   `json:"url"`
	Ext          string   `json:"ext"`
	Entries      []*Info  `json:"entries"`
}

// IsContainer reports whether the info describes a playlist-like result.
func (i *Info) IsContainer() bool {
	if i == nil {
		return false
	}
	return i.Type == "playlist" || i.Type == "multi_video" || i.Entries != nil
}

// Author prefers the uploader and falls back to the channel name.
func (i *Info) Author() string {
	if i.Uploader != "" {
		return i.Uploader
	}
	return i.Channel
}

// PageURL prefers the canonical page URL over the media URL.
func (i *Info) PageURL() string {
	if i.WebpageURL != "" {
		return i.WebpageURL
	}
	return i.URL
}

// ParseInfo decodes a single info document. Empty output and a JSON null decode to nil.
func ParseInfo(data []byte) (*Info, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode engine info: %w", err)
	}
	return &info, nil
}
