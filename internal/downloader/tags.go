package downloader

import (
	"path/filepath"
	"strings"

	id3v2 "github.com/bogem/id3v2/v2"
)

// tagAudio writes ID3v2 tags to mp3 files and ignores every other format.
func tagAudio(path string, meta ItemMetadata) error {
	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		return nil
	}
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if title := deref(meta.Title); title != "" {
		tag.SetTitle(title)
	}
	if author := deref(meta.Author); author != "" {
		tag.SetArtist(author)
	}
	if year := releaseYear(deref(meta.PublishDate)); year != "" {
		tag.SetYear(year)
	}
	if source := deref(meta.URL); source != "" {
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "eng",
			Description: "source",
			Text:        source,
		})
	}
	return tag.Save()
}

// releaseYear extracts YYYY from the engine's YYYYMMDD upload date.
func releaseYear(date string) string {
	if len(date) < 4 {
		return ""
	}
	for _, r := range date[:4] {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return date[:4]
}
