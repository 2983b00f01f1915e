package downloader

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// MaxStorageKeyLength is the longest key the key-value store accepts.
const MaxStorageKeyLength = 256

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".m4v":  "video/x-m4v",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".opus": "audio/ogg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".mp3":  "audio/mpeg",
}

const defaultContentType = "application/octet-stream"

// StorageKey derives the key-value store key "{id}.{ext}". Characters the
// store rejects are replaced and long ids are shortened so the extension survives.
func StorageKey(id, ext string) string {
	if id == "" {
		id = "unknown"
	}
	ext = sanitizeKey(strings.TrimPrefix(strings.ToLower(ext), "."))
	id = sanitizeKey(id)
	if ext == "" {
		return truncate(id, MaxStorageKeyLength)
	}
	suffix := "." + ext
	if len(suffix) >= MaxStorageKeyLength {
		return truncate(id, MaxStorageKeyLength)
	}
	return truncate(id, MaxStorageKeyLength-len(suffix)) + suffix
}

func sanitizeKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case strings.ContainsRune("!-_.'()", r):
			return r
		default:
			return '-'
		}
	}, s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ContentType maps a file extension, with or without the dot, to a MIME type.
func ContentType(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return defaultContentType
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return defaultContentType
}

func isMediaFile(name string) bool {
	_, ok := contentTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}

// newestMedia returns the most recently modified media file directly inside dir.
func newestMedia(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", wrapCategory(CategoryFilesystem, fmt.Errorf("reading download directory: %w", err))
	}
	var newest string
	var newestMod int64
	for _, entry := range entries {
		if entry.IsDir() || !isMediaFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime().UnixNano()
		if newest == "" || mod > newestMod {
			newest = filepath.Join(dir, entry.Name())
			newestMod = mod
		}
	}
	if newest == "" {
		return "", wrapCategory(CategoryFilesystem, ErrNoMediaProduced)
	}
	return newest, nil
}

// clearDirectory removes everything inside dir except the names in keep.
func clearDirectory(dir string, keep ...string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if slices.Contains(keep, entry.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
