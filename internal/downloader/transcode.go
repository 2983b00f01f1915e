package downloader

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Capabilities are the optional collaborators resolved once at startup.
type Capabilities struct {
	// Transcoder reports that ffmpeg is available to merge streams and re-encode audio.
	Transcoder bool
	// Stealth enables the browser-like page fetch before extraction.
	Stealth bool
}

// DetectCapabilities looks up the transcoder binary.
func DetectCapabilities(transcoderBinary string, stealth bool) Capabilities {
	return Capabilities{
		Transcoder: binaryAvailable(transcoderBinary),
		Stealth:    stealth,
	}
}

func binaryAvailable(name string) bool {
	if name == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}

// Transcoder converts downloaded audio into the normalized codec.
type Transcoder interface {
	ToMP3(ctx context.Context, input string) (string, error)
}

// FFmpegTranscoder re-encodes through ffmpeg.
type FFmpegTranscoder struct {
	binary  string
	bitrate string
}

func NewFFmpegTranscoder(binary string) *FFmpegTranscoder {
	return &FFmpegTranscoder{binary: binary, bitrate: "192k"}
}

// ToMP3 writes an mp3 next to input and returns its path.
func (t *FFmpegTranscoder) ToMP3(ctx context.Context, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	output := strings.TrimSuffix(input, filepath.Ext(input)) + ".mp3"
	if output == input {
		return input, nil
	}

	stream := ffmpeg.Input(input).
		Output(output, ffmpeg.KwArgs{
			"vn":     "",
			"acodec": "libmp3lame",
			"b:a":    t.bitrate,
		}).
		OverWriteOutput().
		Silent(true)
	if t.binary != "" {
		stream = stream.SetFfmpegPath(t.binary)
	}
	if err := stream.Run(); err != nil {
		return "", wrapCategory(CategoryFilesystem, fmt.Errorf("transcoding %s to mp3: %w", filepath.Base(input), err))
	}
	return output, nil
}
