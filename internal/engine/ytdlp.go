package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/lvcoi/igfetch/internal/logger"
)

// ErrEngineMissing is returned when the engine binary cannot be found.
var ErrEngineMissing = errors.New("extraction engine not found")

// Locate resolves binary on PATH. A missing binary is reported as ErrEngineMissing.
func Locate(binary string) (string, error) {
	if binary == "" {
		return "", ErrEngineMissing
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrEngineMissing, binary, err)
	}
	return path, nil
}

// YtDlp drives the yt-dlp binary.
type YtDlp struct {
	binary  string
	timeout time.Duration
	log     logger.Logger
}

// NewYtDlp returns an engine that runs binary, bounding each call by timeout when positive.
func NewYtDlp(binary string, timeout time.Duration, log logger.Logger) *YtDlp {
	if log == nil {
		log = logger.NewNop()
	}
	return &YtDlp{binary: binary, timeout: timeout, log: log}
}

func (y *YtDlp) Extract(ctx context.Context, url string, opts Options) (*Info, error) {
	ctx, cancel := y.bound(ctx)
	defer cancel()

	cmd := y.command(opts).DumpSingleJSON()
	res, err := cmd.Run(ctx, commandArgs(opts, url)...)
	if err != nil {
		return nil, commandError(res, err)
	}
	return ParseInfo([]byte(res.Stdout))
}

func (y *YtDlp) Download(ctx context.Context, url string, opts Options) error {
	ctx, cancel := y.bound(ctx)
	defer cancel()

	res, err := y.command(opts).Run(ctx, commandArgs(opts, url)...)
	if err != nil {
		return commandError(res, err)
	}
	return nil
}

func (y *YtDlp) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if y.timeout > 0 {
		return context.WithTimeout(ctx, y.timeout)
	}
	return context.WithCancel(ctx)
}

func (y *YtDlp) command(opts Options) *ytdlp.Command {
	cmd := ytdlp.New().
		SetExecutable(y.binary).
		Quiet().
		NoWarnings().
		NoProgress().
		Retries(strconv.Itoa(opts.Retries())).
		FragmentRetries(strconv.Itoa(opts.FragmentRetries())).
		Output(opts.Output())

	if !opts.CertificateCheck() {
		cmd.NoCheckCertificates()
	}
	if opts.WorkDir() != "" {
		cmd.SetWorkDir(opts.WorkDir())
	}
	if opts.Format() != "" {
		cmd.Format(opts.Format())
	}
	if opts.FormatSort() != "" {
		cmd.FormatSort(opts.FormatSort())
	}
	if opts.MergeFormat() != "" {
		cmd.MergeOutputFormat(opts.MergeFormat())
	}
	if opts.Proxy() != "" {
		cmd.Proxy(opts.Proxy())
	}
	if opts.CookieFile() != "" {
		cmd.Cookies(opts.CookieFile())
	}
	if opts.PlaylistEnd() > 0 {
		cmd.PlaylistItems("1:" + strconv.Itoa(opts.PlaylistEnd()))
	}
	if opts.ExtractAudio() {
		cmd.ExtractAudio().AudioFormat(opts.AudioFormat())
		if opts.AudioQuality() != "" {
			cmd.AudioQuality(opts.AudioQuality())
		}
	}
	y.log.Debug("engine command prepared",
		logger.String("format", opts.Format()),
		logger.Bool("proxied", opts.Proxy() != ""),
		logger.Bool("cookies", opts.CookieFile() != ""),
		logger.Int("playlist_end", opts.PlaylistEnd()),
		logger.Int("headers", len(opts.HeaderLines())),
	)
	return cmd
}

// commandArgs returns the positional arguments for one run. The builder
// keeps a single --add-headers value, so every header is passed here as
// its own flag ahead of the URL.
func commandArgs(opts Options, url string) []string {
	lines := opts.HeaderLines()
	args := make([]string, 0, 2*len(lines)+1)
	for _, line := range lines {
		args = append(args, "--add-headers", line)
	}
	return append(args, url)
}

// commandError folds the engine's last stderr line into err so that
// callers classifying by message see the engine's own wording.
func commandError(res *ytdlp.Result, err error) error {
	if res == nil {
		return err
	}
	msg := lastErrorLine(res.Stderr)
	if msg == "" {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	fallback := ""
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
		if fallback == "" {
			fallback = line
		}
	}
	return fallback
}
