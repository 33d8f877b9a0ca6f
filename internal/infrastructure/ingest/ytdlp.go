package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"vinyl/internal/core/domain"

	"go.uber.org/zap"
)

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// YtDlpResolver asks yt-dlp for the best audio-only format of a video.
type YtDlpResolver struct {
	path          string
	socketTimeout time.Duration
	run           runFunc
	logger        *zap.SugaredLogger
}

type ytdlpFormat struct {
	Format string `json:"format"`
	URL    string `json:"url"`
}

type ytdlpOutput struct {
	Type    string        `json:"_type"`
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Channel string        `json:"channel"`
	Format  string        `json:"format"`
	URL     string        `json:"url"`
	Formats []ytdlpFormat `json:"formats"`
	Entries []struct{}    `json:"entries"`
}

func NewYtDlpResolver(path string, socketTimeout time.Duration, logger *zap.SugaredLogger) *YtDlpResolver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &YtDlpResolver{
		path:          path,
		socketTimeout: socketTimeout,
		run:           runCommand,
		logger:        logger,
	}
}

func (r *YtDlpResolver) Resolve(ctx context.Context, input domain.Input) (domain.Source, error) {
	args := []string{
		"-J",
		"-f", "bestaudio",
		"--no-warnings",
		"--socket-timeout", strconv.Itoa(int(r.socketTimeout.Seconds())),
		input.Reference(),
	}

	start := time.Now()
	out, err := r.run(ctx, r.path, args...)
	if err != nil {
		return domain.Source{}, fmt.Errorf("yt-dlp %s: %w", input.Reference(), err)
	}
	r.logger.Debugw("yt-dlp finished", "reference", input.Reference(), "duration", time.Since(start))

	return parseYtDlpOutput(out)
}

// parseYtDlpOutput picks the URL of the selected format. yt-dlp names the
// selection in "format"; the matching entry of "formats" carries the URL,
// with the top-level "url" as fallback.
func parseYtDlpOutput(data []byte) (domain.Source, error) {
	var out ytdlpOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.Source{}, fmt.Errorf("decode yt-dlp output: %w", err)
	}

	if out.Type == "playlist" || out.Type == "multi_video" || len(out.Entries) > 0 {
		return domain.Source{}, domain.ErrPlaylistReference
	}
	if out.Title == "" {
		return domain.Source{}, fmt.Errorf("yt-dlp output has no title: %w", domain.ErrMissingFields)
	}

	for _, f := range out.Formats {
		if out.Format != "" && f.Format == out.Format && f.URL != "" {
			return domain.Source{URL: f.URL}, nil
		}
	}
	if out.URL != "" {
		return domain.Source{URL: out.URL}, nil
	}
	return domain.Source{}, fmt.Errorf("yt-dlp output has no stream url: %w", domain.ErrMissingFields)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if len(msg) > 512 {
				msg = msg[:512]
			}
			return nil, fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// LookPath reports whether the yt-dlp binary can be found.
func (r *YtDlpResolver) LookPath() error {
	_, err := exec.LookPath(r.path)
	return err
}
