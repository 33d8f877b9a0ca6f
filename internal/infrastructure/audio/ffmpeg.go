package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"vinyl/internal/core/domain"

	"go.uber.org/zap"
)

// FFmpegDecoder converts a source URL to interleaved s16le PCM by running
// ffmpeg with its output on a pipe.
type FFmpegDecoder struct {
	path   string
	format PCMFormat
	header []byte
	logger *zap.SugaredLogger
}

func NewFFmpegDecoder(path string, format PCMFormat, logger *zap.SugaredLogger) *FFmpegDecoder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FFmpegDecoder{
		path:   path,
		format: format,
		header: WaveHeader(format),
		logger: logger,
	}
}

func (d *FFmpegDecoder) StreamHeader() []byte { return d.header }

func (d *FFmpegDecoder) BytesPerSecond() int { return d.format.BytesPerSecond() }

func (d *FFmpegDecoder) FrameSize() int { return d.format.BlockAlign() }

func (d *FFmpegDecoder) args(src domain.Source) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", src.URL,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(d.format.SampleRate),
		"-ac", strconv.Itoa(d.format.Channels),
		"pipe:1",
	}
}

// Decode starts ffmpeg. The returned stream ends with io.EOF when ffmpeg
// exits cleanly, or with ffmpeg's error output when it fails. Closing it
// stops the process.
func (d *FFmpegDecoder) Decode(ctx context.Context, src domain.Source) (io.ReadCloser, error) {
	if src.URL == "" {
		return nil, fmt.Errorf("decode: %w", domain.ErrMissingFields)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, d.path, d.args(src)...)
	stderr := &limitedBuffer{max: 4096}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	d.logger.Debugw("ffmpeg started", "pid", cmd.Process.Pid)

	return &pcmStream{cmd: cmd, stdout: stdout, stderr: stderr, cancel: cancel}, nil
}

type pcmStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *limitedBuffer
	cancel context.CancelFunc

	waitOnce sync.Once
	waitErr  error
}

func (s *pcmStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if errors.Is(err, io.EOF) {
		if werr := s.wait(); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (s *pcmStream) Close() error {
	s.cancel()
	s.wait()
	return nil
}

func (s *pcmStream) wait() error {
	s.waitOnce.Do(func() {
		if err := s.cmd.Wait(); err != nil {
			msg := strings.TrimSpace(s.stderr.String())
			if msg == "" {
				s.waitErr = fmt.Errorf("ffmpeg: %w", err)
			} else {
				s.waitErr = fmt.Errorf("ffmpeg: %w: %s", err, msg)
			}
		}
	})
	return s.waitErr
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// LookPath reports whether the ffmpeg binary can be found.
func (d *FFmpegDecoder) LookPath() error {
	_, err := exec.LookPath(d.path)
	return err
}
