package audio

import (
	"context"
	"encoding/binary"
	"io"
	"os/exec"
	"testing"

	"vinyl/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaveHeader(t *testing.T) {
	f := PCMFormat{SampleRate: 44100, Channels: 2}
	h := WaveHeader(f)

	require.Len(t, h, 44)
	assert.Equal(t, "RIFF", string(h[0:4]))
	assert.Equal(t, uint32(0xFFFFFFFF), binary.LittleEndian.Uint32(h[4:8]))
	assert.Equal(t, "WAVE", string(h[8:12]))
	assert.Equal(t, "fmt ", string(h[12:16]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(h[20:22]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(h[22:24]))
	assert.Equal(t, uint32(44100), binary.LittleEndian.Uint32(h[24:28]))
	assert.Equal(t, uint32(176400), binary.LittleEndian.Uint32(h[28:32]))
	assert.Equal(t, uint16(4), binary.LittleEndian.Uint16(h[32:34]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(h[34:36]))
	assert.Equal(t, "data", string(h[36:40]))
	assert.Equal(t, uint32(0xFFFFFFFF), binary.LittleEndian.Uint32(h[40:44]))

	assert.Equal(t, 176400, f.BytesPerSecond())
}

func TestFFmpegDecoder_Args(t *testing.T) {
	d := NewFFmpegDecoder("ffmpeg", PCMFormat{SampleRate: 44100, Channels: 2}, nil)
	args := d.args(domain.Source{URL: "https://audio.example/a"})

	assert.Contains(t, args, "https://audio.example/a")
	assert.Equal(t, "pipe:1", args[len(args)-1])
	assert.Subset(t, args, []string{"-f", "s16le", "-ar", "44100", "-ac", "2"})
	assert.Equal(t, WaveHeader(PCMFormat{SampleRate: 44100, Channels: 2}), d.StreamHeader())
}

func TestFFmpegDecoder_MissingSource(t *testing.T) {
	d := NewFFmpegDecoder("ffmpeg", PCMFormat{SampleRate: 44100, Channels: 2}, nil)
	_, err := d.Decode(context.Background(), domain.Source{})
	assert.ErrorIs(t, err, domain.ErrMissingFields)
}

// Runs false(1) in place of ffmpeg to exercise the process plumbing.
func TestFFmpegDecoder_ProcessFailure(t *testing.T) {
	path, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not available")
	}
	d := NewFFmpegDecoder(path, PCMFormat{SampleRate: 8000, Channels: 1}, nil)

	rc, err := d.Decode(context.Background(), domain.Source{URL: "x"})
	require.NoError(t, err)
	_, err = io.ReadAll(rc)
	assert.ErrorContains(t, err, "ffmpeg: exit status 1")
	assert.NoError(t, rc.Close())
}
