// Package audio decodes resolved sources to raw PCM and frames it for
// listeners.
package audio

import (
	"bytes"
	"encoding/binary"
)

const (
	// MIME is the content type of a listener stream.
	MIME = "audio/wav"

	bitsPerSample = 16
	// unknownLength marks the RIFF and data chunk sizes of a live stream.
	unknownLength = 0xFFFFFFFF
)

type PCMFormat struct {
	SampleRate int
	Channels   int
}

func (f PCMFormat) BytesPerSecond() int {
	return f.SampleRate * f.BlockAlign()
}

// BlockAlign is the size of one sample frame across all channels.
func (f PCMFormat) BlockAlign() int {
	return f.Channels * bitsPerSample / 8
}

// WaveHeader builds the 44-byte canonical WAV header for 16-bit little
// endian PCM. Both length fields are left open-ended since a listener joins
// a broadcast with no known end.
func WaveHeader(f PCMFormat) []byte {
	var buf bytes.Buffer
	buf.Grow(44)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(unknownLength))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(f.BytesPerSecond()))
	binary.Write(&buf, binary.LittleEndian, uint16(f.BlockAlign()))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(unknownLength))
	return buf.Bytes()
}
