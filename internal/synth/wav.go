package synth

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/book-expert/audiobook-service/internal/core"
)

// WAV container layout.
const (
	riffHeaderLen  = 12
	chunkPrefixLen = 8
	fmtChunkLen    = 16
	pcmFormatTag   = 1
)

// WAVParams are the audio parameters shared by every segment of one chapter.
type WAVParams struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
}

func (p WAVParams) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", p.SampleRate, p.Channels, p.BitsPerSample)
}

// parseWAV walks the RIFF chunks of data and returns the format parameters
// and the raw PCM samples from the data chunk.
func parseWAV(data []byte) (WAVParams, []byte, error) {
	var params WAVParams

	if len(data) < riffHeaderLen {
		return params, nil, fmt.Errorf("%w: %d bytes is too short for a RIFF header",
			core.ErrEmptyAudio, len(data))
	}

	if !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return params, nil, fmt.Errorf("%w: not a RIFF/WAVE stream", core.ErrEmptyAudio)
	}

	var samples []byte

	haveFmt := false
	offset := riffHeaderLen

	for offset+chunkPrefixLen <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + chunkPrefixLen

		if body+chunkLen > len(data) {
			chunkLen = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkLen < fmtChunkLen {
				return params, nil, fmt.Errorf("%w: fmt chunk is %d bytes",
					core.ErrEmptyAudio, chunkLen)
			}

			params.Channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			params.SampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			params.BitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			samples = data[body : body+chunkLen]
		}

		// Chunks are word-aligned.
		offset = body + chunkLen + chunkLen%2
	}

	if !haveFmt {
		return params, nil, fmt.Errorf("%w: missing fmt chunk", core.ErrEmptyAudio)
	}

	if len(samples) == 0 {
		return params, nil, fmt.Errorf("%w: missing or empty data chunk", core.ErrEmptyAudio)
	}

	return params, samples, nil
}

// encodeWAV builds a canonical PCM WAV file from parameters and samples.
func encodeWAV(params WAVParams, samples []byte) []byte {
	blockAlign := params.Channels * params.BitsPerSample / 8
	byteRate := params.SampleRate * uint32(blockAlign)

	var buf bytes.Buffer

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(4+chunkPrefixLen+fmtChunkLen+chunkPrefixLen+len(samples)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(fmtChunkLen))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(pcmFormatTag))
	_ = binary.Write(&buf, binary.LittleEndian, params.Channels)
	_ = binary.Write(&buf, binary.LittleEndian, params.SampleRate)
	_ = binary.Write(&buf, binary.LittleEndian, byteRate)
	_ = binary.Write(&buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(&buf, binary.LittleEndian, params.BitsPerSample)

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(samples)))
	buf.Write(samples)

	return buf.Bytes()
}

// EncodeWAV builds a PCM WAV file from parameters and raw samples. Exposed
// for test doubles that need plausible backend output.
func EncodeWAV(params WAVParams, samples []byte) []byte {
	return encodeWAV(params, samples)
}

// ConcatenateWAV joins the segments into one WAV stream. The audio parameters
// come from the first segment; a later segment with different parameters
// fails the concatenation rather than producing a corrupt file.
func ConcatenateWAV(segments [][]byte) ([]byte, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no segments to concatenate", core.ErrEmptyAudio)
	}

	first, samples, err := parseWAV(segments[0])
	if err != nil {
		return nil, fmt.Errorf("segment 1: %w", err)
	}

	joined := bytes.NewBuffer(samples)

	for i, segment := range segments[1:] {
		params, segSamples, segErr := parseWAV(segment)
		if segErr != nil {
			return nil, fmt.Errorf("segment %d: %w", i+2, segErr)
		}

		if params != first {
			return nil, fmt.Errorf("%w: segment %d is %s, segment 1 is %s",
				core.ErrParamsMismatch, i+2, params, first)
		}

		joined.Write(segSamples)
	}

	return encodeWAV(first, joined.Bytes()), nil
}
