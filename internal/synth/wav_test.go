package synth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/synth"
)

var monoParams = synth.WAVParams{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

func TestConcatenateWAVJoinsSamples(t *testing.T) {
	t.Parallel()

	first := synth.EncodeWAV(monoParams, []byte{1, 2, 3, 4})
	second := synth.EncodeWAV(monoParams, []byte{5, 6, 7, 8})

	joined, err := synth.ConcatenateWAV([][]byte{first, second})
	require.NoError(t, err)

	expected := synth.EncodeWAV(monoParams, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, expected, joined)
}

func TestConcatenateWAVSingleSegment(t *testing.T) {
	t.Parallel()

	segment := synth.EncodeWAV(monoParams, []byte{9, 9, 8, 8})

	joined, err := synth.ConcatenateWAV([][]byte{segment})
	require.NoError(t, err)
	assert.Equal(t, segment, joined)
}

func TestConcatenateWAVParameterMismatch(t *testing.T) {
	t.Parallel()

	stereo := synth.WAVParams{SampleRate: 24000, Channels: 2, BitsPerSample: 16}

	first := synth.EncodeWAV(monoParams, []byte{1, 2})
	second := synth.EncodeWAV(stereo, []byte{3, 4, 5, 6})

	_, err := synth.ConcatenateWAV([][]byte{first, second})
	require.ErrorIs(t, err, core.ErrParamsMismatch)
}

func TestConcatenateWAVRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := synth.ConcatenateWAV([][]byte{[]byte("not a wav file at all")})
	require.ErrorIs(t, err, core.ErrEmptyAudio)
}

func TestConcatenateWAVNoSegments(t *testing.T) {
	t.Parallel()

	_, err := synth.ConcatenateWAV(nil)
	require.ErrorIs(t, err, core.ErrEmptyAudio)
}

func TestEstimateDurationMinutes(t *testing.T) {
	t.Parallel()

	assert.InEpsilon(t, 2.0, synth.EstimateDurationMinutes(330, 165), 0.001)
	assert.InDelta(t, 0.0, synth.EstimateDurationMinutes(0, 165), 0.001)
	assert.InDelta(t, 0.0, synth.EstimateDurationMinutes(100, 0), 0.001)
}
