package synth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/audiobook-service/internal/synth"
)

const testMaxChunkChars = 500

func TestSplitChunksShortTextSingleChunk(t *testing.T) {
	t.Parallel()

	chunks := synth.SplitChunks("A short sentence.", testMaxChunkChars)

	require.Len(t, chunks, 1)
	assert.Equal(t, "A short sentence.", chunks[0])
}

func TestSplitChunksRespectsSentenceBoundaries(t *testing.T) {
	t.Parallel()

	first := strings.Repeat("alpha ", 50) + "end one."
	second := strings.Repeat("beta ", 50) + "end two."
	text := first + " " + second

	chunks := synth.SplitChunks(text, testMaxChunkChars)

	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0], "end one."))
	assert.True(t, strings.HasSuffix(chunks[1], "end two."))
}

func TestSplitChunksBoundsEveryChunk(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	for range 100 {
		sb.WriteString("The fox ran over the hill and far away. ")
	}

	chunks := synth.SplitChunks(sb.String(), testMaxChunkChars)

	require.NotEmpty(t, chunks)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), testMaxChunkChars)
	}
}

func TestSplitChunksReassemblesToInput(t *testing.T) {
	t.Parallel()

	text := "One. Two! Three? Four; five. " + strings.Repeat("filler words here. ", 60)
	normalized := strings.Join(strings.Fields(text), " ")

	chunks := synth.SplitChunks(text, testMaxChunkChars)

	assert.Equal(t, normalized, strings.Join(chunks, " "))
}

func TestSplitChunksLongSentenceFallsBackToWords(t *testing.T) {
	t.Parallel()

	// One sentence with no terminators until the very end.
	sentence := strings.Repeat("unbroken ", 100) + "finally."

	chunks := synth.SplitChunks(sentence, 100)

	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100)
	}

	assert.Equal(t,
		strings.Join(strings.Fields(sentence), " "),
		strings.Join(chunks, " "))
}

func TestSplitChunksEmptyInput(t *testing.T) {
	t.Parallel()

	assert.Nil(t, synth.SplitChunks("   ", testMaxChunkChars))
}

func TestApplyWordLimitUnderLimitUnchanged(t *testing.T) {
	t.Parallel()

	text := "Only a few words here."
	assert.Equal(t, text, synth.ApplyWordLimit(text, 100))
	assert.Equal(t, text, synth.ApplyWordLimit(text, 0))
}

func TestApplyWordLimitCutsAtSentenceTerminator(t *testing.T) {
	t.Parallel()

	// 10 lead-in words ending in a period, then trailing words with no
	// terminator; the cut must land on the period.
	text := "one two three four five six seven eight nine ten."
	text += " " + strings.Repeat("tail ", 20)

	got := synth.ApplyWordLimit(text, 12)

	assert.True(t, strings.HasSuffix(got, "."), "got %q", got)
	assert.LessOrEqual(t, len(strings.Fields(got)), 12)
}

func TestApplyWordLimitFallsBackToWordBoundary(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("word ", 50)

	got := synth.ApplyWordLimit(text, 10)

	assert.Len(t, strings.Fields(got), 10)
	assert.False(t, strings.HasSuffix(got, " "))
}

func TestApplyWordLimitDeterministic(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("alpha beta. gamma delta ", 30)

	first := synth.ApplyWordLimit(text, 25)
	second := synth.ApplyWordLimit(text, 25)

	assert.Equal(t, first, second)
}
