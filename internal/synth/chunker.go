// Package synth turns chapter text into audio through a speech synthesis
// backend: chunking, voice selection, per-chunk synthesis, and WAV
// concatenation.
package synth

import (
	"strings"
)

// Sentence terminators recognized when searching for a safe cut point.
const sentenceTerminators = ".!?;"

// backwardSearchFraction is where the backward terminator search starts when
// applying a word limit: 80% into the truncated text.
const backwardSearchFraction = 0.8

// SplitChunks slices text into chunks of at most maxChars characters, cutting
// only at sentence boundaries. A single sentence longer than maxChars is split
// at word boundaries as a last resort. Concatenating the chunks with spaces
// reproduces the input text modulo whitespace.
func SplitChunks(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string

	var current strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		current.Reset()
	}

	for _, sentence := range splitSentences(text) {
		if len(sentence) > maxChars {
			flush()

			chunks = append(chunks, splitLongSentence(sentence, maxChars)...)

			continue
		}

		// +1 for the joining space.
		if current.Len() > 0 && current.Len()+1+len(sentence) > maxChars {
			flush()
		}

		if current.Len() > 0 {
			current.WriteByte(' ')
		}

		current.WriteString(sentence)
	}

	flush()

	return chunks
}

// splitSentences breaks text after runs of sentence terminators followed by
// whitespace. Newlines are treated as spaces first so paragraph layout does
// not affect chunking.
func splitSentences(text string) []string {
	flat := strings.Join(strings.Fields(text), " ")

	var sentences []string

	start := 0

	for i := 0; i < len(flat); i++ {
		if !strings.ContainsRune(sentenceTerminators, rune(flat[i])) {
			continue
		}

		// Consume the full terminator run, then require a following space.
		end := i
		for end+1 < len(flat) && strings.ContainsRune(sentenceTerminators, rune(flat[end+1])) {
			end++
		}

		if end+1 < len(flat) && flat[end+1] != ' ' {
			i = end

			continue
		}

		sentence := strings.TrimSpace(flat[start : end+1])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}

		i = end + 1
		start = i
	}

	if tail := strings.TrimSpace(flat[start:]); tail != "" {
		sentences = append(sentences, tail)
	}

	return sentences
}

// splitLongSentence cuts an over-long sentence at word boundaries.
func splitLongSentence(sentence string, maxChars int) []string {
	words := strings.Fields(sentence)

	var chunks []string

	var current strings.Builder

	for _, word := range words {
		if current.Len() > 0 && current.Len()+1+len(word) > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}

		if current.Len() > 0 {
			current.WriteByte(' ')
		}

		current.WriteString(word)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// ApplyWordLimit truncates text to its first limit words, then searches
// backward from the 80% mark of the truncated text for the nearest sentence
// terminator and cuts there when one exists, avoiding a mid-sentence stop. A
// non-positive limit leaves the text unchanged.
func ApplyWordLimit(text string, limit int) string {
	if limit <= 0 {
		return text
	}

	words := strings.Fields(text)
	if len(words) <= limit {
		return text
	}

	truncated := strings.Join(words[:limit], " ")

	searchFrom := int(float64(len(truncated)) * backwardSearchFraction)
	if searchFrom >= len(truncated) {
		searchFrom = len(truncated) - 1
	}

	for i := len(truncated) - 1; i >= searchFrom; i-- {
		if strings.ContainsRune(sentenceTerminators, rune(truncated[i])) {
			return truncated[:i+1]
		}
	}

	return truncated
}
