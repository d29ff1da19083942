package synth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/textnorm"
)

const (
	logFmtChapterStart = "Synthesizing chapter %d (%q): %d words in %d chunks, voice %s"
	logFmtChunkDone    = "Chapter %d: chunk %d/%d synthesized (%d bytes)"
	logFmtChapterDone  = "Chapter %d synthesized: %d bytes, ~%.1f minutes"
)

// Options tune one Orchestrator.
type Options struct {
	// MaxChunkChars bounds a single backend call's text length.
	MaxChunkChars int

	// MinAudioBytes is the smallest plausible chunk output; anything under
	// it is treated as a failed synthesis.
	MinAudioBytes int

	// WordsPerMinute drives the duration estimate.
	WordsPerMinute int

	// Language is passed through to the backend.
	Language string

	// ChunkTimeout bounds each backend call; zero means no per-chunk bound
	// beyond the caller's context.
	ChunkTimeout time.Duration
}

// Orchestrator maps one chapter's text to backend calls and concatenates the
// results into a single WAV stream.
type Orchestrator struct {
	backend  core.SpeechSynthesizer
	selector *Selector
	norm     *textnorm.Normalizer
	log      *logger.Logger
	opts     Options
}

// NewOrchestrator creates an Orchestrator around the given backend and voice
// selector.
func NewOrchestrator(
	backend core.SpeechSynthesizer,
	selector *Selector,
	norm *textnorm.Normalizer,
	log *logger.Logger,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		backend:  backend,
		selector: selector,
		norm:     norm,
		log:      log,
		opts:     opts,
	}
}

// SynthesizeChapter converts one chapter to audio. wordLimit truncates the
// chapter at a sentence-safe point when positive. An error is fatal only for
// this chapter; callers continue with the next one.
func (o *Orchestrator) SynthesizeChapter(
	ctx context.Context,
	chapter core.Chapter,
	voiceID string,
	wordLimit int,
) (core.ChapterAudio, error) {
	text := ApplyWordLimit(chapter.Content, wordLimit)
	text = o.norm.ForSpeech(text)

	if strings.TrimSpace(text) == "" {
		return core.ChapterAudio{}, fmt.Errorf(
			"chapter %d: %w: nothing to speak after preparation",
			chapter.Number, core.ErrEmptyAudio,
		)
	}

	chunks := SplitChunks(text, o.opts.MaxChunkChars)
	voice := o.selector.Resolve(voiceID)
	words := len(strings.Fields(text))

	o.log.Info(logFmtChapterStart, chapter.Number, chapter.Title, words, len(chunks), voice.ID)

	segments := make([][]byte, 0, len(chunks))

	for i, chunk := range chunks {
		audio, err := o.synthesizeChunk(ctx, chunk, voice)
		if err != nil {
			return core.ChapterAudio{}, fmt.Errorf(
				"chapter %d: chunk %d/%d: %w",
				chapter.Number, i+1, len(chunks), err,
			)
		}

		o.log.Info(logFmtChunkDone, chapter.Number, i+1, len(chunks), len(audio))

		segments = append(segments, audio)
	}

	data, err := ConcatenateWAV(segments)
	if err != nil {
		return core.ChapterAudio{}, fmt.Errorf("chapter %d: %w", chapter.Number, err)
	}

	duration := EstimateDurationMinutes(words, o.opts.WordsPerMinute)

	o.log.Info(logFmtChapterDone, chapter.Number, len(data), duration)

	return core.ChapterAudio{
		ChapterNumber:   chapter.Number,
		Title:           chapter.Title,
		Data:            data,
		WordCount:       words,
		DurationMinutes: duration,
		Voice:           voice.ID,
	}, nil
}

func (o *Orchestrator) synthesizeChunk(
	ctx context.Context,
	chunk string,
	voice core.VoiceProfile,
) ([]byte, error) {
	if o.opts.ChunkTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, o.opts.ChunkTimeout)
		defer cancel()
	}

	audio, err := o.backend.Synthesize(ctx, chunk, voice.Speaker, o.opts.Language)
	if err != nil {
		return nil, fmt.Errorf("backend synthesis: %w", err)
	}

	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: backend returned no data", core.ErrEmptyAudio)
	}

	if len(audio) < o.opts.MinAudioBytes {
		return nil, fmt.Errorf("%w: %d bytes is under the %d byte floor",
			core.ErrAudioTooSmall, len(audio), o.opts.MinAudioBytes)
	}

	return audio, nil
}

// EstimateDurationMinutes estimates narration length from a word count at the
// configured reading speed.
func EstimateDurationMinutes(words, wordsPerMinute int) float64 {
	if wordsPerMinute <= 0 {
		return 0
	}

	return float64(words) / float64(wordsPerMinute)
}
