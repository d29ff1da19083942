package pipeline_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/extract"
	"github.com/book-expert/audiobook-service/internal/pipeline"
	"github.com/book-expert/audiobook-service/internal/segment"
	"github.com/book-expert/audiobook-service/internal/synth"
	"github.com/book-expert/audiobook-service/internal/textnorm"
)

var testWAVParams = synth.WAVParams{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

// mockBackend fails any chunk containing failOn (when non-empty) and returns
// a small valid WAV otherwise.
type mockBackend struct {
	failOn string
}

func (m *mockBackend) Synthesize(_ context.Context, text, _, _ string) ([]byte, error) {
	if m.failOn != "" && strings.Contains(text, m.failOn) {
		return nil, fmt.Errorf("simulated backend failure on %q", m.failOn)
	}

	return synth.EncodeWAV(testWAVParams, make([]byte, 64)), nil
}

func (m *mockBackend) ListVoices(_ context.Context) ([]core.VoiceProfile, error) {
	return []core.VoiceProfile{{ID: "female_narrator", Speaker: "af_heart"}}, nil
}

// progressLog records every update for assertions.
type progressLog struct {
	updates []core.ProgressUpdate
}

func (p *progressLog) Update(update core.ProgressUpdate) {
	p.updates = append(p.updates, update)
}

func newTestCoordinator(t *testing.T, backend core.SpeechSynthesizer) *pipeline.Coordinator {
	t.Helper()

	log, err := logger.New(t.TempDir(), "pipeline-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	norm := textnorm.New()

	selector, err := synth.NewSelector(
		[]core.VoiceProfile{{ID: "female_narrator", Speaker: "af_heart"}},
		"female_narrator", nil)
	require.NoError(t, err)

	orchestrator := synth.NewOrchestrator(backend, selector, norm, log, synth.Options{
		MaxChunkChars:  500,
		MinAudioBytes:  50,
		WordsPerMinute: 165,
		Language:       "en",
		ChunkTimeout:   time.Second,
	})

	return pipeline.New(
		extract.New(log, 0),
		segment.New(log, norm, 200, 100),
		orchestrator,
		log,
	)
}

// chapterProse builds 250 words tagged with the chapter number so a mock can
// target one chapter.
func chapterProse(n int) string {
	words := make([]string, 250)
	for i := range words {
		words[i] = fmt.Sprintf("c%dw%d", n, i)
	}

	return strings.Join(words, " ")
}

func writeBook(t *testing.T, chapterCount int) string {
	t.Helper()

	var sb strings.Builder

	for n := 1; n <= chapterCount; n++ {
		fmt.Fprintf(&sb, "Chapter %d\n%s\n\n", n, chapterProse(n))
	}

	path := filepath.Join(t.TempDir(), "book.txt")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o600))

	return path
}

func newJob(t *testing.T, sourcePath string) pipeline.Job {
	t.Helper()

	return pipeline.Job{
		ID:         "job-1",
		SourcePath: sourcePath,
		WorkDir:    filepath.Join(t.TempDir(), "work"),
		OutputDir:  filepath.Join(t.TempDir(), "out"),
	}
}

func TestRunConvertsAllChapters(t *testing.T) {
	t.Parallel()

	coordinator := newTestCoordinator(t, &mockBackend{})
	job := newJob(t, writeBook(t, 3))
	progress := &progressLog{}

	manifest, err := coordinator.Run(context.Background(), job, progress)
	require.NoError(t, err)

	assert.Equal(t, 3, manifest.TotalChaptersFound)
	assert.Equal(t, 3, manifest.ChaptersConverted)
	require.Len(t, manifest.Chapters, 3)

	for i, chapter := range manifest.Chapters {
		assert.Equal(t, i+1, chapter.Number)
		assert.FileExists(t, chapter.AudioPath)
		assert.Positive(t, chapter.DurationMinutes)
	}

	assert.InEpsilon(t, 100.0, manifest.SuccessRate(), 0.001)

	// Final update reports completion at 100%.
	require.NotEmpty(t, progress.updates)
	last := progress.updates[len(progress.updates)-1]
	assert.Equal(t, core.StatusCompleted, last.Status)
	assert.Equal(t, 100, last.Percent)
}

func TestRunPartialFailureSkipsChapter(t *testing.T) {
	t.Parallel()

	// Chapter 3's prose is tagged c3w; fail every chunk containing it.
	coordinator := newTestCoordinator(t, &mockBackend{failOn: "c3w"})
	job := newJob(t, writeBook(t, 5))
	progress := &progressLog{}

	manifest, err := coordinator.Run(context.Background(), job, progress)
	require.NoError(t, err)

	assert.Equal(t, 5, manifest.TotalChaptersFound)
	assert.Equal(t, 4, manifest.ChaptersConverted)
	require.Len(t, manifest.Chapters, 4)

	numbers := make([]int, 0, 4)
	for _, chapter := range manifest.Chapters {
		numbers = append(numbers, chapter.Number)
	}

	assert.Equal(t, []int{1, 2, 4, 5}, numbers)

	last := progress.updates[len(progress.updates)-1]
	assert.Equal(t, core.StatusCompleted, last.Status)
}

func TestRunFailsWhenNoChapterSynthesizes(t *testing.T) {
	t.Parallel()

	coordinator := newTestCoordinator(t, &mockBackend{failOn: "c"})
	job := newJob(t, writeBook(t, 2))
	progress := &progressLog{}

	manifest, err := coordinator.Run(context.Background(), job, progress)
	require.Error(t, err)

	assert.Equal(t, 2, manifest.TotalChaptersFound)
	assert.Equal(t, 0, manifest.ChaptersConverted)

	last := progress.updates[len(progress.updates)-1]
	assert.Equal(t, core.StatusFailed, last.Status)
}

func TestRunExtractionFailureIsFatal(t *testing.T) {
	t.Parallel()

	coordinator := newTestCoordinator(t, &mockBackend{})
	job := newJob(t, filepath.Join(t.TempDir(), "missing.txt"))

	_, err := coordinator.Run(context.Background(), job, nil)
	require.Error(t, err)
}

func TestRunSegmentationFailureIsFatal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "frontmatter.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("Copyright 2020 Example House. All rights reserved."), 0o600))

	coordinator := newTestCoordinator(t, &mockBackend{})
	job := newJob(t, path)

	_, err := coordinator.Run(context.Background(), job, nil)
	require.ErrorIs(t, err, core.ErrNoChapters)
}

func TestRunRemovesTransientArtifacts(t *testing.T) {
	t.Parallel()

	coordinator := newTestCoordinator(t, &mockBackend{})
	job := newJob(t, writeBook(t, 2))

	_, err := coordinator.Run(context.Background(), job, nil)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(job.WorkDir, job.ID))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunPreservesAudioOnCancellation(t *testing.T) {
	t.Parallel()

	coordinator := newTestCoordinator(t, &mockBackend{})
	job := newJob(t, writeBook(t, 3))

	ctx, cancel := context.WithCancel(context.Background())

	// Cancel after the first chapter by hooking the progress sink.
	sink := core.ProgressFunc(func(update core.ProgressUpdate) {
		if strings.Contains(update.Phase, "chapter 2") {
			cancel()
		}
	})

	manifest, err := coordinator.Run(ctx, job, sink)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)

	// Chapter 1 completed before cancellation and its audio survives.
	require.NotNil(t, manifest)
	require.NotEmpty(t, manifest.Chapters)
	assert.FileExists(t, manifest.Chapters[0].AudioPath)
}
