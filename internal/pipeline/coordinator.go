// Package pipeline sequences extraction, segmentation, and synthesis into one
// conversion job and aggregates the results into a manifest.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/extract"
	"github.com/book-expert/audiobook-service/internal/fileutil"
	"github.com/book-expert/audiobook-service/internal/segment"
	"github.com/book-expert/audiobook-service/internal/synth"
)

// Progress percentages for the fixed phases; synthesis spreads across the
// remaining span up to 100.
const (
	progressExtracting  = 5
	progressSegmenting  = 15
	progressSerializing = 20
	progressSynthStart  = 20
	progressSynthEnd    = 95
	progressDone        = 100
)

const (
	phaseExtracting  = "extracting text"
	phaseSegmenting  = "detecting chapters"
	phaseSerializing = "writing chapter text"
	phaseCompleted   = "completed"
	phaseFailed      = "failed"

	filePermissions = 0o600

	secondsPerMinute = 60
)

const (
	logFmtJobStart       = "Job %s: converting %s (%s)"
	logFmtChapterFailed  = "Job %s: chapter %d (%q) failed, continuing: %v"
	logFmtChapterWritten = "Job %s: chapter %d audio written to %s (%s)"
	logFmtJobDone        = "Job %s: %d/%d chapters converted, ~%s of audio"
)

// Job describes one conversion request.
type Job struct {
	ID         string
	SourcePath string

	// Format is the declared source format; empty means sniff it.
	Format core.Format

	// Voice is the requested voice ID; empty means the configured default.
	Voice string

	// WordLimit truncates each chapter when positive.
	WordLimit int

	// WorkDir receives transient per-chapter text artifacts.
	WorkDir string

	// OutputDir receives the per-chapter audio files and is preserved even
	// when the job fails after partial success.
	OutputDir string
}

// Coordinator runs conversion jobs.
type Coordinator struct {
	extractor    *extract.Extractor
	segmenter    *segment.Segmenter
	orchestrator *synth.Orchestrator
	log          *logger.Logger
}

// New creates a Coordinator from the three pipeline stages.
func New(
	extractor *extract.Extractor,
	segmenter *segment.Segmenter,
	orchestrator *synth.Orchestrator,
	log *logger.Logger,
) *Coordinator {
	return &Coordinator{
		extractor:    extractor,
		segmenter:    segmenter,
		orchestrator: orchestrator,
		log:          log,
	}
}

// Run executes one conversion job. Extraction and segmentation failures are
// fatal; a chapter synthesis failure only omits that chapter. The job fails
// when zero chapters synthesize. On fatal failure, transient artifacts are
// removed but audio from already-successful chapters is preserved.
func (c *Coordinator) Run(ctx context.Context, job Job, progress core.ProgressSink) (*core.Manifest, error) {
	manifest, err := c.run(ctx, job, progress)
	if err != nil {
		c.cleanupTransient(job)
		report(progress, core.StatusFailed, progressDone, phaseFailed)

		return manifest, err
	}

	c.cleanupTransient(job)
	report(progress, core.StatusCompleted, progressDone, phaseCompleted)

	return manifest, nil
}

func (c *Coordinator) run(ctx context.Context, job Job, progress core.ProgressSink) (*core.Manifest, error) {
	chapters, title, err := c.prepareChapters(job, progress)
	if err != nil {
		return nil, err
	}

	manifest := &core.Manifest{
		JobID:              job.ID,
		BookTitle:          title,
		TotalChaptersFound: len(chapters),
	}

	err = c.synthesizeAll(ctx, job, chapters, manifest, progress)
	if err != nil {
		return manifest, err
	}

	if manifest.ChaptersConverted == 0 {
		return manifest, fmt.Errorf(
			"job %s: %w: none of %d chapters synthesized",
			job.ID, core.ErrEmptyAudio, len(chapters),
		)
	}

	totalSeconds := manifest.TotalDurationMinutes * secondsPerMinute
	c.log.Info(logFmtJobDone, job.ID,
		manifest.ChaptersConverted, manifest.TotalChaptersFound,
		fileutil.FormatDuration(totalSeconds))

	return manifest, nil
}

// prepareChapters runs the fatal-on-error phases: extraction, segmentation,
// and chapter text serialization.
func (c *Coordinator) prepareChapters(job Job, progress core.ProgressSink) ([]core.Chapter, string, error) {
	report(progress, core.StatusProcessing, progressExtracting, phaseExtracting)

	format := job.Format
	if format == "" {
		detected, err := c.extractor.DetectFormat(job.SourcePath)
		if err != nil {
			return nil, "", fmt.Errorf("job %s: %w", job.ID, err)
		}

		format = detected
	}

	c.log.Info(logFmtJobStart, job.ID, job.SourcePath, format)

	extraction, err := c.extractor.Extract(core.RawDocument{Path: job.SourcePath, Format: format})
	if err != nil {
		return nil, "", fmt.Errorf("job %s: extraction: %w", job.ID, err)
	}

	report(progress, core.StatusProcessing, progressSegmenting, phaseSegmenting)

	chapters, err := c.segmenter.Segment(extraction)
	if err != nil {
		return nil, "", fmt.Errorf("job %s: segmentation: %w", job.ID, err)
	}

	report(progress, core.StatusProcessing, progressSerializing, phaseSerializing)

	err = c.serializeChapters(job, chapters)
	if err != nil {
		return nil, "", fmt.Errorf("job %s: %w", job.ID, err)
	}

	return chapters, extraction.Title, nil
}

// serializeChapters writes one transient text artifact per chapter to the
// job's work directory.
func (c *Coordinator) serializeChapters(job Job, chapters []core.Chapter) error {
	dir := c.transientDir(job)

	err := fileutil.EnsureDir(dir)
	if err != nil {
		return err
	}

	for _, chapter := range chapters {
		path := filepath.Join(dir, fileutil.ChapterTextFilename(chapter.Number, chapter.Title))

		err = os.WriteFile(path, []byte(chapter.Content), filePermissions)
		if err != nil {
			return fmt.Errorf("write chapter %d text: %w", chapter.Number, err)
		}
	}

	return nil
}

// synthesizeAll runs the per-chapter loop. Cancellation is honored between
// chapters; an individual chapter's failure is logged and skipped.
func (c *Coordinator) synthesizeAll(
	ctx context.Context,
	job Job,
	chapters []core.Chapter,
	manifest *core.Manifest,
	progress core.ProgressSink,
) error {
	err := fileutil.EnsureDir(job.OutputDir)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}

	span := progressSynthEnd - progressSynthStart

	for i, chapter := range chapters {
		err = ctx.Err()
		if err != nil {
			return fmt.Errorf("job %s: canceled before chapter %d: %w", job.ID, chapter.Number, err)
		}

		percent := progressSynthStart + span*i/len(chapters)
		report(progress, core.StatusProcessing, percent,
			fmt.Sprintf("synthesizing chapter %d of %d", chapter.Number, len(chapters)))

		audio, synthErr := c.orchestrator.SynthesizeChapter(ctx, chapter, job.Voice, job.WordLimit)
		if synthErr != nil {
			c.log.Error(logFmtChapterFailed, job.ID, chapter.Number, chapter.Title, synthErr)

			continue
		}

		entry, writeErr := c.writeChapterAudio(job, audio)
		if writeErr != nil {
			c.log.Error(logFmtChapterFailed, job.ID, chapter.Number, chapter.Title, writeErr)

			continue
		}

		manifest.Chapters = append(manifest.Chapters, entry)
		manifest.ChaptersConverted++
		manifest.TotalWords += entry.WordCount
		manifest.TotalDurationMinutes += entry.DurationMinutes
		manifest.TotalSizeBytes += entry.SizeBytes
	}

	return nil
}

func (c *Coordinator) writeChapterAudio(job Job, audio core.ChapterAudio) (core.ManifestChapter, error) {
	path := filepath.Join(job.OutputDir, fileutil.ChapterAudioFilename(audio.ChapterNumber))

	err := os.WriteFile(path, audio.Data, filePermissions)
	if err != nil {
		return core.ManifestChapter{}, fmt.Errorf("write chapter %d audio: %w", audio.ChapterNumber, err)
	}

	c.log.Info(logFmtChapterWritten, job.ID, audio.ChapterNumber, path,
		fileutil.FormatFileSize(int64(len(audio.Data))))

	return core.ManifestChapter{
		Number:          audio.ChapterNumber,
		Title:           audio.Title,
		AudioPath:       path,
		WordCount:       audio.WordCount,
		DurationMinutes: audio.DurationMinutes,
		SizeBytes:       int64(len(audio.Data)),
		Voice:           audio.Voice,
	}, nil
}

// transientDir is where per-job chapter text artifacts live; removed when the
// job ends whatever the outcome.
func (c *Coordinator) transientDir(job Job) string {
	return filepath.Join(job.WorkDir, job.ID)
}

func (c *Coordinator) cleanupTransient(job Job) {
	if job.WorkDir == "" {
		return
	}

	err := os.RemoveAll(c.transientDir(job))
	if err != nil {
		c.log.Warn("Job %s: failed to remove transient dir: %v", job.ID, err)
	}
}

func report(progress core.ProgressSink, status core.JobStatus, percent int, phase string) {
	if progress == nil {
		return
	}

	progress.Update(core.ProgressUpdate{
		Status:  status,
		Percent: percent,
		Phase:   phase,
	})
}
