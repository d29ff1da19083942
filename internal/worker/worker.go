// Package worker provides a NATS worker that processes audiobook conversion
// jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/fileutil"
	"github.com/book-expert/audiobook-service/internal/pipeline"
)

// A single message converts a whole book, chapter by chapter.
const handleMessageTimeout = 45 * time.Minute

const sourceFilePermissions = 0o600

var (
	// ErrSourceKeyEmpty indicates the event did not name a source object.
	ErrSourceKeyEmpty = errors.New("source key cannot be empty")
	// ErrFileNameEmpty indicates the event did not carry the upload's name.
	ErrFileNameEmpty = errors.New("file name cannot be empty")
)

// Converter runs one conversion job; satisfied by pipeline.Coordinator.
type Converter interface {
	Run(ctx context.Context, job pipeline.Job, progress core.ProgressSink) (*core.Manifest, error)
}

// NatsWorker listens for conversion requests on a NATS subject and processes
// them.
type NatsWorker struct {
	natsConnection  *nats.Conn
	subject         string
	progressSubject string
	sourceStore     core.ObjectStore
	audioStore      core.ObjectStore
	converter       Converter
	workDir         string
	log             *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	progressSubject string,
	sourceStore core.ObjectStore,
	audioStore core.ObjectStore,
	converter Converter,
	workDir string,
	log *logger.Logger,
) (*NatsWorker, error) {
	return &NatsWorker{
		natsConnection:  natsConnection,
		subject:         subject,
		progressSubject: progressSubject,
		sourceStore:     sourceStore,
		audioStore:      audioStore,
		converter:       converter,
		workDir:         workDir,
		log:             log,
	}, nil
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	manifest, audioKeys, jobErr := w.processConversionJob(ctx, event)

	reply := &ConversionCompletedEvent{
		Header:    event.Header,
		Success:   jobErr == nil,
		AudioKeys: audioKeys,
		Manifest:  manifest,
	}

	if jobErr != nil {
		w.log.Error("Failed to process conversion job %s: %v", event.Header.JobID, jobErr)

		reply.Error = jobErr.Error()
	}

	err = w.publishReplyEvent(msg, reply)
	if err != nil {
		w.log.Error("Failed to publish reply event for job %s: %v", event.Header.JobID, err)
	}
}

// processConversionJob downloads the source book, runs the pipeline, and
// uploads the per-chapter audio. The source object is removed afterwards in
// every outcome; successfully uploaded audio survives a later failure.
func (w *NatsWorker) processConversionJob(
	ctx context.Context,
	event *ConversionRequestedEvent,
) (*core.Manifest, []string, error) {
	sourcePath, err := w.fetchSource(ctx, event)
	if err != nil {
		return nil, nil, err
	}

	defer w.discardSource(ctx, event, sourcePath)

	jobID := event.Header.JobID

	job := pipeline.Job{
		ID:         jobID,
		SourcePath: sourcePath,
		Format:     "",
		Voice:      event.Voice,
		WordLimit:  event.WordLimit,
		WorkDir:    filepath.Join(w.workDir, "text"),
		OutputDir:  filepath.Join(w.workDir, "audio", jobID),
	}

	manifest, runErr := w.converter.Run(ctx, job, w.progressSink(event.Header))
	if runErr != nil {
		return manifest, nil, fmt.Errorf("conversion failed: %w", runErr)
	}

	audioKeys, uploadErr := w.uploadChapterAudio(ctx, jobID, manifest)
	if uploadErr != nil {
		return manifest, audioKeys, uploadErr
	}

	return manifest, audioKeys, nil
}

// fetchSource materializes the uploaded book on disk, keeping the original
// extension so format detection can use it.
func (w *NatsWorker) fetchSource(ctx context.Context, event *ConversionRequestedEvent) (string, error) {
	data, err := w.sourceStore.Download(ctx, event.SourceKey)
	if err != nil {
		return "", fmt.Errorf("failed to download source for key '%s': %w", event.SourceKey, err)
	}

	dir := filepath.Join(w.workDir, "sources")

	err = fileutil.EnsureDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to prepare source directory: %w", err)
	}

	name := event.Header.JobID + "_" + fileutil.SanitizeFilename(event.FileName)
	sourcePath := filepath.Join(dir, name)

	err = os.WriteFile(sourcePath, data, sourceFilePermissions)
	if err != nil {
		return "", fmt.Errorf("failed to write source file: %w", err)
	}

	return sourcePath, nil
}

// discardSource removes the job's local source copy and its object store
// entry once the job is over.
func (w *NatsWorker) discardSource(ctx context.Context, event *ConversionRequestedEvent, sourcePath string) {
	err := os.Remove(sourcePath)
	if err != nil {
		w.log.Warn("Job %s: failed to remove local source copy: %v", event.Header.JobID, err)
	}

	err = w.sourceStore.Delete(ctx, event.SourceKey)
	if err != nil {
		w.log.Warn("Job %s: failed to delete source object '%s': %v",
			event.Header.JobID, event.SourceKey, err)
	}
}

// uploadChapterAudio pushes every synthesized chapter file to the audio
// bucket under <jobID>/chapter_NN.wav.
func (w *NatsWorker) uploadChapterAudio(
	ctx context.Context,
	jobID string,
	manifest *core.Manifest,
) ([]string, error) {
	audioKeys := make([]string, 0, len(manifest.Chapters))

	for _, chapter := range manifest.Chapters {
		data, err := os.ReadFile(chapter.AudioPath)
		if err != nil {
			return audioKeys, fmt.Errorf("failed to read chapter %d audio: %w", chapter.Number, err)
		}

		key := path.Join(jobID, fileutil.ChapterAudioFilename(chapter.Number))

		err = w.audioStore.Upload(ctx, key, data)
		if err != nil {
			return audioKeys, fmt.Errorf("failed to upload audio for key '%s': %w", key, err)
		}

		audioKeys = append(audioKeys, key)
	}

	return audioKeys, nil
}

// progressSink publishes progress updates to the progress subject. Publish
// failures are logged, not fatal: progress is advisory.
func (w *NatsWorker) progressSink(header EventHeader) core.ProgressSink {
	if w.progressSubject == "" {
		return nil
	}

	return core.ProgressFunc(func(update core.ProgressUpdate) {
		event := ConversionProgressEvent{
			Header:  header,
			Status:  update.Status,
			Percent: update.Percent,
			Phase:   update.Phase,
		}

		data, err := json.Marshal(event)
		if err != nil {
			w.log.Error("Failed to marshal progress event for job %s: %v", header.JobID, err)

			return
		}

		err = w.natsConnection.Publish(w.progressSubject, data)
		if err != nil {
			w.log.Error("Failed to publish progress for job %s: %v", header.JobID, err)
		}
	})
}

func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *ConversionCompletedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*ConversionRequestedEvent, error) {
	var event ConversionRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.SourceKey == "" {
		return nil, ErrSourceKeyEmpty
	}

	if event.FileName == "" {
		return nil, ErrFileNameEmpty
	}

	if event.Header.JobID == "" {
		event.Header.JobID = uuid.NewString()
	}

	return &event, nil
}
