// Package worker_test tests the NATS worker for the audiobook-service.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/pipeline"
	"github.com/book-expert/audiobook-service/internal/worker"
)

var (
	errMockDownload = errors.New("mock download error")
	errMockConvert  = errors.New("mock convert error")
)

// mockObjectStore is a mock implementation of the ObjectStore interface.
type mockObjectStore struct {
	downloadShouldFail bool
	downloadedKey      string
	uploaded           map[string][]byte
	deletedKeys        []string
}

func newMockObjectStore() *mockObjectStore {
	return &mockObjectStore{uploaded: make(map[string][]byte)}
}

func (m *mockObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	if m.downloadShouldFail {
		return nil, errMockDownload
	}

	m.downloadedKey = key

	return []byte("Chapter 1\nSome book text."), nil
}

func (m *mockObjectStore) Upload(_ context.Context, key string, data []byte) error {
	m.uploaded[key] = data

	return nil
}

func (m *mockObjectStore) Delete(_ context.Context, key string) error {
	m.deletedKeys = append(m.deletedKeys, key)

	return nil
}

// mockConverter is a mock implementation of the Converter interface. It
// writes one fake audio file so the upload step has something to read.
type mockConverter struct {
	convertShouldFail bool
	gotJob            pipeline.Job
}

func (m *mockConverter) Run(
	_ context.Context,
	job pipeline.Job,
	progress core.ProgressSink,
) (*core.Manifest, error) {
	m.gotJob = job

	if m.convertShouldFail {
		return nil, errMockConvert
	}

	if progress != nil {
		progress.Update(core.ProgressUpdate{
			Status:  core.StatusCompleted,
			Percent: 100,
			Phase:   "completed",
		})
	}

	err := os.MkdirAll(job.OutputDir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("mock converter mkdir: %w", err)
	}

	audioPath := filepath.Join(job.OutputDir, "chapter_01.wav")

	err = os.WriteFile(audioPath, []byte("sample audio"), 0o600)
	if err != nil {
		return nil, fmt.Errorf("mock converter write: %w", err)
	}

	return &core.Manifest{
		JobID: job.ID,
		Chapters: []core.ManifestChapter{
			{Number: 1, Title: "Chapter 1", AudioPath: audioPath, WordCount: 4},
		},
		TotalChaptersFound: 1,
		ChaptersConverted:  1,
		TotalWords:         4,
	}, nil
}

func createTestNatsClient(t *testing.T) (*nats.Conn, func()) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	cleanup := func() {
		server.Shutdown()
		natsConnection.Close()
	}

	return natsConnection, cleanup
}

func setupTest(t *testing.T) (
	*worker.NatsWorker,
	*mockObjectStore,
	*mockObjectStore,
	*mockConverter,
	context.Context,
	context.CancelFunc,
	*nats.Conn,
) {
	t.Helper()

	sourceStore := newMockObjectStore()
	audioStore := newMockObjectStore()
	converter := &mockConverter{}

	natsConnection, natsCleanup := createTestNatsClient(t)
	t.Cleanup(natsCleanup)

	testLogger, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	workerInstance, err := worker.NewNatsWorker(
		natsConnection,
		"test_subject",
		"test_subject.progress",
		sourceStore,
		audioStore,
		converter,
		t.TempDir(),
		testLogger,
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	return workerInstance, sourceStore, audioStore, converter, ctx, cancel, natsConnection
}

func requestEvent(t *testing.T, natsConnection *nats.Conn, event *worker.ConversionRequestedEvent) *nats.Msg {
	t.Helper()

	// The worker subscribes from a goroutine; until its SUB reaches the
	// server, a request gets an immediate "no responders" error.
	require.Eventually(t, func() bool {
		return natsConnection.NumSubscriptions() > 0
	}, 5*time.Second, 5*time.Millisecond, "worker subscription should be registered")
	require.NoError(t, natsConnection.Flush())

	eventData, err := json.Marshal(event)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request("test_subject", eventData, 10*time.Second)
	require.NoError(t, err, "Request should succeed and receive a reply")

	return replyMsg
}

func TestMessageHandler_Success(t *testing.T) {
	t.Parallel()

	workerInstance, sourceStore, audioStore, converter, ctx, cancel, natsConnection := setupTest(t)
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	testEvent := &worker.ConversionRequestedEvent{
		Header: worker.EventHeader{
			WorkflowID: uuid.NewString(),
			JobID:      "job-42",
			Timestamp:  time.Now(),
		},
		SourceKey: "uploads/book.txt",
		FileName:  "book.txt",
		Voice:     "female_narrator",
	}

	replyMsg := requestEvent(t, natsConnection, testEvent)

	var replyEvent worker.ConversionCompletedEvent

	err := json.Unmarshal(replyMsg.Data, &replyEvent)
	require.NoError(t, err)

	assert.True(t, replyEvent.Success)
	assert.Equal(t, testEvent.Header.WorkflowID, replyEvent.Header.WorkflowID)
	require.Len(t, replyEvent.AudioKeys, 1)
	assert.Equal(t, "job-42/chapter_01.wav", replyEvent.AudioKeys[0])
	require.NotNil(t, replyEvent.Manifest)
	assert.Equal(t, 1, replyEvent.Manifest.ChaptersConverted)

	assert.Equal(t, "uploads/book.txt", sourceStore.downloadedKey)
	assert.Equal(t, []byte("sample audio"), audioStore.uploaded["job-42/chapter_01.wav"])

	// The source object is removed once the job is over.
	assert.Contains(t, sourceStore.deletedKeys, "uploads/book.txt")

	// The converter saw the requested voice and a job-scoped output dir.
	assert.Equal(t, "female_narrator", converter.gotJob.Voice)
	assert.Contains(t, converter.gotJob.OutputDir, "job-42")

	cancel()

	shutdownErr := <-errChan
	assert.NoError(t, shutdownErr, "worker.Run should not error on graceful shutdown")
}

func TestMessageHandler_ConversionFailure(t *testing.T) {
	t.Parallel()

	workerInstance, sourceStore, _, converter, ctx, cancel, natsConnection := setupTest(t)
	defer cancel()

	converter.convertShouldFail = true

	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	testEvent := &worker.ConversionRequestedEvent{
		Header:    worker.EventHeader{WorkflowID: uuid.NewString(), JobID: "job-9"},
		SourceKey: "uploads/broken.txt",
		FileName:  "broken.txt",
	}

	replyMsg := requestEvent(t, natsConnection, testEvent)

	var replyEvent worker.ConversionCompletedEvent

	err := json.Unmarshal(replyMsg.Data, &replyEvent)
	require.NoError(t, err)

	assert.False(t, replyEvent.Success)
	assert.Contains(t, replyEvent.Error, "mock convert error")
	assert.Empty(t, replyEvent.AudioKeys)

	// The source object is removed even when the job fails.
	assert.Contains(t, sourceStore.deletedKeys, "uploads/broken.txt")

	cancel()

	shutdownErr := <-errChan
	assert.NoError(t, shutdownErr)
}

func TestMessageHandler_RejectsEmptySourceKey(t *testing.T) {
	t.Parallel()

	workerInstance, sourceStore, _, _, ctx, cancel, natsConnection := setupTest(t)
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	eventData, err := json.Marshal(&worker.ConversionRequestedEvent{
		Header:   worker.EventHeader{JobID: "job-x"},
		FileName: "book.txt",
	})
	require.NoError(t, err)

	// No reply is sent for an invalid event.
	_, err = natsConnection.Request("test_subject", eventData, 500*time.Millisecond)
	require.Error(t, err)

	assert.Empty(t, sourceStore.downloadedKey)

	cancel()

	shutdownErr := <-errChan
	assert.NoError(t, shutdownErr)
}

func TestMessageHandler_AssignsJobID(t *testing.T) {
	t.Parallel()

	workerInstance, _, _, converter, ctx, cancel, natsConnection := setupTest(t)
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	testEvent := &worker.ConversionRequestedEvent{
		Header:    worker.EventHeader{WorkflowID: uuid.NewString()},
		SourceKey: "uploads/anon.txt",
		FileName:  "anon.txt",
	}

	replyMsg := requestEvent(t, natsConnection, testEvent)

	var replyEvent worker.ConversionCompletedEvent

	err := json.Unmarshal(replyMsg.Data, &replyEvent)
	require.NoError(t, err)

	assert.NotEmpty(t, replyEvent.Header.JobID)
	assert.Equal(t, replyEvent.Header.JobID, converter.gotJob.ID)

	cancel()

	shutdownErr := <-errChan
	assert.NoError(t, shutdownErr)
}
