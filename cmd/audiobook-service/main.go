// main package for the audiobook-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/audiobook-service/internal/config"
	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/extract"
	"github.com/book-expert/audiobook-service/internal/objectstore"
	"github.com/book-expert/audiobook-service/internal/pipeline"
	"github.com/book-expert/audiobook-service/internal/segment"
	"github.com/book-expert/audiobook-service/internal/synth"
	"github.com/book-expert/audiobook-service/internal/textnorm"
	"github.com/book-expert/audiobook-service/internal/worker"
)

const voiceCatalogTimeout = 15 * time.Second

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "audiobook-service-bootstrap.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return runService(cfg, finalLog)
}

func runService(cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	sourceStore, err := objectstore.New(jetstreamContext, cfg.NATS.SourceObjectStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to open source bucket: %w", err)
	}

	audioStore, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to open audio bucket: %w", err)
	}

	coordinator, err := buildPipeline(cfg, log)
	if err != nil {
		return err
	}

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.ConversionRequestedSubject,
		cfg.NATS.ConversionProgressSubject,
		sourceStore,
		audioStore,
		coordinator,
		cfg.Paths.WorkDir,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.System("Audiobook-Service successfully initialized. Listening for jobs on subject: %s",
		cfg.NATS.ConversionRequestedSubject)

	err = natsWorker.Run(ctx)
	if err != nil {
		return fmt.Errorf("worker stopped with error: %w", err)
	}

	return nil
}

// buildPipeline assembles the conversion stages from configuration.
func buildPipeline(cfg *config.Config, log *logger.Logger) (*pipeline.Coordinator, error) {
	norm := textnorm.New()
	backend := synth.NewHTTPBackend(
		cfg.Synthesis.BackendURL,
		time.Duration(cfg.Synthesis.TimeoutSeconds)*time.Second,
	)

	catalog, err := loadVoiceCatalog(cfg, backend, log)
	if err != nil {
		return nil, err
	}

	selector, err := synth.NewSelector(catalog, cfg.Voices.Default, cfg.Voices.Aliases)
	if err != nil {
		return nil, fmt.Errorf("failed to build voice selector: %w", err)
	}

	orchestrator := synth.NewOrchestrator(backend, selector, norm, log, synth.Options{
		MaxChunkChars:  cfg.Synthesis.MaxChunkChars,
		MinAudioBytes:  cfg.Synthesis.MinAudioBytes,
		WordsPerMinute: cfg.Synthesis.WordsPerMinute,
		Language:       cfg.Synthesis.Language,
		ChunkTimeout:   time.Duration(cfg.Synthesis.TimeoutSeconds) * time.Second,
	})

	return pipeline.New(
		extract.New(log, cfg.Extraction.MaxFileSizeMB),
		segment.New(log, norm, cfg.Segmentation.MinChapterWords, cfg.Segmentation.FrontMatterWordCeiling),
		orchestrator,
		log,
	), nil
}

// loadVoiceCatalog prefers the configured profiles and falls back to asking
// the backend for its catalog.
func loadVoiceCatalog(
	cfg *config.Config,
	backend *synth.HTTPBackend,
	log *logger.Logger,
) ([]core.VoiceProfile, error) {
	if len(cfg.Voices.Profiles) > 0 {
		return cfg.Voices.Profiles, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), voiceCatalogTimeout)
	defer cancel()

	log.Info("No voice profiles configured; querying synthesis backend")

	catalog, err := backend.ListVoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load voice catalog from backend: %w", err)
	}

	return catalog, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
