// Command audiobook-cli converts an eBook into per-chapter audio locally,
// without going through the NATS worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/book-expert/audiobook-service/internal/config"
	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/extract"
	"github.com/book-expert/audiobook-service/internal/fileutil"
	"github.com/book-expert/audiobook-service/internal/pipeline"
	"github.com/book-expert/audiobook-service/internal/segment"
	"github.com/book-expert/audiobook-service/internal/synth"
	"github.com/book-expert/audiobook-service/internal/textnorm"
)

const (
	defaultBackendURL = "http://localhost:8000"
	voiceQueryTimeout = 15 * time.Second

	secondsPerMinute = 60
)

type cliOptions struct {
	configPath string
	backendURL string
	outputDir  string
	voice      string
	wordLimit  int
	format     string
}

func main() {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "audiobook-cli",
		Short:         "Convert eBooks into chaptered audiobooks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.backendURL, "backend-url", "", "speech synthesis backend URL")

	convertCmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert a PDF, EPUB, or TXT file into per-chapter WAV audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), opts, args[0])
		},
	}
	convertCmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "output directory (default: <input>_audio)")
	convertCmd.Flags().StringVar(&opts.voice, "voice", "", "voice ID or category")
	convertCmd.Flags().IntVar(&opts.wordLimit, "word-limit", 0, "truncate each chapter to at most this many words")
	convertCmd.Flags().StringVar(&opts.format, "format", "", "source format (pdf, epub, txt); default: detect")

	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "List the available synthesis voices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVoices(cmd.Context(), opts)
		},
	}

	rootCmd.AddCommand(convertCmd, voicesCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the optional TOML file and applies flag overrides and
// defaults.
func loadConfig(opts *cliOptions) (*config.Config, error) {
	var cfg config.Config

	if opts.configPath != "" {
		data, err := os.ReadFile(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}

		err = toml.Unmarshal(data, &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file: %w", err)
		}
	}

	cfg.Normalize()

	if opts.backendURL != "" {
		cfg.Synthesis.BackendURL = opts.backendURL
	}

	if cfg.Synthesis.BackendURL == "" {
		cfg.Synthesis.BackendURL = defaultBackendURL
	}

	return &cfg, nil
}

func buildBackend(cfg *config.Config) *synth.HTTPBackend {
	return synth.NewHTTPBackend(
		cfg.Synthesis.BackendURL,
		time.Duration(cfg.Synthesis.TimeoutSeconds)*time.Second,
	)
}

func loadCatalog(
	ctx context.Context,
	cfg *config.Config,
	backend *synth.HTTPBackend,
) ([]core.VoiceProfile, error) {
	if len(cfg.Voices.Profiles) > 0 {
		return cfg.Voices.Profiles, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, voiceQueryTimeout)
	defer cancel()

	catalog, err := backend.ListVoices(queryCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to query voices from %s: %w", cfg.Synthesis.BackendURL, err)
	}

	return catalog, nil
}

func runConvert(ctx context.Context, opts *cliOptions, inputPath string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	outputDir := opts.outputDir
	if outputDir == "" {
		base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
		outputDir = base + "_audio"
	}

	var format core.Format
	if opts.format != "" {
		format, err = core.ParseFormat(opts.format)
		if err != nil {
			return err
		}
	}

	log, err := logger.New(os.TempDir(), "audiobook-cli.log")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	backend := buildBackend(cfg)

	catalog, err := loadCatalog(ctx, cfg, backend)
	if err != nil {
		return err
	}

	selector, err := synth.NewSelector(catalog, cfg.Voices.Default, cfg.Voices.Aliases)
	if err != nil {
		return err
	}

	norm := textnorm.New()
	orchestrator := synth.NewOrchestrator(backend, selector, norm, log, synth.Options{
		MaxChunkChars:  cfg.Synthesis.MaxChunkChars,
		MinAudioBytes:  cfg.Synthesis.MinAudioBytes,
		WordsPerMinute: cfg.Synthesis.WordsPerMinute,
		Language:       cfg.Synthesis.Language,
		ChunkTimeout:   time.Duration(cfg.Synthesis.TimeoutSeconds) * time.Second,
	})

	coordinator := pipeline.New(
		extract.New(log, cfg.Extraction.MaxFileSizeMB),
		segment.New(log, norm, cfg.Segmentation.MinChapterWords, cfg.Segmentation.FrontMatterWordCeiling),
		orchestrator,
		log,
	)

	job := pipeline.Job{
		ID:         uuid.New().String(),
		SourcePath: inputPath,
		Format:     format,
		Voice:      opts.voice,
		WordLimit:  opts.wordLimit,
		WorkDir:    filepath.Join(os.TempDir(), "audiobook-cli"),
		OutputDir:  outputDir,
	}

	fmt.Printf("Converting %s\n", inputPath)

	progress := core.ProgressFunc(func(update core.ProgressUpdate) {
		fmt.Printf("  [%3d%%] %s\n", update.Percent, update.Phase)
	})

	manifest, err := coordinator.Run(ctx, job, progress)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	printManifest(manifest, outputDir)

	return nil
}

func printManifest(manifest *core.Manifest, outputDir string) {
	fmt.Printf("\nConverted %d/%d chapters into %s\n",
		manifest.ChaptersConverted, manifest.TotalChaptersFound, outputDir)

	if manifest.BookTitle != "" {
		fmt.Printf("Title: %s\n", manifest.BookTitle)
	}

	for _, chapter := range manifest.Chapters {
		fmt.Printf("  %2d. %-40s %8s  ~%s\n",
			chapter.Number,
			chapter.Title,
			fileutil.FormatFileSize(chapter.SizeBytes),
			fileutil.FormatDuration(chapter.DurationMinutes*secondsPerMinute),
		)
	}

	fmt.Printf("Total: %d words, %s, ~%s of audio\n",
		manifest.TotalWords,
		fileutil.FormatFileSize(manifest.TotalSizeBytes),
		fileutil.FormatDuration(manifest.TotalDurationMinutes*secondsPerMinute),
	)
}

func runVoices(ctx context.Context, opts *cliOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	backend := buildBackend(cfg)

	catalog, err := loadCatalog(ctx, cfg, backend)
	if err != nil {
		return err
	}

	fmt.Printf("Available voices (%d):\n", len(catalog))

	for _, voice := range catalog {
		marker := "  "
		if voice.ID == cfg.Voices.Default {
			marker = "* "
		}

		fmt.Printf("%s%-20s %-12s %-10s %s\n",
			marker, voice.ID, voice.Category, voice.Gender, voice.Description)
	}

	return nil
}
