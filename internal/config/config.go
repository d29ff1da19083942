// Package config provides the configuration structure for the audiobook-service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"

	"github.com/book-expert/audiobook-service/internal/core"
)

// Defaults applied by Normalize when a field is unset.
const (
	DefaultMinChapterWords        = 200
	DefaultFrontMatterWordCeiling = 100
	DefaultMaxChunkChars          = 500
	DefaultMinAudioBytes          = 1000
	DefaultWordsPerMinute         = 165
	DefaultSynthesisTimeout       = 120
	DefaultMaxFileSizeMB          = 200
	DefaultLanguage               = "en"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                        string `toml:"url"`
	ConversionStreamName       string `toml:"conversion_stream_name"`
	ConversionConsumerName     string `toml:"conversion_consumer_name"`
	ConversionRequestedSubject string `toml:"conversion_requested_subject"`
	ConversionProgressSubject  string `toml:"conversion_progress_subject"`
	ConversionCompletedSubject string `toml:"conversion_completed_subject"`
	SourceObjectStoreBucket    string `toml:"source_object_store_bucket"`
	AudioObjectStoreBucket     string `toml:"audio_object_store_bucket"`
}

// ExtractionConfig holds limits applied while reading source files.
type ExtractionConfig struct {
	MaxFileSizeMB int `toml:"max_file_size_mb"`
}

// SegmentationConfig holds chapter-detection thresholds.
type SegmentationConfig struct {
	MinChapterWords        int `toml:"min_chapter_words"`
	FrontMatterWordCeiling int `toml:"front_matter_word_ceiling"`
}

// SynthesisConfig holds the speech backend settings.
type SynthesisConfig struct {
	BackendURL     string `toml:"backend_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxChunkChars  int    `toml:"max_chunk_chars"`
	MinAudioBytes  int    `toml:"min_audio_bytes"`
	WordsPerMinute int    `toml:"words_per_minute"`
	Language       string `toml:"language"`
}

// VoicesConfig holds the voice catalog and legacy alias table.
type VoicesConfig struct {
	Default  string              `toml:"default"`
	Profiles []core.VoiceProfile `toml:"profiles"`
	Aliases  map[string]string   `toml:"aliases"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	WorkDir     string `toml:"work_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS         NATSConfig         `toml:"nats"`
	Extraction   ExtractionConfig   `toml:"extraction"`
	Segmentation SegmentationConfig `toml:"segmentation"`
	Synthesis    SynthesisConfig    `toml:"synthesis"`
	Voices       VoicesConfig       `toml:"voices"`
	Paths        PathsConfig        `toml:"paths"`
}

// Load loads the configuration for the audiobook-service and applies defaults.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.Normalize()

	return &cfg, nil
}

// Normalize fills unset fields with their defaults.
func (c *Config) Normalize() {
	if c.Extraction.MaxFileSizeMB <= 0 {
		c.Extraction.MaxFileSizeMB = DefaultMaxFileSizeMB
	}

	if c.Segmentation.MinChapterWords <= 0 {
		c.Segmentation.MinChapterWords = DefaultMinChapterWords
	}

	if c.Segmentation.FrontMatterWordCeiling <= 0 {
		c.Segmentation.FrontMatterWordCeiling = DefaultFrontMatterWordCeiling
	}

	if c.Synthesis.TimeoutSeconds <= 0 {
		c.Synthesis.TimeoutSeconds = DefaultSynthesisTimeout
	}

	if c.Synthesis.MaxChunkChars <= 0 {
		c.Synthesis.MaxChunkChars = DefaultMaxChunkChars
	}

	if c.Synthesis.MinAudioBytes <= 0 {
		c.Synthesis.MinAudioBytes = DefaultMinAudioBytes
	}

	if c.Synthesis.WordsPerMinute <= 0 {
		c.Synthesis.WordsPerMinute = DefaultWordsPerMinute
	}

	if c.Synthesis.Language == "" {
		c.Synthesis.Language = DefaultLanguage
	}
}
