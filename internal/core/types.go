// Package core defines the domain types and boundary contracts for the
// audiobook conversion service.
package core

import (
	"fmt"
	"strings"
)

// Format identifies a supported source document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatEPUB Format = "epub"
	FormatTXT  Format = "txt"
)

// ParseFormat maps a file extension or format label to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "pdf":
		return FormatPDF, nil
	case "epub":
		return FormatEPUB, nil
	case "txt", "text":
		return FormatTXT, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// RawDocument is a source document as received, before extraction.
// It is immutable once constructed and discarded after extraction.
type RawDocument struct {
	Path   string
	Format Format
}

// ExtractedUnit is one atomic unit of extracted content: a PDF page, an EPUB
// spine fragment, or the whole file for plain text. Index defines reading
// order; Heading carries a structural hint (an HTML heading) when available.
type ExtractedUnit struct {
	Index   int
	Name    string
	Text    string
	Heading string
}

// Extraction is the full ordered output of a format extractor.
type Extraction struct {
	Units []ExtractedUnit
	Title string
}

// Chapter is the central entity of a conversion: a contiguous block of
// normalized body text with a 1-based sequential number.
type Chapter struct {
	Number    int
	Title     string
	Content   string
	WordCount int
	Source    string
}

// NewChapter builds a Chapter, computing the word count and synthesizing a
// default title when none was detected.
func NewChapter(number int, title, content, source string) (Chapter, error) {
	if number < 1 {
		return Chapter{}, fmt.Errorf("%w: chapter number %d", ErrInvalidChapter, number)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return Chapter{}, fmt.Errorf("%w: chapter %d has no content", ErrInvalidChapter, number)
	}

	if title == "" {
		title = fmt.Sprintf("Chapter %d", number)
	}

	return Chapter{
		Number:    number,
		Title:     title,
		Content:   content,
		WordCount: len(strings.Fields(content)),
		Source:    source,
	}, nil
}

// VoiceProfile describes one synthesizer voice in the catalog.
type VoiceProfile struct {
	ID          string `toml:"id"          json:"id"`
	Name        string `toml:"name"        json:"name"`
	Speaker     string `toml:"speaker"     json:"speaker"`
	Gender      string `toml:"gender"      json:"gender"`
	Category    string `toml:"category"    json:"category"`
	Description string `toml:"description" json:"description"`
	Quality     string `toml:"quality"     json:"quality"`
}

// ChapterAudio is the synthesized audio for one chapter.
type ChapterAudio struct {
	ChapterNumber   int
	Title           string
	Data            []byte
	WordCount       int
	DurationMinutes float64
	Voice           string
}

// JobStatus is the terminal or in-flight state of one conversion job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// ProgressUpdate is one progress report emitted during a conversion.
type ProgressUpdate struct {
	Status  JobStatus `json:"status"`
	Percent int       `json:"progress_percent"`
	Phase   string    `json:"phase_description"`
}

// ManifestChapter is one successfully converted chapter in the final manifest.
type ManifestChapter struct {
	Number          int     `json:"chapter_number"`
	Title           string  `json:"title"`
	AudioPath       string  `json:"audio_file_path"`
	WordCount       int     `json:"word_count"`
	DurationMinutes float64 `json:"duration_estimate_minutes"`
	SizeBytes       int64   `json:"audio_file_size_bytes"`
	Voice           string  `json:"voice"`
}

// Manifest is the aggregate result of a conversion job. Chapters preserve
// document order; a failed chapter is simply absent, so ChaptersConverted may
// be lower than TotalChaptersFound.
type Manifest struct {
	JobID                string            `json:"job_id"`
	BookTitle            string            `json:"book_title,omitempty"`
	Chapters             []ManifestChapter `json:"chapters"`
	TotalChaptersFound   int               `json:"total_chapters_found"`
	ChaptersConverted    int               `json:"chapters_converted"`
	TotalWords           int               `json:"total_words"`
	TotalDurationMinutes float64           `json:"total_duration_estimate_minutes"`
	TotalSizeBytes       int64             `json:"total_size_bytes"`
}

// SuccessRate returns converted/attempted as a percentage, 0 when nothing was
// attempted.
func (m *Manifest) SuccessRate() float64 {
	if m.TotalChaptersFound == 0 {
		return 0
	}

	return float64(m.ChaptersConverted) / float64(m.TotalChaptersFound) * 100
}
