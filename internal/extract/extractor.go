// Package extract reads source eBook files and produces their plain text.
//
// Each supported format has its own extractor; Extract dispatches on the
// declared format, falling back to content sniffing when the extension and
// the file contents disagree.
package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/audiobook-service/internal/core"
)

// Magic prefixes used to sniff the real file format.
var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

const sniffLen = 8

// Extractor dispatches extraction to the per-format implementations.
type Extractor struct {
	log           *logger.Logger
	maxFileSizeMB int
}

// New creates an Extractor. maxFileSizeMB caps the size of accepted source
// files; zero or negative disables the cap.
func New(log *logger.Logger, maxFileSizeMB int) *Extractor {
	return &Extractor{
		log:           log,
		maxFileSizeMB: maxFileSizeMB,
	}
}

// DetectFormat determines the format of the file at path, preferring the file
// extension and falling back to magic-byte sniffing when the extension is
// unknown. A recognized extension whose magic contradicts it is resolved in
// favor of the magic: renamed files are common in user uploads.
func (e *Extractor) DetectFormat(path string) (core.Format, error) {
	byExt, extErr := core.ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))

	bySniff, sniffErr := sniffFormat(path)
	if sniffErr != nil {
		if extErr != nil {
			return "", fmt.Errorf("detect format of %s: %w", path, extErr)
		}

		return byExt, nil
	}

	if extErr == nil && byExt != bySniff {
		e.log.Warn(
			"File %s has extension format %s but content looks like %s; using content",
			path, byExt, bySniff,
		)
	}

	return bySniff, nil
}

// Extract reads the document and returns its text units in reading order.
func (e *Extractor) Extract(doc core.RawDocument) (*core.Extraction, error) {
	err := e.checkSize(doc.Path)
	if err != nil {
		return nil, err
	}

	switch doc.Format {
	case core.FormatPDF:
		return e.extractPDF(doc.Path)
	case core.FormatEPUB:
		return e.extractEPUB(doc.Path)
	case core.FormatTXT:
		return e.extractTXT(doc.Path)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, doc.Format)
	}
}

func (e *Extractor) checkSize(path string) error {
	if e.maxFileSizeMB <= 0 {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}

	limit := int64(e.maxFileSizeMB) * 1024 * 1024
	if info.Size() > limit {
		return fmt.Errorf(
			"source file %s is %d bytes, over the %d MB limit",
			path, info.Size(), e.maxFileSizeMB,
		)
	}

	return nil
}

// sniffFormat reads the first bytes of the file and matches known magic
// numbers. A file that matches none is treated as plain text: the TXT
// extractor's encoding ladder will reject true binary garbage later.
func sniffFormat(path string) (core.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for sniffing: %w", err)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, sniffLen)

	n, err := f.Read(header)
	if err != nil || n == 0 {
		return "", fmt.Errorf("%w: empty or unreadable file", core.ErrNoReadableText)
	}

	header = header[:n]

	switch {
	case bytes.HasPrefix(header, pdfMagic):
		return core.FormatPDF, nil
	case bytes.HasPrefix(header, zipMagic):
		return core.FormatEPUB, nil
	default:
		return core.FormatTXT, nil
	}
}
