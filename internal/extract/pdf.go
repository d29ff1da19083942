package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/book-expert/audiobook-service/internal/core"
)

// pdfStringLiteral matches PDF string literals in parentheses: (text here).
var pdfStringLiteral = regexp.MustCompile(`\(([^)]*)\)`)

// extractPDF extracts text from a PDF file, one unit per page. Pages whose
// content streams yield no text are skipped; extraction fails only when the
// whole document produces nothing.
func (e *Extractor) extractPDF(path string) (*core.Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	defer func() { _ = f.Close() }()

	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("read PDF structure: %w", err)
	}

	units := make([]core.ExtractedUnit, 0, ctx.PageCount)
	skipped := 0

	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageText := extractPageText(ctx, pageNr)
		if pageText == "" {
			skipped++

			continue
		}

		units = append(units, core.ExtractedUnit{
			Index: len(units),
			Name:  fmt.Sprintf("page %d", pageNr),
			Text:  pageText,
		})
	}

	if skipped > 0 {
		e.log.Warn("PDF %s: %d of %d pages yielded no text", path, skipped, ctx.PageCount)
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("%w: no extractable text in any of %d pages",
			core.ErrNoReadableText, ctx.PageCount)
	}

	return &core.Extraction{Units: units, Title: pdfTitle(units[0].Text)}, nil
}

// pdfTitle takes the first non-empty line of the first page as a title hint,
// truncated on a rune boundary.
func pdfTitle(firstPage string) string {
	const maxTitleLen = 200

	for _, line := range strings.Split(firstPage, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if len(line) > maxTitleLen {
			runes := []rune(line)
			if len(runes) > maxTitleLen {
				runes = runes[:maxTitleLen]
			}

			line = string(runes)
		}

		return line
	}

	return ""
}

func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return ""
	}

	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}

	return parseContentStream(data)
}

// parseContentStream walks the page content stream's text operators. Only the
// text-showing and line-movement operators matter; graphics operators are
// ignored.
func parseContentStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		// (text) Tj and [(text) -100 (more)] TJ show text at the current position.
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			writeStringLiterals(&sb, line, false)

		// (text) ' moves to the next line before showing.
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			writeStringLiterals(&sb, line, true)

		// Td and TD reposition the cursor; treat as a word break.
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}

		// T* moves to the start of the next line.
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return tidyPageText(sb.String())
}

func writeStringLiterals(sb *strings.Builder, line []byte, newlineFirst bool) {
	for _, m := range pdfStringLiteral.FindAllSubmatch(line, -1) {
		text := decodePDFString(m[1])
		if text == "" {
			continue
		}

		if newlineFirst {
			sb.WriteByte('\n')
		}

		sb.WriteString(text)
	}
}

// decodePDFString handles the PDF string escape sequences, including octal
// escapes like \040.
func decodePDFString(raw []byte) string {
	var sb strings.Builder

	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])

			continue
		}

		i++

		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')

				for range 2 {
					if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
						i++
						val = val*8 + int(raw[i]-'0')
					}
				}

				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}

	return sb.String()
}

// tidyPageText collapses horizontal whitespace runs and drops unprintable
// characters while preserving line breaks, which later chapter detection
// depends on.
func tidyPageText(text string) string {
	var sb strings.Builder

	prevSpace := false

	for _, r := range text {
		switch {
		case r == '\n':
			sb.WriteByte('\n')

			prevSpace = false
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')

				prevSpace = true
			}
		case unicode.IsPrint(r):
			sb.WriteRune(r)

			prevSpace = false
		}
	}

	return strings.TrimSpace(sb.String())
}
