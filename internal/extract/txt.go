package extract

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/book-expert/audiobook-service/internal/core"
)

// extractTXT reads a plain text file, decoding it through an ordered ladder of
// candidate encodings: UTF-8, then UTF-16 (by BOM), then Latin-1, then
// Windows-1252. If all rungs fail the bytes are decoded as UTF-8 with invalid
// sequences replaced, so that a mostly-valid file still converts.
func (e *Extractor) extractTXT(path string) (*core.Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}

	text, encodingName := decodeText(data)
	if encodingName == "replacement" {
		e.log.Warn("Text file %s matched no known encoding; decoded lossily as UTF-8", path)
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text file is empty", core.ErrNoReadableText)
	}

	return &core.Extraction{
		Units: []core.ExtractedUnit{{Index: 0, Name: "text", Text: text}},
	}, nil
}

func decodeText(data []byte) (string, string) {
	if utf8.Valid(data) {
		return string(stripUTF8BOM(data)), "utf-8"
	}

	if hasUTF16BOM(data) {
		decoded, err := decodeWith(data, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM))
		if err == nil {
			return decoded, "utf-16"
		}
	}

	// Latin-1 decodes any byte, so it only "fails" when the result would
	// contain C1 control characters; those bytes are almost always
	// Windows-1252 punctuation instead.
	if !hasC1Range(data) {
		decoded, err := decodeWith(data, charmap.ISO8859_1)
		if err == nil {
			return decoded, "latin-1"
		}
	}

	decoded, err := decodeWith(data, charmap.Windows1252)
	if err == nil {
		return decoded, "windows-1252"
	}

	return strings.ToValidUTF8(string(data), "�"), "replacement"
}

func decodeWith(data []byte, enc encoding.Encoding) (string, error) {
	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	return string(decoded), nil
}

func stripUTF8BOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

func hasUTF16BOM(data []byte) bool {
	if len(data) < 2 {
		return false
	}

	return (data[0] == 0xFF && data[1] == 0xFE) || (data[0] == 0xFE && data[1] == 0xFF)
}

// hasC1Range reports whether any byte falls in 0x80-0x9F, the range where
// Latin-1 maps to control characters but Windows-1252 maps to punctuation.
func hasC1Range(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 && b <= 0x9F {
			return true
		}
	}

	return false
}
