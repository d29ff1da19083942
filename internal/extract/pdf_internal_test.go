package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestPDFTitleFirstNonEmptyLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "The Title", pdfTitle("\n   \nThe Title\nbody text"))
	assert.Empty(t, pdfTitle("   \n\n"))
}

func TestPDFTitleTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// 100 three-byte runes: over the byte cap but under the rune cap, so the
	// line survives whole. A byte-indexed cut would split the 67th rune.
	line := strings.Repeat("日", 100)
	title := pdfTitle(line + "\nbody")
	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, line, title)

	title = pdfTitle(strings.Repeat("日", 250))
	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, 200, utf8.RuneCountInString(title))
}
