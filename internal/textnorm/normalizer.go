// Package textnorm provides text normalization for extracted book content.
//
// Normalize cleans extraction artifacts while preserving chapter-boundary
// lines; ForSpeech applies the additional speech-oriented rewrites
// (abbreviation expansion, ordinal smoothing) that must only run after
// chapter boundaries have been detected.
package textnorm

import (
	"regexp"
	"strings"
)

// Regex patterns, compiled once per Normalizer.
const (
	blankRunsPattern      = `\n[ \t]*\n[ \t]*(\n[ \t]*)+`
	horizontalRunsPattern = `[ \t]{2,}`
	lineLeadSpacePattern  = `\n[ \t]+`
	lineTrailSpacePattern = `[ \t]+\n`
	hyphenBreakPattern    = `(\p{L})-[ \t]*\n[ \t]*(\p{Ll})`
	ellipsisRunPattern    = `\.{3,}`
	tightSentencePattern  = `([.!?])(\p{Lu})`
	bareNumberLinePattern = `(?m)^\s*\d+\s*$`
	ordinalPattern        = `\b(\d+)(st|nd|rd|th)\b`
)

// Punctuation constants.
const (
	ellipsisGlyph = "…"
	emDash        = "—"
	enDash        = "–"
)

// Normalizer applies the ordered cleanup rules. It is stateless after
// construction and safe for concurrent use.
type Normalizer struct {
	blankRuns      *regexp.Regexp
	horizontalRuns *regexp.Regexp
	lineLeadSpace  *regexp.Regexp
	lineTrailSpace *regexp.Regexp
	hyphenBreak    *regexp.Regexp
	ellipsisRun    *regexp.Regexp
	tightSentence  *regexp.Regexp
	bareNumberLine *regexp.Regexp
	ordinal        *regexp.Regexp
	smartPunct     *strings.Replacer
	abbreviations  *strings.Replacer
}

// New creates a Normalizer with compiled patterns and replacers.
func New() *Normalizer {
	// Expansions chosen for natural pronunciation by a neural TTS voice.
	abbreviations := []string{
		"Dr.", "Doctor",
		"Mr.", "Mister",
		"Mrs.", "Missus",
		"Ms.", "Miss",
		"Prof.", "Professor",
		"St.", "Saint",
		"etc.", "et cetera",
		"vs.", "versus",
		"e.g.", "for example",
		"i.e.", "that is",
	}

	smartPunct := strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
		emDash, " - ",
		enDash, "-",
	)

	return &Normalizer{
		blankRuns:      regexp.MustCompile(blankRunsPattern),
		horizontalRuns: regexp.MustCompile(horizontalRunsPattern),
		lineLeadSpace:  regexp.MustCompile(lineLeadSpacePattern),
		lineTrailSpace: regexp.MustCompile(lineTrailSpacePattern),
		hyphenBreak:    regexp.MustCompile(hyphenBreakPattern),
		ellipsisRun:    regexp.MustCompile(ellipsisRunPattern),
		tightSentence:  regexp.MustCompile(tightSentencePattern),
		bareNumberLine: regexp.MustCompile(bareNumberLinePattern),
		ordinal:        regexp.MustCompile(ordinalPattern),
		smartPunct:     smartPunct,
		abbreviations:  strings.NewReplacer(abbreviations...),
	}
}

// Normalize cleans raw extracted text. The rules run in a fixed order; later
// rules assume the earlier cleanups have happened. The function is idempotent:
// normalizing already-normalized text changes nothing.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return text
	}

	// 1. Line-ending unification.
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	// 2. Whitespace collapse: horizontal runs to one space, 3+ blank lines
	// to exactly one blank line, no leading or trailing space on lines.
	text = n.horizontalRuns.ReplaceAllString(text, " ")
	text = n.lineTrailSpace.ReplaceAllString(text, "\n")
	text = n.lineLeadSpace.ReplaceAllString(text, "\n")
	text = n.blankRuns.ReplaceAllString(text, "\n\n")

	// 3. Rejoin words hyphenated across a line wrap. Replacing can expose a
	// new break (a word split across three lines), so run to a fixed point.
	for {
		rejoined := n.hyphenBreak.ReplaceAllString(text, "$1$2")
		if rejoined == text {
			break
		}

		text = rejoined
	}

	// 4. Runs of dots become a single ellipsis glyph.
	text = n.ellipsisRun.ReplaceAllString(text, ellipsisGlyph)

	// 5. Exactly one space between a sentence terminator and a following
	// uppercase letter; repairs extraction output that drops it.
	text = n.tightSentence.ReplaceAllString(text, "$1 $2")

	// 6. Smart quotes and dashes to plain ASCII. The dash replacement pads
	// with spaces, so redo the space collapse and line-edge strips: a dash
	// next to a newline would otherwise leave a padding space behind.
	text = n.smartPunct.Replace(text)
	text = n.horizontalRuns.ReplaceAllString(text, " ")
	text = n.lineTrailSpace.ReplaceAllString(text, "\n")
	text = n.lineLeadSpace.ReplaceAllString(text, "\n")

	return strings.TrimSpace(text)
}

// ForSpeech prepares normalized text for the synthesis backend. It must never
// run before chapter-boundary detection: expanding abbreviations can turn a
// body line into a false boundary match.
func (n *Normalizer) ForSpeech(text string) string {
	if text == "" {
		return text
	}

	text = n.Normalize(text)
	text = n.abbreviations.Replace(text)
	text = n.ordinal.ReplaceAllStringFunc(text, expandOrdinal)
	text = n.tightSentence.ReplaceAllString(text, "$1 $2")

	return strings.TrimSpace(text)
}

// ordinalWords covers the ordinals a narrator reads most often; anything
// larger is left for the synthesis backend to pronounce.
var ordinalWords = map[string]string{
	"1st": "first", "2nd": "second", "3rd": "third", "4th": "fourth",
	"5th": "fifth", "6th": "sixth", "7th": "seventh", "8th": "eighth",
	"9th": "ninth", "10th": "tenth", "11th": "eleventh", "12th": "twelfth",
}

func expandOrdinal(match string) string {
	if word, ok := ordinalWords[strings.ToLower(match)]; ok {
		return word
	}

	return match
}

// StripArtifacts removes page-layout debris from a unit of extracted text:
// standalone page-number lines and short all-caps running headers. Any line
// for which keep returns true survives untouched, so callers can protect
// chapter-heading lines. keep may be nil.
func (n *Normalizer) StripArtifacts(text string, keep func(line string) bool) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if keep != nil && keep(trimmed) {
			kept = append(kept, line)

			continue
		}

		if n.bareNumberLine.MatchString(trimmed) {
			continue
		}

		if isShoutingHeader(trimmed) {
			continue
		}

		kept = append(kept, line)
	}

	return strings.Join(kept, "\n")
}

// isShoutingHeader reports whether a line looks like a running header: short,
// all uppercase, with at least one letter.
func isShoutingHeader(line string) bool {
	if line == "" || len(line) >= 50 {
		return false
	}

	hasLetter := false

	for _, r := range line {
		if r >= 'a' && r <= 'z' {
			return false
		}

		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}

	return hasLetter
}
