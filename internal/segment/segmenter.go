// Package segment detects chapter boundaries and groups extracted text into
// ordered chapters.
//
// Segmentation runs in three passes: sectioning (one candidate per extracted
// unit, or a line-level split of a single text blob), front-matter skipping,
// and a merge pass that folds below-minimum candidates into their neighbors
// so that no short chapter is emitted standalone.
package segment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/textnorm"
)

// Title used when a document yields exactly one chapter with no detected
// boundary line.
const completeTextTitle = "Complete Text"

// boundaryHeadLines is how many leading non-empty lines of a section are
// checked for a boundary pattern.
const boundaryHeadLines = 3

// Line-level chapter boundary patterns, in priority order.
var boundaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^chapter\s+\d+\b`),
	regexp.MustCompile(`(?i)^chapter\s+[ivxlcdm]+\b`),
	regexp.MustCompile(`(?i)^part\s+\d+\b`),
	regexp.MustCompile(`(?i)^book\s+\d+\b`),
	regexp.MustCompile(`^\d+\.\s+\S`),
}

// Phrases that mark a unit as front matter when found before the first real
// chapter.
var frontMatterMarkers = []string{
	"copyright",
	"dedication",
	"acknowledgment",
	"acknowledgments",
	"foreword",
	"preface",
	"table of contents",
	"about the author",
	"also by",
	"praise for",
	"isbn",
	"library of congress",
	"first edition",
	"publishing information",
}

// Markers that flag a short unit as front matter even without a full phrase
// match.
var shortUnitMarkers = []string{"copyright", "©", "isbn", "published"}

// IsBoundaryLine reports whether a single trimmed line matches any chapter
// boundary pattern.
func IsBoundaryLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	for _, pattern := range boundaryPatterns {
		if pattern.MatchString(line) {
			return true
		}
	}

	return false
}

// Segmenter turns an extraction into ordered chapters.
type Segmenter struct {
	log                    *logger.Logger
	norm                   *textnorm.Normalizer
	minChapterWords        int
	frontMatterWordCeiling int
}

// New creates a Segmenter.
func New(log *logger.Logger, norm *textnorm.Normalizer, minChapterWords, frontMatterWordCeiling int) *Segmenter {
	return &Segmenter{
		log:                    log,
		norm:                   norm,
		minChapterWords:        minChapterWords,
		frontMatterWordCeiling: frontMatterWordCeiling,
	}
}

// section is a candidate chapter before merging.
type section struct {
	title    string
	text     string
	source   string
	boundary bool
	words    int
}

// Segment detects chapters in the extraction. It returns ErrNoChapters when
// every unit is classified as front matter or empty.
func (s *Segmenter) Segment(extraction *core.Extraction) ([]core.Chapter, error) {
	if extraction == nil || len(extraction.Units) == 0 {
		return nil, fmt.Errorf("%w: extraction produced no units", core.ErrNoChapters)
	}

	var sections []section

	if len(extraction.Units) == 1 && extraction.Units[0].Heading == "" {
		sections = s.splitByBoundaries(extraction.Units[0])
	} else {
		sections = s.sectionsFromUnits(extraction.Units)
	}

	candidates := s.skipFrontMatter(sections)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: all content classified as front matter", core.ErrNoChapters)
	}

	merged := s.mergeShort(candidates)

	return s.finalize(merged)
}

// sectionsFromUnits makes one candidate per extracted unit. The boundary line,
// when one appears in the unit's first lines, wins over a structural heading
// as the title.
func (s *Segmenter) sectionsFromUnits(units []core.ExtractedUnit) []section {
	sections := make([]section, 0, len(units))

	for _, unit := range units {
		text := s.clean(unit.Text)
		if text == "" {
			continue
		}

		title, hasBoundary := headBoundaryLine(text)
		if title == "" {
			title = strings.TrimSpace(unit.Heading)
		}

		sections = append(sections, section{
			title:    title,
			text:     text,
			source:   unit.Name,
			boundary: hasBoundary,
			words:    countWords(text),
		})
	}

	return sections
}

// splitByBoundaries splits a single text blob at boundary lines. Text before
// the first boundary becomes an untitled leading section; a blob with no
// boundaries at all becomes one section.
func (s *Segmenter) splitByBoundaries(unit core.ExtractedUnit) []section {
	text := s.clean(unit.Text)
	if text == "" {
		return nil
	}

	var sections []section

	var buf []string

	currentTitle := ""
	hasBoundary := false

	flush := func() {
		body := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]

		if body == "" && currentTitle == "" {
			return
		}

		// words counts the body only, matching how the emitted chapter
		// counts: the title line is not part of the chapter content.
		sections = append(sections, section{
			title:    currentTitle,
			text:     body,
			source:   unit.Name,
			boundary: hasBoundary,
			words:    countWords(body),
		})
	}

	for _, line := range strings.Split(text, "\n") {
		if IsBoundaryLine(line) {
			flush()

			currentTitle = strings.TrimSpace(line)
			hasBoundary = true

			continue
		}

		buf = append(buf, line)
	}

	flush()

	return sections
}

// clean strips layout artifacts, protecting boundary lines, and normalizes.
func (s *Segmenter) clean(text string) string {
	text = s.norm.StripArtifacts(text, IsBoundaryLine)

	return s.norm.Normalize(text)
}

// skipFrontMatter drops front-matter sections. Skipping is permanently
// disabled once the first non-trivial content section is accepted: a trivial
// marker-free page (a surviving half-title, say) is kept but does not end the
// front-matter region. Marker phrases win even over a boundary-looking line:
// tables of contents list numbered entries that match boundary patterns.
func (s *Segmenter) skipFrontMatter(sections []section) []section {
	kept := make([]section, 0, len(sections))
	contentStarted := false

	for _, sec := range sections {
		if sec.text == "" && sec.title == "" {
			continue
		}

		if !contentStarted && s.isFrontMatter(sec) {
			s.log.Info("Skipping front matter section %q (%d words)", sec.source, sec.words)

			continue
		}

		if sec.boundary || sec.words >= s.frontMatterWordCeiling {
			contentStarted = true
		}

		kept = append(kept, sec)
	}

	return kept
}

func (s *Segmenter) isFrontMatter(sec section) bool {
	lower := strings.ToLower(sec.title + "\n" + sec.text)

	for _, marker := range frontMatterMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	if sec.words < s.frontMatterWordCeiling {
		for _, marker := range shortUnitMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}

	return false
}

// mergeShort folds below-minimum candidates into a neighbor instead of
// emitting or dropping them. A short candidate merges forward into the next
// one; a short final candidate merges backward into the previous. A sole
// candidate is kept whatever its length.
func (s *Segmenter) mergeShort(candidates []section) []section {
	if len(candidates) <= 1 {
		return candidates
	}

	merged := make([]section, 0, len(candidates))

	for i, cand := range candidates {
		if cand.words >= s.minChapterWords {
			merged = append(merged, cand)

			continue
		}

		if i < len(candidates)-1 {
			next := &candidates[i+1]

			// The absorbed title survives as a content line unless the
			// receiving section adopts it, so no words are lost.
			absorbedTitle := cand.title
			if next.title == "" {
				next.title = cand.title
				absorbedTitle = ""
			}

			next.text = joinParts(absorbedTitle, cand.text, next.text)
			next.words += cand.words

			if next.source == "" {
				next.source = cand.source
			}

			s.log.Info("Merging short section %q (%d words) forward", cand.title, cand.words)

			continue
		}

		// Short trailing candidate merges backward.
		if len(merged) > 0 {
			prev := &merged[len(merged)-1]
			prev.text = joinParts(prev.text, cand.title, cand.text)
			prev.words += cand.words

			s.log.Info("Merging short trailing section %q (%d words) backward", cand.title, cand.words)

			continue
		}

		merged = append(merged, cand)
	}

	return merged
}

func joinParts(parts ...string) string {
	kept := make([]string, 0, len(parts))

	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}

	return strings.Join(kept, "\n\n")
}

func (s *Segmenter) finalize(sections []section) ([]core.Chapter, error) {
	chapters := make([]core.Chapter, 0, len(sections))

	for i, sec := range sections {
		title := sec.title
		if title == "" && len(sections) == 1 && !sec.boundary {
			title = completeTextTitle
		}

		content := sec.text
		if content == "" {
			content = sec.title
		}

		chapter, err := core.NewChapter(i+1, title, content, sec.source)
		if err != nil {
			return nil, fmt.Errorf("finalize chapter %d: %w", i+1, err)
		}

		chapters = append(chapters, chapter)
	}

	if len(chapters) == 0 {
		return nil, fmt.Errorf("%w: nothing left after merging", core.ErrNoChapters)
	}

	return chapters, nil
}

// headBoundaryLine scans the first non-empty lines for a boundary pattern and
// returns the matched line as a title.
func headBoundaryLine(text string) (string, bool) {
	seen := 0

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if IsBoundaryLine(line) {
			return line, true
		}

		seen++
		if seen >= boundaryHeadLines {
			break
		}
	}

	return "", false
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
