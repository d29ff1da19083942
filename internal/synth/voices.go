package synth

import (
	"fmt"
	"strings"

	"github.com/book-expert/audiobook-service/internal/core"
)

// Legacy voice names from earlier releases, mapped to current catalog IDs.
// Configured aliases are merged on top and win on collision.
var legacyAliases = map[string]string{
	"ana_florence":   "female_narrator",
	"david_freeman":  "male_narrator",
	"lisa_chen":      "clear_female",
	"michael_torres": "professional_male",
	"sarah_williams": "warm_female",
	"james_parker":   "professional_male",
}

// Selector resolves a requested voice against a fixed catalog. Resolution is
// a pure function of the catalog, so the same request always yields the same
// voice.
type Selector struct {
	catalog   []core.VoiceProfile
	byID      map[string]core.VoiceProfile
	aliases   map[string]string
	defaultID string
}

// NewSelector builds a Selector from the catalog. extraAliases may be nil.
func NewSelector(catalog []core.VoiceProfile, defaultID string, extraAliases map[string]string) (*Selector, error) {
	if len(catalog) == 0 {
		return nil, fmt.Errorf("%w: empty catalog", core.ErrNoVoices)
	}

	byID := make(map[string]core.VoiceProfile, len(catalog))
	for _, profile := range catalog {
		byID[profile.ID] = profile
	}

	aliases := make(map[string]string, len(legacyAliases)+len(extraAliases))
	for name, target := range legacyAliases {
		aliases[name] = target
	}

	for name, target := range extraAliases {
		aliases[name] = target
	}

	return &Selector{
		catalog:   catalog,
		byID:      byID,
		aliases:   aliases,
		defaultID: defaultID,
	}, nil
}

// Resolve maps a requested voice ID to a catalog profile, degrading through a
// fixed chain: direct ID match, legacy alias, category match, configured
// default, first catalog entry. It never fails on an unknown request; only an
// empty catalog is an error, and NewSelector already rejects that.
func (s *Selector) Resolve(requested string) core.VoiceProfile {
	requested = strings.TrimSpace(strings.ToLower(requested))

	if profile, ok := s.byID[requested]; ok {
		return profile
	}

	if target, ok := s.aliases[requested]; ok {
		if profile, found := s.lookup(target); found {
			return profile
		}
	}

	if profile, ok := s.firstInCategory(requested); ok {
		return profile
	}

	if profile, ok := s.byID[s.defaultID]; ok {
		return profile
	}

	return s.catalog[0]
}

// lookup resolves an alias target as an ID first, then as a category.
func (s *Selector) lookup(target string) (core.VoiceProfile, bool) {
	if profile, ok := s.byID[target]; ok {
		return profile, true
	}

	return s.firstInCategory(target)
}

// firstInCategory returns the first catalog entry in the category, preserving
// catalog order for determinism.
func (s *Selector) firstInCategory(category string) (core.VoiceProfile, bool) {
	if category == "" {
		return core.VoiceProfile{}, false
	}

	for _, profile := range s.catalog {
		if strings.EqualFold(profile.Category, category) {
			return profile, true
		}
	}

	return core.VoiceProfile{}, false
}

// Catalog returns the selector's profiles in catalog order.
func (s *Selector) Catalog() []core.VoiceProfile {
	return s.catalog
}
