package triage

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// DefaultLocale is the base keyword set every other locale is merged onto
const DefaultLocale = "en-US"

// Registry holds one Engine per embedded locale. It is immutable after
// NewRegistry and safe for concurrent use.
type Registry struct {
	engines map[string]*Engine
}

// NewRegistry loads every embedded locale file and builds its engine
func NewRegistry() (*Registry, error) {
	sets := make(map[string]*KeywordSet)

	files, err := fs.Glob(configFiles, "config/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to list keyword files: %w", err)
	}
	for _, filename := range files {
		set, err := loadKeywordFile(filename)
		if err != nil {
			return nil, err
		}
		sets[set.Locale] = set
	}

	base, ok := sets[DefaultLocale]
	if !ok {
		return nil, fmt.Errorf("missing %s keyword set", DefaultLocale)
	}

	r := &Registry{engines: make(map[string]*Engine, len(sets))}
	for locale, set := range sets {
		if locale == DefaultLocale {
			r.engines[locale] = newEngine(set, nil)
			continue
		}
		r.engines[locale] = newEngine(set, base)
	}
	return r, nil
}

func loadKeywordFile(filename string) (*KeywordSet, error) {
	data, err := configFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	var set KeywordSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", filename, err)
	}
	if set.Locale == "" {
		return nil, fmt.Errorf("%s: locale is required", filename)
	}
	return &set, nil
}

// Engine returns the engine for locale, falling back to the default locale.
// Matching is case-insensitive and accepts a bare language ("ur" → "ur-PK").
func (r *Registry) Engine(locale string) *Engine {
	if e, ok := r.engines[locale]; ok {
		return e
	}
	for name, e := range r.engines {
		if strings.EqualFold(name, locale) {
			return e
		}
	}
	if lang, _, _ := strings.Cut(locale, "-"); lang != "" {
		for name, e := range r.engines {
			if l, _, _ := strings.Cut(name, "-"); strings.EqualFold(l, lang) {
				return e
			}
		}
	}
	return r.engines[DefaultLocale]
}

// Supports reports whether an exact keyword set exists for locale
func (r *Registry) Supports(locale string) bool {
	_, ok := r.engines[locale]
	return ok
}

// Locales returns the loaded locales in sorted order
func (r *Registry) Locales() []string {
	locales := make([]string, 0, len(r.engines))
	for locale := range r.engines {
		locales = append(locales, locale)
	}
	sort.Strings(locales)
	return locales
}
