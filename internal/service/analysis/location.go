package analysis

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed config/locations.yaml
var locationFS embed.FS

// Place is a named point the caller can refer to
type Place struct {
	Name      string
	Longitude float64
	Latitude  float64
}

// Gazetteer resolves place names mentioned in a transcript to coordinates
type Gazetteer struct {
	places       []Place // longest name first
	triggers     []string
	RadiusMeters float64
	Limit        int
}

type gazetteerFile struct {
	RadiusMeters float64               `yaml:"radius_meters"`
	Limit        int                   `yaml:"limit"`
	Triggers     []string              `yaml:"triggers"`
	Places       map[string][2]float64 `yaml:"places"`
}

// NewGazetteer loads the embedded place list
func NewGazetteer() (*Gazetteer, error) {
	data, err := locationFS.ReadFile("config/locations.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read gazetteer: %w", err)
	}

	var f gazetteerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse gazetteer: %w", err)
	}
	if len(f.Places) == 0 {
		return nil, fmt.Errorf("gazetteer has no places")
	}

	g := &Gazetteer{
		triggers:     f.Triggers,
		RadiusMeters: f.RadiusMeters,
		Limit:        f.Limit,
	}
	if g.RadiusMeters <= 0 {
		g.RadiusMeters = 5000
	}
	if g.Limit <= 0 {
		g.Limit = 3
	}
	for name, coords := range f.Places {
		g.places = append(g.places, Place{
			Name:      strings.ToLower(name),
			Longitude: coords[0],
			Latitude:  coords[1],
		})
	}
	sort.Slice(g.places, func(i, j int) bool {
		li, lj := len([]rune(g.places[i].Name)), len([]rune(g.places[j].Name))
		if li != lj {
			return li > lj
		}
		return g.places[i].Name < g.places[j].Name
	})
	return g, nil
}

// Locate returns the longest place name mentioned in text as a whole word
func (g *Gazetteer) Locate(text string) (Place, bool) {
	padded := tokenize(text)
	for _, p := range g.places {
		if strings.Contains(padded, " "+p.Name+" ") {
			return p, true
		}
	}
	return Place{}, false
}

// Mentioned reports whether text asks about doctors or facilities
func (g *Gazetteer) Mentioned(text string) bool {
	padded := tokenize(text)
	for _, t := range g.triggers {
		if strings.Contains(padded, " "+t+" ") {
			return true
		}
	}
	return false
}

// tokenize lowercases text and replaces punctuation with spaces, keeping
// hyphens so "gulshan-e-iqbal" survives. The result is space-padded.
func tokenize(text string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) || r == '-' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}
