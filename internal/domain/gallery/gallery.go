// Package gallery holds the enrolled employee profiles the matcher scans.
package gallery

import (
	"github.com/okian/facesense/internal/domain/model"
	"gonum.org/v1/gonum/stat"
)

// Mode labels reported by the status endpoint.
const (
	ModeEnhanced = "Enhanced"
	ModeBasic    = "Basic"
)

// Gallery is an immutable, ordered set of profiles. Order is significant:
// the matcher keeps the first of equally scored profiles.
type Gallery struct {
	profiles []model.EmployeeProfile
	byName   map[string]int
}

// Stats summarizes a gallery.
type Stats struct {
	Mode           string  `json:"model_type"`
	Employees      int     `json:"total_employees"`
	Profiles       int     `json:"enhanced_profiles"`
	Variations     int     `json:"total_variations"`
	AverageQuality float64 `json:"average_quality"`
}

// New builds a gallery. Profiles without variants or without a name are
// dropped; for duplicate names the first profile wins the name lookup.
func New(profiles []model.EmployeeProfile) *Gallery {
	g := &Gallery{byName: make(map[string]int)}
	for _, p := range profiles {
		if p.Name == "" || len(p.Variants) == 0 {
			continue
		}
		if p.EmployeeID == "" {
			p.EmployeeID = model.UnknownEmployeeID
		}
		variants := make([]model.Embedding, len(p.Variants))
		copy(variants, p.Variants)
		p.Variants = variants

		key := NormalizeName(p.Name)
		if _, dup := g.byName[key]; !dup {
			g.byName[key] = len(g.profiles)
		}
		g.profiles = append(g.profiles, p)
	}
	return g
}

// Empty returns a gallery with no profiles.
func Empty() *Gallery { return New(nil) }

// Profiles returns the profiles in gallery order. Callers must not modify them.
func (g *Gallery) Profiles() []model.EmployeeProfile { return g.profiles }

// Len returns the number of profiles.
func (g *Gallery) Len() int { return len(g.profiles) }

// Lookup finds a profile by name, ignoring case and diacritics.
func (g *Gallery) Lookup(name string) (model.EmployeeProfile, bool) {
	i, ok := g.byName[NormalizeName(name)]
	if !ok {
		return model.EmployeeProfile{}, false
	}
	return g.profiles[i], true
}

// Dim returns the embedding dimension of the first variant, or 0 when empty.
func (g *Gallery) Dim() int {
	if len(g.profiles) == 0 {
		return 0
	}
	return len(g.profiles[0].Variants[0])
}

// Known reports whether name is an enrolled employee.
func (g *Gallery) Known(name string) bool {
	_, ok := g.Lookup(name)
	return ok
}

// Stats returns profile, variation and quality figures.
func (g *Gallery) Stats() Stats {
	s := Stats{Mode: ModeBasic, Employees: len(g.byName), Profiles: len(g.profiles)}
	if len(g.profiles) == 0 {
		return s
	}
	s.Mode = ModeEnhanced
	qualities := make([]float64, len(g.profiles))
	for i, p := range g.profiles {
		s.Variations += len(p.Variants)
		qualities[i] = p.Quality
	}
	s.AverageQuality = stat.Mean(qualities, nil)
	return s
}
