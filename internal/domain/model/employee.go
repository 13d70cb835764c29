// Package model contains domain models passed between layers.
package model

import "math"

// UnknownIdentity is reported when no gallery entry matches.
const UnknownIdentity = "Unknown"

// UnknownEmployeeID is used when the enrollment filename carries no id.
const UnknownEmployeeID = "N/A"

// Embedding is a fixed-length face descriptor produced by the embedder.
type Embedding []float64

// Valid reports whether e has the given dimension and only finite components.
func (e Embedding) Valid(dim int) bool {
	if len(e) == 0 || len(e) != dim {
		return false
	}
	for _, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// EmployeeProfile is the enrolled reference data for one employee.
// Profiles are immutable once the gallery is built.
type EmployeeProfile struct {
	Name       string      `yaml:"name" json:"name"`
	EmployeeID string      `yaml:"employee_id" json:"employee_id"`
	Variants   []Embedding `yaml:"variants" json:"variants"`
	// Quality is the enrollment quality score, typically 0-10.
	Quality float64 `yaml:"quality" json:"quality"`
	// Source is the photo the profile was built from.
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
}

// MatchResult is the outcome of scoring one probe against the gallery.
type MatchResult struct {
	Identity   string
	EmployeeID string
	// Accuracy is the quality-weighted accuracy; it may exceed 100.
	Accuracy float64
	// RawAccuracy is round((1-d)*100) before weighting.
	RawAccuracy float64
	// Quality is the matched profile's unweighted quality.
	Quality  float64
	Distance float64
}

// Unknown returns the no-match result.
func Unknown() MatchResult {
	return MatchResult{Identity: UnknownIdentity}
}

// IsUnknown reports whether r carries no identity.
func (r MatchResult) IsUnknown() bool {
	return r.Identity == "" || r.Identity == UnknownIdentity
}
