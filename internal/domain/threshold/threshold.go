// Package threshold maps enrollment quality to the minimum accuracy a match
// needs before it is accepted.
package threshold

import "math"

// Accuracy thresholds in whole percent.
const (
	High    = 65
	Medium  = 62
	Default = 60

	// Floor is the accuracy below which a detection is shown as Unknown.
	Floor = Default

	maxQuality = 10.0
)

// For returns the acceptance threshold for a profile quality. Better
// enrolled profiles must clear a higher bar.
func For(quality float64) int {
	if math.IsNaN(quality) {
		return Default
	}
	q := math.Min(quality, maxQuality)
	switch {
	case q > 8:
		return High
	case q > 5:
		return Medium
	default:
		return Default
	}
}

// Normalize clamps a weighted accuracy to 100 and truncates it to a whole
// percent. Comparing the result against an integer threshold is equivalent
// to comparing the unclamped value.
func Normalize(accuracy float64) int {
	if math.IsNaN(accuracy) || accuracy <= 0 {
		return 0
	}
	return int(math.Floor(math.Min(accuracy, 100)))
}

// Accept reports whether a weighted accuracy clears the threshold for quality.
func Accept(accuracy, quality float64) bool {
	return Normalize(accuracy) >= For(quality)
}
