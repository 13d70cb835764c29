package model

import "time"

// BoundingBox is a detected face region in frame pixel coordinates.
type BoundingBox struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Area returns the box area in pixels.
func (b BoundingBox) Area() int { return b.Width * b.Height }

// Probe is one face embedding waiting to be recognized.
type Probe struct {
	ID         string
	Source     string
	Embedding  Embedding
	Box        BoundingBox
	CapturedAt time.Time
}

// Decision is what the pipeline concluded for a probe.
type Decision struct {
	ProbeID   string
	Match     MatchResult
	Threshold int
	// Accuracy is min(weighted accuracy, 100) truncated to a whole percent.
	Accuracy int
	// Display is the label shown to operators; Unknown below the floor.
	Display  string
	Outcome  string
	Accepted bool
	Status   Status
	Recorded bool
}
