package loadtest

import "time"

// Config holds configuration for a load test run.
type Config struct {
	BaseURL string        // Base URL of the service
	Token   string        // Bearer token when auth is enabled
	Probes  int           // Number of probes to submit
	Dim     int           // Embedding dimension
	Workers int           // Number of concurrent submitters
	Timeout time.Duration // HTTP request timeout
	Drain   time.Duration // How long to wait for workers to catch up
	Verbose bool
}

// Stats holds run statistics.
type Stats struct {
	Generated    int
	Submitted    int
	Accepted     int
	Backpressure int
	Rejected     int
	Failed       int
	// Processed is the growth of the service's processed counter during the run.
	Processed uint64
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// SuccessRate is the accepted share of submitted probes in percent.
func (s Stats) SuccessRate() float64 {
	if s.Submitted == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Submitted) * percent
}

// Throughput is submitted probes per second.
func (s Stats) Throughput() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Submitted) / s.Duration.Seconds()
}

type probe struct {
	Embedding []float64 `json:"embedding"`
	Source    string    `json:"source"`
}

type ackResponse struct {
	Status  string `json:"status"`
	ProbeID string `json:"probe_id"`
}

type systemStatus struct {
	Started   bool   `json:"started"`
	Processed uint64 `json:"processed"`
}

const (
	percent      = 100
	pollInterval = 250 * time.Millisecond
)
