package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/facesense/internal/loadtest"
	"github.com/okian/facesense/pkg/logger"
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Submit synthetic embeddings to a running server",
	Long: `loadtest posts random unit-length embeddings to /api/recognitions
with a pool of concurrent workers, then waits for the server's processed
counter to catch up. Random embeddings never match an employee, so the
ledger is left untouched.`,
	RunE: runLoadtest,
}

func init() {
	rootCmd.AddCommand(loadtestCmd)
	f := loadtestCmd.Flags()
	f.String("url", "http://localhost:5000", "Base URL of the service")
	f.String("token", "", "Bearer token when auth is enabled")
	f.Int("probes", 10000, "Number of probes to submit")
	f.Int("dim", 512, "Embedding dimension of the gallery")
	f.Int("workers", runtime.NumCPU()*2, "Concurrent submitters")
	f.Duration("timeout", 30*time.Second, "HTTP request timeout")
	f.Duration("drain", 2*time.Minute, "How long to wait for queued probes")
}

func runLoadtest(cmd *cobra.Command, _ []string) error {
	if err := logger.Init(logger.WithOutput(os.Stderr)); err != nil {
		return err
	}
	f := cmd.Flags()
	cfg := &loadtest.Config{}
	cfg.BaseURL, _ = f.GetString("url")
	cfg.Token, _ = f.GetString("token")
	cfg.Probes, _ = f.GetInt("probes")
	cfg.Dim, _ = f.GetInt("dim")
	cfg.Workers, _ = f.GetInt("workers")
	cfg.Timeout, _ = f.GetDuration("timeout")
	cfg.Drain, _ = f.GetDuration("drain")

	stats, err := loadtest.Run(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Submitted %d probes in %s (%.1f/s)\n", stats.Submitted, stats.Duration.Round(time.Millisecond), stats.Throughput())
	fmt.Fprintf(out, "  Accepted:     %d (%.1f%%)\n", stats.Accepted, stats.SuccessRate())
	fmt.Fprintf(out, "  Backpressure: %d\n", stats.Backpressure)
	fmt.Fprintf(out, "  Rejected:     %d\n", stats.Rejected)
	fmt.Fprintf(out, "  Failed:       %d\n", stats.Failed)
	fmt.Fprintf(out, "  Processed:    %d\n", stats.Processed)
	return nil
}
