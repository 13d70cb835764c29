package loadtest

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/okian/facesense/pkg/logger"
)

// generate builds n unit-length random embeddings. Each run gets its own
// source tag so its probes can be told apart in the recent decisions.
func generate(ctx context.Context, cfg *Config, stats *Stats) ([]probe, error) {
	logger.Get().Info(ctx, "generating probes", logger.Int("probes", cfg.Probes), logger.Int("dim", cfg.Dim))

	source := "loadtest-" + uuid.NewString()[:8]
	out := make([]probe, cfg.Probes)
	for i := range out {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generation cancelled: %w", err)
		}
		out[i] = probe{Embedding: unitVector(cfg.Dim), Source: source}
	}
	stats.Generated = len(out)
	return out, nil
}

func unitVector(dim int) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = rand.NormFloat64()
	}
	if n := floats.Norm(v, 2); n > 0 {
		floats.Scale(1/n, v)
	}
	return v
}
