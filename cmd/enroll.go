package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/facesense/internal/adapters/embedder"
	"github.com/okian/facesense/internal/domain/gallery"
	"github.com/okian/facesense/internal/enroll"
	"github.com/okian/facesense/pkg/logger"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [photos-dir]",
	Short: "Build the face gallery from employee photos",
	Long: `Enroll reads every photo in the employee photos directory, derives the
name and employee ID from the file name (jane_doe_1042.jpg), computes
embeddings for several variations of each face and writes the gallery.

The running server picks the new gallery up on its next start.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.Flags().Int("concurrency", 4, "Photos processed in parallel")
	enrollCmd.Flags().String("out", "", "Gallery output path, overrides FACESENSE_GALLERY_PATH")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, log, err := setup(ctx, os.Stderr)
	if err != nil {
		return err
	}

	dir := cfg.EmployeePhotosDir
	if len(args) == 1 {
		dir = args[0]
	}
	out := cfg.GalleryPath
	if v, _ := cmd.Flags().GetString("out"); v != "" {
		out = v
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	client := embedder.New(cfg.EmbedderURL, embedder.WithTimeout(cfg.EmbedderTimeout()))
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("embedder unavailable at %s: %w", cfg.EmbedderURL, err)
	}

	e := enroll.New(client,
		enroll.WithConcurrency(concurrency),
		enroll.WithProgress(os.Stderr),
		enroll.WithLogger(log.Named("enroll")),
	)
	g, report, err := e.Run(ctx, dir)
	if err != nil {
		return err
	}
	for path, ferr := range report.Failures {
		log.Warn(ctx, "photo skipped", logger.String("photo", path), logger.Error(ferr))
	}
	if err := gallery.Save(out, g, time.Now()); err != nil {
		return err
	}

	st := g.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "Enrolled %d of %d photos into %s\n", report.Enrolled, report.Photos, out)
	fmt.Fprintf(cmd.OutOrStdout(), "  Variations: %d\n", st.Variations)
	fmt.Fprintf(cmd.OutOrStdout(), "  Average quality: %.2f\n", st.AverageQuality)
	return nil
}
