package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/facesense/internal/adapters/http/api"
	"github.com/okian/facesense/internal/adapters/repository"
	"github.com/okian/facesense/internal/domain/model"
	"github.com/okian/facesense/internal/domain/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export attendance records for a date range",
	Long: `Report prints the attendance records between --from and --to (inclusive,
YYYY-MM-DD) as CSV or JSON, with the hours worked per record. Both default
to today.

With --summary weekly the seven days ending on --to (or today) are reduced
to one line: total records, average work hours, full days (8h or more) and
unique employees. With --summary monthly the month containing --to (or
today) is summarized per employee: days present, total and average hours.
An explicit --from overrides the summary window.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("from", "", "First date, YYYY-MM-DD")
	reportCmd.Flags().String("to", "", "Last date, YYYY-MM-DD")
	reportCmd.Flags().String("format", "csv", "Output format: csv or json")
	reportCmd.Flags().String("summary", "", "Summarize instead of listing: weekly or monthly")
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, err := setup(ctx, os.Stderr)
	if err != nil {
		return err
	}

	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	format, _ := cmd.Flags().GetString("format")
	summary, _ := cmd.Flags().GetString("summary")
	from, to, err = summaryRange(summary, from, to, time.Now())
	if err != nil {
		return err
	}

	repo, err := repository.Open(ctx, repository.Settings{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DBDSN,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
		Logger:       log.Named("gorm"),
	})
	if err != nil {
		return fmt.Errorf("open ledger storage: %w", err)
	}
	defer repo.Close()

	recs, err := repo.ListRange(ctx, from, to)
	if err != nil {
		return err
	}
	if summary != "" {
		return writeSummary(cmd.OutOrStdout(), summary, format, from, to, recs)
	}
	return writeReport(cmd.OutOrStdout(), format, recs)
}

// reportRange fills missing bounds: an empty from means today, an empty to means from.
func reportRange(from, to, today string) (string, string) {
	if from == "" {
		from = today
	}
	if to == "" {
		to = from
	}
	return from, to
}

// summaryRange resolves the window of a report. Without a summary it is
// reportRange; weekly and monthly windows end on to, or on now when empty.
func summaryRange(summary, from, to string, now time.Time) (string, string, error) {
	if summary == "" || from != "" {
		if summary != "" && summary != "weekly" && summary != "monthly" {
			return "", "", unknownSummary(summary)
		}
		f, t := reportRange(from, to, now.Format(model.DateLayout))
		return f, t, nil
	}
	end := now
	if to != "" {
		d, err := time.ParseInLocation(model.DateLayout, to, now.Location())
		if err != nil {
			return "", "", fmt.Errorf("invalid --to %q: use YYYY-MM-DD", to)
		}
		end = d
	}
	switch summary {
	case "weekly":
		f, t := report.WeekRange(end)
		return f, t, nil
	case "monthly":
		f, t := report.MonthRange(end)
		return f, t, nil
	default:
		return "", "", unknownSummary(summary)
	}
}

func unknownSummary(s string) error {
	return fmt.Errorf("unknown summary %q: use weekly or monthly", s)
}

func writeReport(w io.Writer, format string, recs []model.AttendanceRecord) error {
	switch format {
	case "csv":
		return api.WriteCSV(w, recs)
	case "json":
		return writeJSON(w, api.ToViews(recs))
	default:
		return unknownFormat(format)
	}
}

func writeSummary(w io.Writer, summary, format, from, to string, recs []model.AttendanceRecord) error {
	var v any
	switch summary {
	case "weekly":
		week := report.SummarizeWeek(from, to, recs)
		if format == "csv" {
			return report.WriteWeeklyCSV(w, week)
		}
		v = week
	case "monthly":
		months := report.SummarizeMonth(recs)
		if format == "csv" {
			return report.WriteMonthlyCSV(w, months)
		}
		v = map[string]any{"from": from, "to": to, "employees": months}
	default:
		return unknownSummary(summary)
	}
	if format != "json" {
		return unknownFormat(format)
	}
	return writeJSON(w, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func unknownFormat(f string) error {
	return fmt.Errorf("unknown format %q: use csv or json", f)
}
