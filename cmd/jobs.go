package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/communityroots/resource-cli/internal/model"
	"github.com/communityroots/resource-cli/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect import job history",
	Long:  "Commands for listing, viewing, and summarizing import jobs.",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List import jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.JobFilter{
			Status:     model.JobStatus(status),
			SourceName: source,
			Limit:      limit,
		}

		jobs, err := st.ListJobs(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

// -- jobs show --

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show full details of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

// -- jobs stats --

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate job statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		source, _ := cmd.Flags().GetString("source")
		jobs, err := st.ListJobs(ctx, store.JobFilter{SourceName: source, Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "jobs stats")
		}

		stats := computeJobStats(jobs)
		formatJobStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "filter by job status (pending, running, paused, completed, failed)")
	jobsListCmd.Flags().String("source", "", "filter by source name")
	jobsListCmd.Flags().Int("limit", 50, "max number of jobs to display")

	jobsStatsCmd.Flags().String("source", "", "restrict stats to one source")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}

// jobStats holds aggregate statistics computed from a set of jobs.
type jobStats struct {
	Total      int
	Completed  int
	Failed     int
	Paused     int
	Active     int
	Records    int
	Approved   int
	Flagged    int
	Rejected   int
	AvgDurSecs float64
}

// computeJobStats computes aggregate statistics from a list of jobs.
func computeJobStats(jobs []model.ImportJob) jobStats {
	var s jobStats
	s.Total = len(jobs)

	var totalDur time.Duration
	var durCount int

	for _, j := range jobs {
		switch j.Status {
		case model.JobStatusCompleted:
			s.Completed++
			if j.CompletedAt != nil {
				totalDur += j.CompletedAt.Sub(j.CreatedAt)
				durCount++
			}
		case model.JobStatusFailed:
			s.Failed++
		case model.JobStatusPaused:
			s.Paused++
		default:
			s.Active++
		}
		s.Records += j.Counts.Processed
		s.Approved += j.Counts.Successful
		s.Flagged += j.Counts.Flagged
		s.Rejected += j.Counts.Rejected
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatJobsList writes a tabular list of jobs to w.
func formatJobsList(out io.Writer, jobs []model.ImportJob) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tPROCESSED\tAPPROVED\tFLAGGED\tCREATED")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%d\t%s\n",
			j.ID,
			j.SourceName,
			j.Status,
			j.Counts.Processed, j.Counts.Total,
			j.Counts.Successful,
			j.Counts.Flagged,
			j.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatJobStats writes aggregate statistics to w.
func formatJobStats(out io.Writer, s jobStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Jobs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "  completed:\t%d\n", s.Completed)
	_, _ = fmt.Fprintf(w, "  failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "  paused:\t%d\n", s.Paused)
	_, _ = fmt.Fprintf(w, "  active:\t%d\n", s.Active)
	_, _ = fmt.Fprintf(w, "Records processed:\t%d\n", s.Records)
	_, _ = fmt.Fprintf(w, "  auto-approved:\t%d\n", s.Approved)
	_, _ = fmt.Fprintf(w, "  flagged:\t%d\n", s.Flagged)
	_, _ = fmt.Fprintf(w, "  rejected:\t%d\n", s.Rejected)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg job duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}
