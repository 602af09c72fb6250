package bench

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

// Render writes the comparison tables for report to w.
func Render(w io.Writer, report Report) error {
	successful := 0
	for _, r := range report.Results {
		if r.Success {
			successful++
		}
	}
	if successful == 0 {
		_, _ = red.Fprintln(w, "No runner completed successfully!")
		printFailed(w, report.Results)
		return fmt.Errorf("no runner completed successfully")
	}
	fastest := report.Results[0].TotalTime

	printSectionHeader(w, "THROUGHPUT COMPARISON",
		fmt.Sprintf("%d tasks per runner, ranked by wall time", report.Tasks))
	if report.SingleTask > 0 {
		fmt.Fprintf(w, "Single task on one thread: %s\n\n", FormatLatency(report.SingleTask))
	}

	throughput := tablewriter.NewWriter(w)
	throughput.Header("Rank", "Runner", "Total Time", "Tasks/sec", "vs Fastest", "Correct")
	for _, r := range report.Results {
		if !r.Success {
			continue
		}
		_ = throughput.Append(
			rankIcon(r.Rank),
			r.Runner,
			FormatLatency(r.TotalTime),
			FormatNumber(int(r.TasksPerSec)),
			vsFastest(r.TotalTime, fastest, r.Rank),
			correctness(r, report.Reference),
		)
	}
	if err := throughput.Render(); err != nil {
		return fmt.Errorf("render throughput table: %w", err)
	}

	printSectionHeader(w, "LATENCY COMPARISON",
		"Time each task spent executing (lower is better)")

	latency := tablewriter.NewWriter(w)
	latency.Header("Rank", "Runner", "Avg", "P50", "P95", "P99")
	for _, r := range report.Results {
		if !r.Success {
			continue
		}
		_ = latency.Append(
			rankIcon(r.Rank),
			r.Runner,
			FormatLatency(r.AvgLatency),
			FormatLatency(r.P50Latency),
			FormatLatency(r.P95Latency),
			FormatLatency(r.P99Latency),
		)
	}
	if err := latency.Render(); err != nil {
		return fmt.Errorf("render latency table: %w", err)
	}

	printFailed(w, report.Results)
	fmt.Fprintln(w)
	_, _ = green.Fprintf(w, "Completed %d/%d runners\n", successful, len(report.Results))
	return nil
}

func correctness(r Result, reference string) string {
	switch {
	case reference == "":
		return "-"
	case r.Runner == reference:
		return "reference"
	case r.Correct:
		return "yes"
	case r.Failed > 0:
		return fmt.Sprintf("%d failed", r.Failed)
	default:
		return "MISMATCH"
	}
}

func printSectionHeader(w io.Writer, title string, descriptions ...string) {
	fmt.Fprintln(w)
	_, _ = bold.Fprintln(w, "═══════════════════════════════════════════════════════════")
	_, _ = bold.Fprintln(w, title)
	_, _ = bold.Fprintln(w, "═══════════════════════════════════════════════════════════")
	for _, desc := range descriptions {
		fmt.Fprintln(w, desc)
	}
	fmt.Fprintln(w)
}

func printFailed(w io.Writer, results []Result) {
	header := false
	for _, r := range results {
		if r.Success && r.Failed == 0 {
			continue
		}
		if !header {
			fmt.Fprintln(w)
			_, _ = yellow.Fprintln(w, "Failures:")
			header = true
		}
		msg := r.Error
		if r.Success {
			msg = fmt.Sprintf("%d of the tasks failed, first: %s", r.Failed, r.Error)
		}
		_, _ = red.Fprintf(w, "  • %s: %s\n", r.Runner, msg)
	}
}

// WriteJSON writes report to w as indented JSON.
func WriteJSON(w io.Writer, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize to JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func populateStringFields(results []Result) {
	for i := range results {
		r := &results[i]
		r.TotalTimeStr = FormatLatency(r.TotalTime)
		r.AvgLatencyStr = FormatLatency(r.AvgLatency)
		r.P50LatencyStr = FormatLatency(r.P50Latency)
		r.P95LatencyStr = FormatLatency(r.P95Latency)
		r.P99LatencyStr = FormatLatency(r.P99Latency)
	}
}
