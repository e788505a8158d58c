package provision

import (
	"time"

	"github.com/fatih/color"

	"mac-bootstrap/internal/logger"
)

var statusColors = map[Status]*color.Color{
	StatusSkipped: color.New(color.FgHiBlack),
	StatusApplied: color.New(color.FgGreen),
	StatusFailed:  color.New(color.FgRed, color.Bold),
}

// PrintSummary writes one line per step followed by the totals.
func PrintSummary(r *Report) {
	logger.Print(color.New(color.Bold), "\nSummary (run %s, %s)", r.RunID(), r.FinishedAt().Sub(r.StartedAt()).Round(time.Second))
	for _, res := range r.results {
		logger.Print(statusColors[res.Status], "  %-8s %s", res.Status, res.Step)
	}
	logger.Print(color.New(color.Bold), "%d applied, %d skipped, %d failed", r.Count(StatusApplied), r.Count(StatusSkipped), r.Count(StatusFailed))
	if r.Halted() {
		logger.Error("Run stopped early: %v", r.Err())
	}
}
