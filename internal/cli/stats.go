package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/raphaelgruber/shopdesk/internal/metrics"
	"github.com/raphaelgruber/shopdesk/internal/server"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics",
	Long: `Show server runtime statistics: store operation timings, counters and
the operator sessions currently connected.

Examples:
  shopdesk stats
  shopdesk stats --server http://support.internal:8585`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := apiClient.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printStats(cmd.OutOrStdout(), stats)
	return nil
}

// printStats displays server runtime statistics.
func printStats(w io.Writer, stats *server.StatsResponse) {
	m := stats.Metrics
	fmt.Fprintf(w, "Server Statistics (version %s, in-memory, since restart)\n", stats.Version)
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(w, "Uptime: %.1f seconds\n", m.UptimeSeconds)
	fmt.Fprintf(w, "Active sessions: %d\n", m.ActiveSessions)

	ops := []struct {
		name string
		op   *metrics.OperationSnapshot
	}{
		{"Snapshot Load", m.SnapshotLoad},
		{"Message Insert", m.MessageInsert},
		{"Summary Update", m.SummaryUpdate},
		{"Unread Clear", m.UnreadClear},
		{"DB Query", m.DBQuery},
	}
	for _, o := range ops {
		if o.op == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", o.name)
		printOpStats(w, o.op)
	}

	if len(m.Counters) > 0 {
		fmt.Fprintf(w, "\nCounters:\n")
		for _, name := range slices.Sorted(maps.Keys(m.Counters)) {
			fmt.Fprintf(w, "  %-20s %d\n", name, m.Counters[name])
		}
	}

	if len(stats.Sessions) > 0 {
		fmt.Fprintf(w, "\nSessions:\n")
		for _, s := range stats.Sessions {
			selected := s.Selected
			if selected == "" {
				selected = "-"
			}
			fmt.Fprintf(w, "  %s  %-16s %-24s since %s\n",
				s.ID, s.OperatorName, selected, s.StartedAt.Format(time.RFC3339))
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Calls: %d, Failures: %d, Total: %dms\n", op.Count, op.Failures, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}
