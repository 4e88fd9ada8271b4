package membridge

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show outbox depth/health and write-bridge commit counters",
	Long: `status opens the outbox journal and session link registry named by
--outbox-path/--session-path, pings the store, and reports a Status()
snapshot of this CLI process: queue depth and item state come from the
journal, while the outbox totals and write-bridge counters count only what
this process itself did.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := b.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	out := cmd.OutOrStdout()
	if st.Healthy {
		fmt.Fprintln(out, "store: healthy")
	} else {
		fmt.Fprintf(out, "store: unreachable (%s)\n", st.HealthError)
	}

	fmt.Fprintln(out, "\noutbox:")
	fmt.Fprintf(out, "  depth:          %s\n", humanize.Comma(int64(st.OutboxStats.Depth)))
	fmt.Fprintf(out, "  items ready:    %s\n", humanize.Comma(int64(st.OutboxStats.ItemsReady)))
	fmt.Fprintf(out, "  oldest item:    %s\n", st.OutboxStats.OldestItemAge.Round(time.Second))
	fmt.Fprintf(out, "  total enqueued: %s\n", humanize.Comma(int64(st.OutboxStats.TotalEnqueued)))
	fmt.Fprintf(out, "  total sent:     %s\n", humanize.Comma(int64(st.OutboxStats.TotalSent)))
	fmt.Fprintf(out, "  total failed:   %s\n", humanize.Comma(int64(st.OutboxStats.TotalFailed)))
	if st.OutboxStats.LastError != "" {
		fmt.Fprintf(out, "  last error:     %s\n", st.OutboxStats.LastError)
	}

	fmt.Fprintln(out, "\nwrite bridge:")
	fmt.Fprintf(out, "  events queued:   %s (messages %s, tool results %s, commits %s)\n",
		humanize.Comma(st.BridgeStats.EventsQueued),
		humanize.Comma(st.BridgeStats.MessageEventsQueued),
		humanize.Comma(st.BridgeStats.ToolEventsQueued),
		humanize.Comma(st.BridgeStats.CommitEventsQueued))
	fmt.Fprintf(out, "  commits:         sync %s, async %s (session_end %s, reset %s, periodic/msgs %s, periodic/time %s, manual %s)\n",
		humanize.Comma(st.BridgeStats.SyncCommits),
		humanize.Comma(st.BridgeStats.AsyncCommits),
		humanize.Comma(st.BridgeStats.SessionEndCommits),
		humanize.Comma(st.BridgeStats.ResetCommits),
		humanize.Comma(st.BridgeStats.PeriodicCommitsByMessage),
		humanize.Comma(st.BridgeStats.PeriodicCommitsByTime),
		humanize.Comma(st.BridgeStats.ManualCommits))
	if st.BridgeStats.LastError != "" {
		fmt.Fprintf(out, "  last error:      %s\n", st.BridgeStats.LastError)
	}
	if !st.BridgeStats.LastEventQueuedAt.IsZero() {
		fmt.Fprintf(out, "  last event:      %s\n", humanize.Time(st.BridgeStats.LastEventQueuedAt))
	}
	if !st.LastSearchedAt.IsZero() {
		fmt.Fprintf(out, "  last search:     %s\n", humanize.Time(st.LastSearchedAt))
	}

	return nil
}
