package membridge

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Force an out-of-cycle outbox flush",
	Long: `flush calls Sync() on the backend, forcing whatever is currently
queued in the outbox to attempt delivery immediately instead of waiting for
the next periodic tick.`,
	RunE: runFlush,
}

func runFlush(cmd *cobra.Command, args []string) error {
	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.Sync(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	st, err := b.Status(ctx)
	if err != nil {
		return fmt.Errorf("flush: status after sync: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "flushed; outbox depth now %d\n", st.OutboxStats.Depth)
	return nil
}
