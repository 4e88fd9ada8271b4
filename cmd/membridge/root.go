// Package membridge provides a standalone operator CLI for the write
// bridge/outbox/retrieval subsystem: it is not the host's own command
// surface, just a diagnostic tool for whoever runs the store side of this
// integration.
package membridge

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagEndpoint    string
	flagAgentID     string
	flagOutboxPath  string
	flagSessionPath string
	flagTimeoutMs   int
	flagVerbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "membridge",
	Short: "Operator CLI for the memory bridge",
	Long: `membridge is a diagnostic tool for the write bridge, outbox, and
retrieval pipeline that mirrors host sessions into a store over HTTP.

It talks to the same store endpoint the host's own memory backend talks to,
using the same outbox file and session link registry, so queue depth and
manual operations reflect the files a running host process uses; in-memory
counters are those of this CLI process, not of the host.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEndpoint, "endpoint", "", "store base URL (required)")
	rootCmd.PersistentFlags().StringVar(&flagAgentID, "agent-id", "default", "agent identifier this backend instance is scoped to")
	rootCmd.PersistentFlags().StringVar(&flagOutboxPath, "outbox-path", "", "outbox journal file (required)")
	rootCmd.PersistentFlags().StringVar(&flagSessionPath, "session-path", "", "session link registry file (required)")
	rootCmd.PersistentFlags().IntVar(&flagTimeoutMs, "timeout-ms", 0, "store HTTP timeout in milliseconds (0 = default)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(searchCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func requireFlags() error {
	switch {
	case flagEndpoint == "":
		return errRequired("--endpoint")
	case flagOutboxPath == "":
		return errRequired("--outbox-path")
	case flagSessionPath == "":
		return errRequired("--session-path")
	}
	return nil
}

type requiredFlagError struct{ flag string }

func (e requiredFlagError) Error() string { return e.flag + " is required" }

func errRequired(flag string) error { return requiredFlagError{flag: flag} }
