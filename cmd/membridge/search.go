package membridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openviking/membridge/core/retrieval"
	"github.com/spf13/cobra"
)

var (
	searchLimit    int
	searchMinScore float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run the read pipeline for a query and print the resulting snippets",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results (0 = configured default)")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum relevance score (0 = no floor)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := retrieval.Options{MaxResults: searchLimit}
	if searchMinScore > 0 {
		opts.MinScore = &searchMinScore
	}

	results, err := b.Search(ctx, strings.Join(args, " "), opts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "%d. %s:%d-%d  score=%.3f  source=%s\n", i+1, r.Path, r.StartLine, r.EndLine, r.Score, r.Source)
		fmt.Fprintln(out, indent(r.Snippet, "    "))
	}
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
