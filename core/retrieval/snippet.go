package retrieval

import (
	"context"
	"fmt"

	"github.com/openviking/membridge/core/memconfig"
)

// fetchLayer resolves one content layer for c, preferring the inline field
// the search response already carried over an extra HTTP call.
func (p *Pipeline) fetchLayer(ctx context.Context, c candidate, layer string) (string, error) {
	switch layer {
	case "l0":
		if c.abstract != "" {
			return c.abstract, nil
		}
		if c.matchReason != "" {
			return c.matchReason, nil
		}
		return p.layers.Abstract(ctx, c.uri)
	case "l1":
		if c.overview != "" {
			return c.overview, nil
		}
		return p.layers.Overview(ctx, c.uri)
	case "l2":
		return p.layers.Read(ctx, c.uri)
	default:
		return "", nil
	}
}

// layerFallback tries each layer in order and returns the first non-empty
// result, degrading silently past transport failures (spec §7: the read
// pipeline never throws on a snippet-load failure).
func (p *Pipeline) layerFallback(ctx context.Context, c candidate, order []string) (string, string) {
	for _, layer := range order {
		text, err := p.fetchLayer(ctx, c, layer)
		if err == nil && text != "" {
			return text, layer
		}
	}
	return "", ""
}

func progressiveThreshold(maxSnippetChars int) int {
	return maxInt(40, maxSnippetChars/6)
}

// resolveSnippet implements phase H step 1: pick a layer per readLayer mode.
func (p *Pipeline) resolveSnippet(ctx context.Context, c candidate) (string, string) {
	switch p.cfg.ReadLayer {
	case memconfig.LayerL2:
		return p.layerFallback(ctx, c, []string{"l2", "l1", "l0"})
	case memconfig.LayerL1:
		return p.layerFallback(ctx, c, []string{"l1", "l0", "l2"})
	case memconfig.LayerL0:
		return p.layerFallback(ctx, c, []string{"l0", "l1", "l2"})
	default: // progressive
		return p.resolveProgressive(ctx, c)
	}
}

func (p *Pipeline) resolveProgressive(ctx context.Context, c candidate) (string, string) {
	threshold := progressiveThreshold(p.cfg.MaxSnippetChars)

	overview, _ := p.fetchLayer(ctx, c, "l1")
	if len(overview) >= threshold {
		return overview, "l1"
	}
	abstract, _ := p.fetchLayer(ctx, c, "l0")
	if len(abstract) >= threshold {
		return abstract, "l0"
	}
	read, _ := p.fetchLayer(ctx, c, "l2")
	if read != "" {
		return read, "l2"
	}
	if len(overview) >= len(abstract) && overview != "" {
		return overview, "l1"
	}
	if abstract != "" {
		return abstract, "l0"
	}
	return "", ""
}

func trimToChars(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// trimWithEllipsis trims s to at most limit bytes, replacing the final 3
// bytes with "..." when limit allows it (spec §4.6 phase H step 5).
func trimWithEllipsis(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	if limit >= 4 {
		return s[:limit-3] + "..."
	}
	return s[:limit]
}

// assembleSnippets implements phase H in full.
func (p *Pipeline) assembleSnippets(ctx context.Context, selected []candidate, relationExpansionOn bool) ([]Result, Layering, int, int) {
	remaining := p.cfg.MaxInjectedChars
	layerCounts := map[string]int{}
	var results []Result
	injectedChars := 0
	emptySkips := 0
	truncatedByBudget := false
	budgetDrops := 0

	for i, c := range selected {
		text, layerUsed := p.resolveSnippet(ctx, c)
		text = trimToChars(text, p.cfg.MaxSnippetChars)

		if text != "" {
			prefix := ""
			if relationExpansionOn {
				if c.origin == "relation" {
					prefix = fmt.Sprintf("[relation-expanded d%d from %s] ", c.depth, c.anchorURI)
				} else {
					prefix = "[direct-hit] "
				}
			}
			text = trimToChars(prefix+text, p.cfg.MaxSnippetChars)
		}

		if text == "" {
			emptySkips++
			continue
		}

		if remaining <= 0 {
			truncatedByBudget = true
			budgetDrops = len(selected) - i
			break
		}

		if len(text) > remaining {
			text = trimWithEllipsis(text, remaining)
			if text == "" {
				truncatedByBudget = true
				budgetDrops = len(selected) - i
				break
			}
		}

		results = append(results, Result{
			Path:      c.uri,
			StartLine: 1,
			EndLine:   1,
			Score:     c.score,
			Snippet:   text,
			Source:    c.origin,
		})
		remaining -= len(text)
		injectedChars += len(text)
		layerCounts[layerUsed]++
	}

	layering := Layering{
		RequestedLayer:    p.cfg.ReadLayer,
		Entries:           len(results),
		SnippetChars:      p.cfg.MaxSnippetChars,
		InjectedChars:     injectedChars,
		LayerCounts:       layerCounts,
		TruncatedByBudget: truncatedByBudget,
	}
	return results, layering, emptySkips, budgetDrops
}
