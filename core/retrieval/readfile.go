package retrieval

import (
	"context"
	"strings"
)

// normalizeReadPath implements the readFile uri normalization rule: a
// viking://-prefixed input passes through unchanged; an absolute path is
// rooted under viking://resource; anything else is joined under the same
// root.
func normalizeReadPath(relPath string) string {
	if strings.HasPrefix(relPath, "viking://") {
		return relPath
	}
	if strings.HasPrefix(relPath, "/") {
		return "viking://resource" + relPath
	}
	return "viking://resource/" + relPath
}

// ReadFile implements the direct read-file path for host requests: it
// normalizes relPath to a viking:// uri, reads full content via C1, and
// optionally slices to a 1-indexed [from, from+lines) window.
func (p *Pipeline) ReadFile(ctx context.Context, relPath string, from, lines int) (text string, path string, err error) {
	uri := normalizeReadPath(relPath)
	full, err := p.layers.Read(ctx, uri)
	if err != nil {
		return "", uri, err
	}
	if lines <= 0 {
		return full, uri, nil
	}
	if from <= 0 {
		from = 1
	}

	allLines := strings.Split(full, "\n")
	start := minInt(from-1, len(allLines))
	end := minInt(start+lines, len(allLines))
	if start >= end {
		return "", uri, nil
	}
	return strings.Join(allLines[start:end], "\n"), uri, nil
}
