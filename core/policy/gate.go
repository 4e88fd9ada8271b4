// Package policy implements C7: the FS Write Policy Gate, which normalizes
// uris and enforces allow/deny/protected rules before any mutating fs call
// reaches the store.
package policy

import (
	"fmt"
	"strings"

	"github.com/openviking/membridge/core/memconfig"
	"github.com/openviking/membridge/core/ovrerrors"
)

const scheme = "viking://"

// Gate vets fs-mutation requests against a FSWriteConfig (spec §4.7).
type Gate struct {
	cfg memconfig.FSWriteConfig
}

// New builds a Gate over cfg.
func New(cfg memconfig.FSWriteConfig) *Gate {
	return &Gate{cfg: cfg}
}

func denied(rule string) error {
	return ovrerrors.Policy("fs-write", fmt.Errorf("fs write denied: %s", rule))
}

// normalize strips trailing slashes from non-root uris and requires the
// viking:// scheme.
func normalize(uri string) (string, error) {
	if !strings.HasPrefix(uri, scheme) {
		return "", denied(fmt.Sprintf("uri %q must start with %q", uri, scheme))
	}
	root := uri == scheme
	if !root {
		uri = strings.TrimRight(uri, "/")
	}
	return uri, nil
}

// prefixMatches reports whether prefix matches uri per spec §4.7 rule 6/7:
// prefix == uri, or uri starts with prefix + "/", or prefix is the literal
// "viking://" scheme (which matches anything).
func prefixMatches(prefix, uri string) bool {
	if prefix == scheme {
		return true
	}
	if prefix == uri {
		return true
	}
	return strings.HasPrefix(uri, prefix+"/")
}

func anyPrefixMatches(prefixes []string, uri string) bool {
	for _, p := range prefixes {
		if prefixMatches(p, uri) {
			return true
		}
	}
	return false
}

// vet runs checks 1, 3-7 against uri (checks 2 and the cross-uri distinct
// check for mv are caller-specific and run by Mkdir/Rm/Mv below).
func (g *Gate) vet(uri string) (string, error) {
	if !g.cfg.Enabled {
		return "", denied("fs write is disabled")
	}

	normalized, err := normalize(uri)
	if err != nil {
		return "", err
	}

	if len(g.cfg.AllowUriPrefixes) == 0 {
		return "", denied("no allow_uri_prefixes configured")
	}

	for _, protected := range g.cfg.ProtectedUris {
		if protected == normalized {
			return "", denied(fmt.Sprintf("uri %q is protected", normalized))
		}
	}

	if anyPrefixMatches(g.cfg.DenyUriPrefixes, normalized) {
		return "", denied(fmt.Sprintf("uri %q matches a deny_uri_prefixes entry", normalized))
	}

	if !anyPrefixMatches(g.cfg.AllowUriPrefixes, normalized) {
		return "", denied(fmt.Sprintf("uri %q does not match any allow_uri_prefixes entry", normalized))
	}

	return normalized, nil
}

// Mkdir vets a directory-creation target.
func (g *Gate) Mkdir(uri string) (string, error) {
	return g.vet(uri)
}

// Rm vets a delete target. Check order matches spec §4.7: enabled (1),
// then recursive requires allow_recursive_rm (2), before normalization and
// the allow/deny/protected checks (3-7) — so a disallowed recursive rm
// fails before any uri-shape work, let alone any C1 call.
func (g *Gate) Rm(uri string, recursive bool) (string, error) {
	if !g.cfg.Enabled {
		return "", denied("fs write is disabled")
	}
	if recursive && !g.cfg.AllowRecursiveRm {
		return "", denied("recursive rm requires allow_recursive_rm")
	}
	return g.vet(uri)
}

// Mv vets both endpoints of a move; the endpoints must normalize to
// distinct uris.
func (g *Gate) Mv(fromURI, toURI string) (string, string, error) {
	normalizedFrom, err := g.vet(fromURI)
	if err != nil {
		return "", "", err
	}
	normalizedTo, err := g.vet(toURI)
	if err != nil {
		return "", "", err
	}
	if normalizedFrom == normalizedTo {
		return "", "", denied("source and destination must be distinct")
	}
	return normalizedFrom, normalizedTo, nil
}
