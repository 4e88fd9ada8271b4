package policy_test

import (
	"testing"

	"github.com/openviking/membridge/core/memconfig"
	"github.com/openviking/membridge/core/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() memconfig.FSWriteConfig {
	return memconfig.FSWriteConfig{
		Enabled:          true,
		AllowUriPrefixes: []string{"viking://resources/docs"},
		ProtectedUris:    []string{"viking://resources/docs/protected"},
	}
}

func TestGate_MkdirSucceedsUnderAllowedPrefix(t *testing.T) {
	g := policy.New(baseConfig())
	normalized, err := g.Mkdir("viking://resources/docs/new")
	require.NoError(t, err)
	assert.Equal(t, "viking://resources/docs/new", normalized)
}

func TestGate_MvToProtectedFails(t *testing.T) {
	g := policy.New(baseConfig())
	_, _, err := g.Mv("viking://resources/docs/a", "viking://resources/docs/protected")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protected")
}

func TestGate_RecursiveRmWithoutFlagFails(t *testing.T) {
	g := policy.New(baseConfig())
	_, err := g.Rm("viking://resources/docs/old", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allow_recursive_rm")
}

func TestGate_MvSameUriFailsDistinctCheck(t *testing.T) {
	cfg := baseConfig()
	g := policy.New(cfg)
	_, _, err := g.Mv("viking://resources/docs/a/", "viking://resources/docs/a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distinct")
}

func TestGate_DenyPrefixWins(t *testing.T) {
	cfg := baseConfig()
	cfg.DenyUriPrefixes = []string{"viking://resources/docs/secret"}
	g := policy.New(cfg)
	_, err := g.Mkdir("viking://resources/docs/secret/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deny_uri_prefixes")
}

func TestGate_DisabledFailsImmediately(t *testing.T) {
	cfg := baseConfig()
	cfg.Enabled = false
	g := policy.New(cfg)
	_, err := g.Mkdir("viking://resources/docs/new")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestGate_NoAllowPrefixesConfiguredFails(t *testing.T) {
	cfg := baseConfig()
	cfg.AllowUriPrefixes = nil
	g := policy.New(cfg)
	_, err := g.Mkdir("viking://resources/docs/new")
	require.Error(t, err)
}
