package membridge

import (
	"github.com/openviking/membridge/core/backend"
	"github.com/openviking/membridge/core/memconfig"
)

// openBackend wires one OpenVikingBackend from the root command's flags.
// Every subcommand opens its own instance rather than sharing a registry:
// this is a short-lived CLI process, not the long-running host, so there is
// nothing to memoize across calls.
func openBackend() (*backend.OpenVikingBackend, error) {
	if err := requireFlags(); err != nil {
		return nil, err
	}

	cfg := memconfig.Config{
		Enabled:   true,
		DualWrite: true,
		Endpoint:  flagEndpoint,
		TimeoutMs: flagTimeoutMs,
		Outbox: memconfig.OutboxConfig{
			Enabled: true,
			Path:    flagOutboxPath,
		},
	}

	return backend.New(cfg, flagAgentID, flagEndpoint, flagSessionPath, newLogger())
}
