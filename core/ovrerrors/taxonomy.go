// Package ovrerrors implements the memory-bridge error taxonomy: Transport,
// Protocol, Policy, Config, and Validation tiers, each with its own retry
// and surfacing behavior.
package ovrerrors

import "fmt"

// Tier classifies an error for retry and surfacing purposes.
type Tier int

const (
	TierTransport Tier = iota
	TierProtocol
	TierPolicy
	TierConfig
	TierValidation
)

var tierNames = map[Tier]string{
	TierTransport:  "transport",
	TierProtocol:   "protocol",
	TierPolicy:     "policy",
	TierConfig:     "config",
	TierValidation: "validation",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// TierBehavior captures whether a tier is retriable and should be surfaced
// directly to the caller.
type TierBehavior struct {
	Retriable bool
	Surface   bool
}

// DefaultBehaviors mirrors the taxonomy in spec §7.
func DefaultBehaviors() map[Tier]TierBehavior {
	return map[Tier]TierBehavior{
		TierTransport:  {Retriable: true, Surface: false},
		TierProtocol:   {Retriable: false, Surface: true},
		TierPolicy:     {Retriable: false, Surface: true},
		TierConfig:     {Retriable: false, Surface: false},
		TierValidation: {Retriable: false, Surface: false},
	}
}

// Error is a tiered error value wrapping an underlying cause.
type Error struct {
	Tier Tier
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Tier, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Tier, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Behavior returns the default behavior for e's tier.
func (e *Error) Behavior() TierBehavior {
	return DefaultBehaviors()[e.Tier]
}

func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Tier: TierTransport, Op: op, Err: err}
}

func Protocol(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Tier: TierProtocol, Op: op, Err: err}
}

func Policy(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Tier: TierPolicy, Op: op, Err: err}
}

func Config(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Tier: TierConfig, Op: op, Err: err}
}

func Validation(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Tier: TierValidation, Op: op, Err: err}
}

// IsTier reports whether err is a tiered Error of tier t.
func IsTier(err error, t Tier) bool {
	var e *Error
	if ae, ok := err.(*Error); ok {
		e = ae
	} else {
		return false
	}
	return e.Tier == t
}
