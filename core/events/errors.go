package events

import "errors"

var (
	errInvalidRole   = errors.New("events: message event requires role user or assistant")
	errEmptyContent  = errors.New("events: event requires non-empty content")
	errMissingCause  = errors.New("events: commit event requires cause")
	errUnknownType   = errors.New("events: unknown event type")
)
