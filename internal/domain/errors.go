package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrInvalidEvent      = errors.New("domain: invalid event")
	ErrTelemetryDisabled = errors.New("domain: telemetry disabled")
	ErrDiscovery         = errors.New("domain: log store discovery failed")
	ErrQuery             = errors.New("domain: log store query failed")
	ErrNoLogsFound       = errors.New("domain: no logs found")
	ErrAmbiguousSession  = errors.New("domain: ambiguous session prefix")
)
