// Package attrs defines telemetry attribute keys used for metrics, traces and logs
// across the lateral cache, so every middleware reports the same names.
package attrs

const (
	// AttrRegion is the cache region an operation targets.
	AttrRegion = "lateral.region"
	// AttrKeyLength is the length of the cache key in bytes.
	AttrKeyLength = "key.len"
	// AttrKeysCount is the number of keys an operation processed or returned.
	AttrKeysCount = "keys.count"
	// AttrResultCount is the number of entries returned by a read.
	AttrResultCount = "result.count"
	// AttrCommand is the wire command name (UPDATE, GET, ...).
	AttrCommand = "lateral.command"
	// AttrEndpoint is the remote host:port.
	AttrEndpoint = "lateral.endpoint"
	// AttrFound reports whether a read hit.
	AttrFound = "lateral.found"
	// AttrOutcome is one of applied, self_echo, filtered.
	AttrOutcome = "lateral.outcome"
)
