// Package sentinel provides standardized error definitions for the lateral cache.
// This package centralizes the error taxonomy used across the transport, the peer
// managers and the local stores, so callers can classify failures with errors.Is.
//
// The errors defined here cover:
// - Connection establishment and I/O failures on established peer connections
// - Malformed or truncated wire frames
// - Invalid configuration (endpoints, serializers, empty parameters)
// - Lifecycle misuse (sending on a disposed connection, serving on a closed listener)
//
// All errors are created using the ewrap package to provide enhanced error
// wrapping and context capabilities.
package sentinel

import (
	"github.com/hyp3rd/ewrap"
)

var (
	// ErrConnect is returned when dialing a remote peer fails or does not complete in time.
	// It triggers a zombie substitution and is never surfaced to cache operation callers.
	ErrConnect = ewrap.New("lateral connect failed")

	// ErrSend is returned when writing to, or reading a response from, an established
	// connection fails. The connection is invalidated.
	ErrSend = ewrap.New("lateral send failed")

	// ErrDecode is returned when a frame is truncated or its body cannot be decoded.
	ErrDecode = ewrap.New("lateral decode failed")

	// ErrSenderClosed is returned by a sender that was disposed or invalidated by a previous I/O error.
	ErrSenderClosed = ewrap.New("lateral sender closed")

	// ErrInvalidEndpoint is returned when a peer endpoint is not a valid host:port pair.
	ErrInvalidEndpoint = ewrap.New("invalid endpoint")

	// ErrListenerClosed is returned when an operation requires a running listener.
	ErrListenerClosed = ewrap.New("lateral listener closed")

	// ErrFrameTooLarge is returned when a frame header announces a body bigger than the codec limit.
	ErrFrameTooLarge = ewrap.New("frame too large")

	// ErrUnknownCommand is returned when a message carries a command the listener does not understand.
	ErrUnknownCommand = ewrap.New("unknown command")

	// ErrNilStore is returned when a listener or cache is built without a local store.
	ErrNilStore = ewrap.New("nil local store")

	// ErrNilClient is returned when a nil redis client is passed to the redis store.
	ErrNilClient = ewrap.New("nil client")

	// ErrParamCannotBeEmpty is returned when a parameter cannot be empty.
	ErrParamCannotBeEmpty = ewrap.New("param cannot be empty")

	// ErrSerializerNotFound is returned when a serializer is not found.
	ErrSerializerNotFound = ewrap.New("serializer not found")

	// ErrInvalidConfig is returned when a configuration attribute is out of range.
	ErrInvalidConfig = ewrap.New("invalid lateral configuration")

	// ErrMgmtHTTPShutdownTimeout is returned when the management HTTP server fails to shutdown before context deadline.
	ErrMgmtHTTPShutdownTimeout = ewrap.New("management http shutdown timeout")
)
