package transport

import "github.com/hyp3rd/lateralcache/internal/sentinel"

// OpError reports a failed transport operation against one remote endpoint.
// errors.Is matches both Kind (a sentinel such as sentinel.ErrSend) and the underlying cause.
type OpError struct {
	Op       string
	Endpoint string
	Kind     error
	Err      error
}

func (e *OpError) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Op + "(" + e.Endpoint + "): "
	if e.Kind != nil {
		msg += e.Kind.Error()
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap exposes the kind and the cause.
func (e *OpError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}

	if e.Err != nil {
		out = append(out, e.Err)
	}

	return out
}

func connectError(endpoint string, err error) error {
	return &OpError{Op: "dial", Endpoint: endpoint, Kind: sentinel.ErrConnect, Err: err}
}

func sendError(op, endpoint string, err error) error {
	return &OpError{Op: op, Endpoint: endpoint, Kind: sentinel.ErrSend, Err: err}
}
