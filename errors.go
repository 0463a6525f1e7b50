package devrpc

import "errors"

var ErrShutdown = errors.New("devrpc: connection is shut down")

// Handshake rejections. Each maps to a distinct reply code so callers can
// tell a bad key from a stale one without string matching.
var (
	ErrKeyNotFound      = errors.New("devrpc: no server matches the requested key")
	ErrKeyConflict      = errors.New("devrpc: key is already claimed by a live connection")
	ErrProtocolMismatch = errors.New("devrpc: remote peer does not speak this protocol")
)

// TransportError reports an I/O failure or torn frame on the underlying
// channel. It is fatal to the endpoint that observed it; the connection is
// torn down and not retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "devrpc: transport error during " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError carries the message of an error raised while executing a
// procedure on the remote side. It is delivered as data, not as a transport
// fault: the failing call reports it locally and the connection remains
// usable for further calls.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string { return "devrpc: remote error: " + e.Msg }
