package devrpc

import "net"

// Key recorded as the local identity of server loops entered without a
// handshake, matching the pre-authenticated bridging entry points.
const serverLoopKey = "server-loop"

// Serve runs a server loop over an established stream socket, assuming the
// handshake has already completed or the transport is pre-authenticated.
// It blocks until the peer shuts down (nil) or a transport fault occurs.
func Serve(conn net.Conn, reg *Registry, opts ...*Options) error {
	opt, err := parseOptions(opts...)
	if err != nil {
		return err
	}
	ep := NewEndpoint(NewSockChannel(conn), serverLoopKey, "", opt.logger())
	return ep.ServeLoop(reg)
}

// ServeIO runs a server loop over an explicit send/receive procedure pair,
// for transports that are not sockets. Semantics match Serve.
func ServeIO(send, recv func(p []byte) (int, error), reg *Registry, opts ...*Options) error {
	opt, err := parseOptions(opts...)
	if err != nil {
		return err
	}
	ep := NewEndpoint(NewCallbackChannel(send, recv), serverLoopKey, "", opt.logger())
	return ep.ServeLoop(reg)
}
