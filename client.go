package devrpc

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hexlantern/devrpc/codec"
)

// ClientSession is the caller-facing role over an Endpoint. Calls are
// serialized: the channel is a single ordered byte stream, so a second
// Invoke may not begin writing until the prior response frame has been
// fully consumed.
type ClientSession struct {
	mu      sync.Mutex
	ep      *Endpoint
	closing atomic.Bool
}

func NewClientSession(ep *Endpoint) *ClientSession {
	return &ClientSession{ep: ep}
}

// RemoteKey reports the identity key the server presented during the
// handshake.
func (s *ClientSession) RemoteKey() string {
	return s.ep.RemoteKey()
}

// Invoke calls a named remote procedure and blocks for its result. A
// *RemoteError return leaves the session usable; transport errors do not.
func (s *ClientSession) Invoke(proc string, args ...codec.Value) (codec.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return codec.Value{}, ErrShutdown
	}
	return s.ep.Invoke(proc, args)
}

// Close tears down the session's endpoint and channel. An Invoke blocked in
// another goroutine returns with an error rather than hanging.
func (s *ClientSession) Close() error {
	// Deliberately not under mu: Close must cut through a blocked Invoke.
	if !s.closing.CompareAndSwap(false, true) {
		return ErrShutdown
	}
	return s.ep.Close()
}

// Connect establishes a transport to addr ("host:port"), runs the key
// handshake with the client-tagged key, and returns a ready session. When
// Options.InitArgs is set, the initialization call is forwarded as the
// session's first call before Connect returns. Handshake rejections come
// back as ErrKeyNotFound, ErrKeyConflict, or ErrProtocolMismatch with the
// transport already closed.
func Connect(ctx context.Context, addr, key string, opts ...*Options) (*ClientSession, error) {
	opt, err := parseOptions(opts...)
	if err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: opt.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	fullKey := ClientKeyPrefix + key
	remoteKey, err := clientHandshake(conn, fullKey)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	logger := opt.logger()
	logger.Debug().Str("addr", addr).Str("peer", remoteKey).Msg("session established")

	ep := NewEndpoint(NewSockChannel(conn), fullKey, remoteKey, logger)
	sess := NewClientSession(ep)
	if len(opt.InitArgs) > 0 {
		if _, err := sess.Invoke(opt.InitProc, opt.InitArgs...); err != nil {
			_ = sess.Close()
			return nil, err
		}
	}
	return sess, nil
}
