package devrpc

import (
	"io"
	"net"
	"sync"
)

// Channel is the duplex byte stream an Endpoint runs over. Send and Recv
// may transfer fewer bytes than requested; callers loop until the exact
// count is satisfied. Recv returning (0, nil) or (0, io.EOF) on a blocking
// transport signals orderly peer shutdown.
//
// A Channel is owned exclusively by one Endpoint. Close is best-effort:
// implementations discard any error raised while releasing the transport,
// and Close must unblock a Recv that is in flight.
type Channel interface {
	Send(p []byte) (int, error)
	Recv(p []byte) (int, error)
	Close() error
}

// SockChannel adapts a bidirectional stream socket to the Channel contract.
type SockChannel struct {
	conn net.Conn
	once sync.Once
}

func NewSockChannel(conn net.Conn) *SockChannel {
	return &SockChannel{conn: conn}
}

func (c *SockChannel) Send(p []byte) (int, error) { return c.conn.Write(p) }
func (c *SockChannel) Recv(p []byte) (int, error) { return c.conn.Read(p) }

// Close releases the socket once and discards any close error; teardown
// must never itself fail.
func (c *SockChannel) Close() error {
	c.once.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
	return nil
}

// CallbackChannel bridges a transport that is not a socket, such as a
// host-side link over a framed debug connection, using a caller-supplied
// send/receive procedure pair. Both follow the short-operation contract.
type CallbackChannel struct {
	send  func(p []byte) (int, error)
	recv  func(p []byte) (int, error)
	close func() error
	once  sync.Once
}

func NewCallbackChannel(send, recv func(p []byte) (int, error)) *CallbackChannel {
	return &CallbackChannel{send: send, recv: recv}
}

// OnClose registers an optional release hook invoked once when the channel
// is closed. Its error is discarded.
func (c *CallbackChannel) OnClose(fn func() error) *CallbackChannel {
	c.close = fn
	return c
}

func (c *CallbackChannel) Send(p []byte) (int, error) { return c.send(p) }
func (c *CallbackChannel) Recv(p []byte) (int, error) { return c.recv(p) }

func (c *CallbackChannel) Close() error {
	c.once.Do(func() {
		if c.close != nil {
			_ = c.close()
		}
	})
	return nil
}

// channelReader presents a Channel as an io.Reader for the codec layer.
// A zero-byte receive without an error is mapped to io.EOF, per the
// orderly-shutdown contract.
type channelReader struct {
	ch Channel
}

func (r channelReader) Read(p []byte) (int, error) {
	n, err := r.ch.Recv(p)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

// channelWriter presents a Channel as an io.Writer, looping over short
// sends so the full io.Writer contract holds.
type channelWriter struct {
	ch Channel
}

func (w channelWriter) Write(p []byte) (int, error) {
	for n := 0; n < len(p); {
		m, err := w.ch.Send(p[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, io.ErrShortWrite
		}
	}
	return len(p), nil
}
