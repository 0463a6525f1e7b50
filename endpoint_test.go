package devrpc

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hexlantern/devrpc/codec"
)

func echoRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register("echo", func(args []codec.Value) (codec.Value, error) {
		if len(args) != 1 {
			return codec.Value{}, errors.New("echo takes exactly one argument")
		}
		return args[0], nil
	}))
	require.NoError(t, reg.Register("fail", func([]codec.Value) (codec.Value, error) {
		return codec.Value{}, errors.New("device out of memory")
	}))
	require.NoError(t, reg.Register("panic", func([]codec.Value) (codec.Value, error) {
		panic("unmapped address")
	}))
	return reg
}

// pipeSession wires a client session to a server loop over an in-memory
// duplex stream, optionally fragmenting both directions.
func pipeSession(t *testing.T, reg *Registry, chunk int) (*ClientSession, <-chan error) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	var serverCh Channel = NewSockChannel(serverConn)
	var clientCh Channel = NewSockChannel(clientConn)
	if chunk > 0 {
		serverCh = &chunkChannel{ch: serverCh, limit: chunk}
		clientCh = &chunkChannel{ch: clientCh, limit: chunk}
	}

	serveErr := make(chan error, 1)
	go func() {
		ep := NewEndpoint(serverCh, "server", "client:test", zerolog.Nop())
		serveErr <- ep.ServeLoop(reg)
	}()

	sess := NewClientSession(NewEndpoint(clientCh, "client:test", "server", zerolog.Nop()))
	t.Cleanup(func() { _ = sess.Close() })
	return sess, serveErr
}

func TestEchoRoundTrip(t *testing.T) {
	sess, serveErr := pipeSession(t, echoRegistry(t), 0)

	for size := 0; size <= 512; size += 64 {
		payload := bytes.Repeat([]byte{byte(size)}, size)
		result, err := sess.Invoke("echo", codec.Bytes(payload))
		require.NoError(t, err, "size %d", size)
		require.Equal(t, size, len(result.Bytes()))
		require.Equal(t, payload, append([]byte{}, result.Bytes()...))
	}

	require.NoError(t, sess.Close())
	require.NoError(t, waitErr(t, serveErr))
}

// The result must be bit-identical no matter how the transport fragments
// the stream.
func TestEchoRoundTripChunkedTransport(t *testing.T) {
	for _, chunk := range []int{1, 2, 3, 7, 64} {
		t.Run(fmt.Sprintf("chunk-%d", chunk), func(t *testing.T) {
			sess, _ := pipeSession(t, echoRegistry(t), chunk)

			payload := []byte("the quick brown fox jumps over the lazy dog")
			result, err := sess.Invoke("echo", codec.Bytes(payload))
			require.NoError(t, err)
			require.Equal(t, payload, result.Bytes())
		})
	}
}

func TestRemoteExceptionKeepsConnectionUsable(t *testing.T) {
	sess, _ := pipeSession(t, echoRegistry(t), 0)

	_, err := sess.Invoke("fail")
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "device out of memory", remote.Msg)

	result, err := sess.Invoke("echo", codec.Str("still alive"))
	require.NoError(t, err)
	require.Equal(t, "still alive", result.Str())
}

func TestProcedureNotFound(t *testing.T) {
	sess, _ := pipeSession(t, echoRegistry(t), 0)

	_, err := sess.Invoke("no.such.proc")
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Contains(t, remote.Msg, "no.such.proc")

	// Lookup misses are data, not transport faults.
	result, err := sess.Invoke("echo", codec.Int(1))
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Int())
}

func TestHandlerPanicBecomesRemoteError(t *testing.T) {
	sess, _ := pipeSession(t, echoRegistry(t), 0)

	_, err := sess.Invoke("panic")
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Contains(t, remote.Msg, "unmapped address")

	result, err := sess.Invoke("echo", codec.Str("ok"))
	require.NoError(t, err)
	require.Equal(t, "ok", result.Str())
}

func TestCleanShutdownEndsServeLoop(t *testing.T) {
	sess, serveErr := pipeSession(t, echoRegistry(t), 0)

	_, err := sess.Invoke("echo", codec.Int(7))
	require.NoError(t, err)
	require.NoError(t, sess.Close())
	require.NoError(t, waitErr(t, serveErr))
}

// Closing the session while a call is outstanding must unblock the waiter
// promptly instead of hanging.
func TestCloseUnblocksOutstandingCall(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	sess := NewClientSession(NewEndpoint(NewSockChannel(clientConn), "client:test", "", zerolog.Nop()))

	// Server side reads the call but never answers.
	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := serverConn.Read(buf); err != nil {
				return
			}
		}
	}()

	invokeErr := make(chan error, 1)
	go func() {
		_, err := sess.Invoke("echo", codec.Str("no answer"))
		invokeErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sess.Close())

	select {
	case err := <-invokeErr:
		var terr *TransportError
		require.ErrorAs(t, err, &terr)
	case <-time.After(2 * time.Second):
		t.Fatal("Invoke did not return after Close")
	}
}

func TestInvokeAfterClose(t *testing.T) {
	sess, _ := pipeSession(t, echoRegistry(t), 0)
	require.NoError(t, sess.Close())
	_, err := sess.Invoke("echo", codec.Int(1))
	require.ErrorIs(t, err, ErrShutdown)
	require.ErrorIs(t, sess.Close(), ErrShutdown)
}

func TestServeIOCallbackBridge(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- ServeIO(serverConn.Write, serverConn.Read, echoRegistry(t))
	}()

	sess := NewClientSession(NewEndpoint(NewSockChannel(clientConn), "client:test", "", zerolog.Nop()))
	result, err := sess.Invoke("echo", codec.Float(2.5))
	require.NoError(t, err)
	require.Equal(t, 2.5, result.Float())

	require.NoError(t, sess.Close())
	require.NoError(t, waitErr(t, serveErr))
	_ = serverConn.Close()
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server loop to end")
		return nil
	}
}
