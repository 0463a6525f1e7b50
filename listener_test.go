package devrpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hexlantern/devrpc/codec"
)

func startListener(t *testing.T, key string, reg *Registry) *Listener {
	t.Helper()
	lis, err := Listen("127.0.0.1:0", key, reg)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = lis.Serve()
	}()
	t.Cleanup(func() {
		_ = lis.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("listener did not stop")
		}
	})
	return lis
}

func TestConnectAndInvoke(t *testing.T) {
	lis := startListener(t, "jetson.01", echoRegistry(t))

	sess, err := Connect(context.Background(), lis.Addr().String(), "jetson.01")
	require.NoError(t, err)
	defer sess.Close()

	require.Equal(t, "jetson.01", sess.RemoteKey())

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	result, err := sess.Invoke("echo", codec.Bytes(payload))
	require.NoError(t, err)
	require.Equal(t, payload, result.Bytes())
}

func TestConnectKeyNotFound(t *testing.T) {
	lis := startListener(t, "jetson.01", echoRegistry(t))

	_, err := Connect(context.Background(), lis.Addr().String(), "jetson.99")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestConnectKeyConflict(t *testing.T) {
	lis := startListener(t, "jetson.01", echoRegistry(t))

	first, err := Connect(context.Background(), lis.Addr().String(), "jetson.01")
	require.NoError(t, err)
	defer first.Close()

	_, err = Connect(context.Background(), lis.Addr().String(), "jetson.01")
	require.ErrorIs(t, err, ErrKeyConflict)

	// Key is freed once the first session ends.
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		sess, err := Connect(context.Background(), lis.Addr().String(), "jetson.01")
		if err != nil {
			return false
		}
		_ = sess.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)
}

func TestConnectForwardsInitCall(t *testing.T) {
	reg := echoRegistry(t)
	gotCaps := make(chan string, 1)
	require.NoError(t, reg.Register(DefaultInitProc, func(args []codec.Value) (codec.Value, error) {
		gotCaps <- args[0].Str()
		return codec.Nil(), nil
	}))
	lis := startListener(t, "jetson.01", reg)

	sess, err := Connect(context.Background(), lis.Addr().String(), "jetson.01",
		&Options{InitArgs: []codec.Value{codec.Str("fp16")}})
	require.NoError(t, err)
	defer sess.Close()

	select {
	case caps := <-gotCaps:
		require.Equal(t, "fp16", caps)
	case <-time.After(2 * time.Second):
		t.Fatal("init call never reached the server")
	}
}

func TestConnectRejectedByNonServer(t *testing.T) {
	// A listener that answers with garbage instead of the handshake code.
	raw, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer raw.Close()
	go func() {
		conn, err := raw.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 64)
		_, _ = conn.Read(buf)
		_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n"))
		_ = conn.Close()
	}()

	_, err = Connect(context.Background(), raw.Addr().String(), "jetson.01")
	require.ErrorIs(t, err, ErrProtocolMismatch)
}

// Closing the listener must unblock server loops that are waiting on idle
// connections.
func TestListenerCloseTearsDownLiveSessions(t *testing.T) {
	lis := startListener(t, "jetson.01", echoRegistry(t))

	sess, err := Connect(context.Background(), lis.Addr().String(), "jetson.01")
	require.NoError(t, err)
	defer sess.Close()

	closed := make(chan error, 1)
	go func() { closed <- lis.Close() }()

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener Close hung on a live session")
	}

	// The session's next call fails: its transport is gone.
	_, err = sess.Invoke("echo", codec.Int(1))
	require.Error(t, err)
}

func TestListenerCloseTwice(t *testing.T) {
	lis := startListener(t, "jetson.01", echoRegistry(t))
	require.NoError(t, lis.Close())
	require.ErrorIs(t, lis.Close(), ErrShutdown)
}
