package devrpc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hexlantern/devrpc/codec"
)

// runServerSide accepts the handshake on conn and replies per fn.
func runServerSide(t *testing.T, conn net.Conn, fn func(clientKey string)) <-chan string {
	t.Helper()
	got := make(chan string, 1)
	go func() {
		key, err := serverHandshake(conn)
		if err != nil {
			got <- "error: " + err.Error()
			return
		}
		fn(key)
		got <- key
	}()
	return got
}

func TestHandshakeAccepted(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	got := runServerSide(t, server, func(string) {
		require.NoError(t, codec.WriteUint32(server, codec.Magic))
		require.NoError(t, writeKey(server, "rasp4b.0"))
	})

	remote, err := clientHandshake(client, ClientKeyPrefix+"rasp4b")
	require.NoError(t, err)
	require.Equal(t, "rasp4b.0", remote)
	require.Equal(t, "client:rasp4b", <-got)
}

func TestHandshakeKeyNotFound(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	runServerSide(t, server, func(string) {
		require.NoError(t, codec.WriteUint32(server, codec.CodeKeyNotFound))
	})

	_, err := clientHandshake(client, ClientKeyPrefix+"missing")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestHandshakeKeyConflict(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	runServerSide(t, server, func(string) {
		require.NoError(t, codec.WriteUint32(server, codec.CodeKeyConflict))
	})

	_, err := clientHandshake(client, ClientKeyPrefix+"busy")
	require.ErrorIs(t, err, ErrKeyConflict)
}

func TestHandshakeProtocolMismatch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	runServerSide(t, server, func(string) {
		require.NoError(t, codec.WriteUint32(server, 0x1badc0de))
	})

	_, err := clientHandshake(client, ClientKeyPrefix+"any")
	require.ErrorIs(t, err, ErrProtocolMismatch)
}

// An out-of-band exception signal arriving in place of the handshake reply
// must surface as a RemoteError carrying the exact message.
func TestHandshakeExceptionSignal(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	runServerSide(t, server, func(string) {
		require.NoError(t, SignalException(server, "overflow"))
	})

	_, err := clientHandshake(client, ClientKeyPrefix+"any")
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "overflow", remote.Msg)
}

func TestServerHandshakeRejectsBadMagic(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_ = codec.WriteUint32(client, 0x12345678)
	}()

	_, err := serverHandshake(server)
	require.ErrorIs(t, err, ErrProtocolMismatch)
}

func TestServerHandshakeRejectsHugeKey(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_ = codec.WriteUint32(client, codec.Magic)
		_ = codec.WriteUint32(client, codec.MaxKeyLen+1)
	}()

	_, err := serverHandshake(server)
	require.ErrorIs(t, err, ErrProtocolMismatch)
}

func TestHandshakeEmptyKey(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	got := runServerSide(t, server, func(string) {
		require.NoError(t, codec.WriteUint32(server, codec.Magic))
		require.NoError(t, writeKey(server, ""))
	})

	remote, err := clientHandshake(client, "")
	require.NoError(t, err)
	require.Equal(t, "", remote)
	require.Equal(t, "", <-got)
}
