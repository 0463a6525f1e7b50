package devrpc

import (
	"fmt"
	"io"

	"github.com/hexlantern/devrpc/codec"
)

// ClientKeyPrefix tags keys presented by connecting clients, so a listener
// that partitions connections by purpose can tell callers from other roles.
const ClientKeyPrefix = "client:"

// clientHandshake runs the connecting side of the key exchange on a raw,
// not-yet-framed transport:
//
//	-> magic:int32, keylen:int32, key
//	<- code:int32
//	<- keylen:int32, key          (only when code == Magic)
//
// It returns the server's identity key on success. Every failure is
// terminal for the transport; the caller closes it, no retry.
func clientHandshake(rw io.ReadWriter, key string) (string, error) {
	if err := codec.WriteUint32(rw, codec.Magic); err != nil {
		return "", &TransportError{Op: "handshake send", Err: err}
	}
	if err := writeKey(rw, key); err != nil {
		return "", &TransportError{Op: "handshake send", Err: err}
	}

	code, err := codec.ReadUint32(rw)
	if err != nil {
		return "", &TransportError{Op: "handshake recv", Err: err}
	}
	switch code {
	case codec.Magic:
		remote, err := readKey(rw)
		if err != nil {
			return "", err
		}
		return remote, nil
	case codec.CodeKeyNotFound:
		return "", ErrKeyNotFound
	case codec.CodeKeyConflict:
		return "", ErrKeyConflict
	case codec.OpExcept:
		// The peer aborted before the session existed and pushed an
		// out-of-band exception in place of the reply code.
		msg, err := codec.ReadPacket(rw, codec.MaxExceptionLen)
		if err != nil {
			return "", &TransportError{Op: "handshake recv", Err: err}
		}
		return "", &RemoteError{Msg: string(msg)}
	}
	return "", ErrProtocolMismatch
}

// serverHandshake runs the accepting side: it reads the magic and the
// client's key and leaves replying to the caller, which owns key matching
// and uniqueness. A bad magic is reported without any reply; the client
// decodes the silence as a transport fault.
func serverHandshake(rw io.ReadWriter) (string, error) {
	magic, err := codec.ReadUint32(rw)
	if err != nil {
		return "", &TransportError{Op: "handshake recv", Err: err}
	}
	if magic != codec.Magic {
		return "", fmt.Errorf("%w: got magic %#x", ErrProtocolMismatch, magic)
	}
	return readKey(rw)
}

func writeKey(w io.Writer, key string) error {
	if err := codec.WriteUint32(w, int32(len(key))); err != nil {
		return err
	}
	if len(key) == 0 {
		return nil
	}
	_, err := io.WriteString(w, key)
	return err
}

func readKey(r io.Reader) (string, error) {
	keylen, err := codec.ReadUint32(r)
	if err != nil {
		return "", &TransportError{Op: "handshake recv", Err: err}
	}
	if keylen < 0 || keylen > codec.MaxKeyLen {
		return "", fmt.Errorf("%w: announced key length %d", ErrProtocolMismatch, keylen)
	}
	if keylen == 0 {
		return "", nil
	}
	buf := make([]byte, keylen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", &TransportError{Op: "handshake recv", Err: err}
	}
	return string(buf), nil
}
