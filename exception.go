package devrpc

import (
	"io"

	"github.com/hexlantern/devrpc/codec"
)

// SignalException pushes a textual error onto a raw transport, bypassing
// session framing. It exists for failures that happen before a session is
// fully established, so the peer receives an intelligible error instead of
// a silently closed connection: a client blocked in the handshake decodes
// the marker in place of the reply code and surfaces a *RemoteError with
// exactly this message.
func SignalException(w io.Writer, msg string) error {
	return codec.WriteException(w, msg)
}
