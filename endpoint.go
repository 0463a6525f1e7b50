package devrpc

import (
	"bufio"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/hexlantern/devrpc/codec"
)

// Endpoint frames call, return, and exception traffic over exactly one
// Channel. The protocol is half-duplex: at most one call is in flight at a
// time, so the endpoint holds no sequence numbers or pending-call table.
// Serialization of concurrent callers is the owning session's job.
type Endpoint struct {
	ch        Channel
	r         *bufio.Reader
	w         io.Writer
	localKey  string
	remoteKey string
	log       zerolog.Logger
}

func NewEndpoint(ch Channel, localKey, remoteKey string, logger zerolog.Logger) *Endpoint {
	return &Endpoint{
		ch:        ch,
		r:         bufio.NewReader(channelReader{ch}),
		w:         channelWriter{ch},
		localKey:  localKey,
		remoteKey: remoteKey,
		log:       logger,
	}
}

func (e *Endpoint) LocalKey() string  { return e.localKey }
func (e *Endpoint) RemoteKey() string { return e.remoteKey }

// Close tears the channel down. It is safe to call from another goroutine
// while a read is blocked; the blocked side returns with an error instead
// of hanging.
func (e *Endpoint) Close() error {
	return e.ch.Close()
}

// Invoke writes one call frame and blocks until the single response frame
// for it arrives. An exception frame surfaces as *RemoteError and leaves
// the connection usable; any transport or framing failure tears the
// endpoint down.
func (e *Endpoint) Invoke(proc string, args []codec.Value) (codec.Value, error) {
	if err := codec.WriteCall(e.w, proc, args); err != nil {
		e.fail()
		return codec.Value{}, &TransportError{Op: "call " + proc, Err: err}
	}
	fr, err := codec.ReadFrame(e.r)
	if err != nil {
		e.fail()
		return codec.Value{}, &TransportError{Op: "response for " + proc, Err: err}
	}
	switch fr.Op {
	case codec.OpReturn:
		return fr.Result, nil
	case codec.OpExcept:
		return codec.Value{}, &RemoteError{Msg: fr.ErrMsg}
	}
	e.fail()
	return codec.Value{}, fmt.Errorf("%w: frame opcode %#x in response position", ErrProtocolMismatch, fr.Op)
}

// ServeLoop reads call frames and dispatches them against reg until the
// peer shuts down. A clean EOF between frames returns nil; a torn frame or
// I/O fault returns the transport error after teardown. Lookup misses and
// handler errors are reported to the peer as exception frames and do not
// end the loop.
func (e *Endpoint) ServeLoop(reg *Registry) error {
	defer e.Close()
	for {
		fr, err := codec.ReadFrame(e.r)
		if err == io.EOF {
			e.log.Debug().Str("peer", e.remoteKey).Msg("connection closed by peer")
			return nil
		}
		if err != nil {
			return &TransportError{Op: "read call frame", Err: err}
		}
		if fr.Op != codec.OpCall {
			return fmt.Errorf("%w: frame opcode %#x in call position", ErrProtocolMismatch, fr.Op)
		}

		handler, ok := reg.Lookup(fr.Proc)
		if !ok {
			e.log.Warn().Str("proc", fr.Proc).Msg("procedure not found")
			if err := codec.WriteException(e.w, "procedure not found: "+fr.Proc); err != nil {
				return &TransportError{Op: "write exception frame", Err: err}
			}
			continue
		}

		result, herr := dispatch(handler, fr.Args)
		if herr != nil {
			e.log.Debug().Str("proc", fr.Proc).Err(herr).Msg("procedure raised")
			if err := codec.WriteException(e.w, herr.Error()); err != nil {
				return &TransportError{Op: "write exception frame", Err: err}
			}
			continue
		}
		if err := codec.WriteReturn(e.w, result); err != nil {
			return &TransportError{Op: "write return frame", Err: err}
		}
	}
}

// dispatch invokes a handler and converts a panic into an ordinary error,
// so one misbehaving procedure poisons its call, not the whole loop.
func dispatch(h Handler, args []codec.Value) (result codec.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("procedure panicked: %v", r)
		}
	}()
	return h(args)
}

// fail tears the channel down after a transport-level error. Errors during
// release are discarded by the channel itself.
func (e *Endpoint) fail() {
	_ = e.ch.Close()
}
