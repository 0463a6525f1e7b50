package codec

import (
	"fmt"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	UseSnappy            = true
	UseCrc32ChecksumIEEE = true
)

// Frame header fields, encoded as a protowire record so absent fields cost
// zero bytes and new fields can be added without breaking old readers.
const (
	fieldProc      protowire.Number = 1
	fieldRawLen    protowire.Number = 2
	fieldSnappyLen protowire.Number = 3
	fieldChecksum  protowire.Number = 4
)

// MaxExceptionLen bounds the text carried by an exception frame.
const MaxExceptionLen = 1 << 20

// Frame is one decoded wire message. Op selects which of the remaining
// fields are meaningful: Proc and Args for OpCall, Result for OpReturn,
// ErrMsg for OpExcept.
type Frame struct {
	Op     int32
	Proc   string
	Args   []Value
	Result Value
	ErrMsg string
}

// WriteCall writes a call frame: opcode, header (procedure name, body
// lengths, checksum), then the encoded argument list.
func WriteCall(writer io.Writer, proc string, args []Value) error {
	return writeFrame(writer, OpCall, proc, AppendValues(nil, args))
}

// WriteReturn writes a return frame carrying a single result value.
func WriteReturn(writer io.Writer, result Value) error {
	return writeFrame(writer, OpReturn, "", AppendValue(nil, result))
}

// WriteException writes an exception frame: the OpExcept marker followed by
// the length-prefixed message text. The layout is deliberately free of the
// header machinery above so it can be emitted on a raw transport before any
// session state exists.
func WriteException(writer io.Writer, msg string) error {
	if err := WriteUint32(writer, OpExcept); err != nil {
		return err
	}
	return WritePacket(writer, []byte(msg))
}

func writeFrame(writer io.Writer, op int32, proc string, body []byte) error {
	compressed := snappy.Encode(nil, body)
	snappyLen := len(compressed)
	if !UseSnappy || len(body) <= snappyLen {
		compressed = body
		snappyLen = 0
	}
	var checksum uint32
	if UseCrc32ChecksumIEEE {
		checksum = crc32.ChecksumIEEE(compressed)
	}

	var hdr []byte
	if proc != "" {
		hdr = protowire.AppendTag(hdr, fieldProc, protowire.BytesType)
		hdr = protowire.AppendString(hdr, proc)
	}
	hdr = protowire.AppendTag(hdr, fieldRawLen, protowire.VarintType)
	hdr = protowire.AppendVarint(hdr, uint64(len(body)))
	if snappyLen != 0 {
		hdr = protowire.AppendTag(hdr, fieldSnappyLen, protowire.VarintType)
		hdr = protowire.AppendVarint(hdr, uint64(snappyLen))
	}
	if checksum != 0 {
		hdr = protowire.AppendTag(hdr, fieldChecksum, protowire.VarintType)
		hdr = protowire.AppendVarint(hdr, uint64(checksum))
	}
	if len(hdr) > MaxHeaderLen {
		return fmt.Errorf("codec: frame header length %d exceeds limit %d", len(hdr), MaxHeaderLen)
	}

	if err := WriteUint32(writer, op); err != nil {
		return err
	}
	if err := WritePacket(writer, hdr); err != nil {
		return err
	}
	return WritePacket(writer, compressed)
}

// ReadFrame reads and decodes one frame. It returns io.EOF untouched when
// the stream ends cleanly before the opcode, so callers can tell orderly
// shutdown from a torn frame.
func ReadFrame(reader io.Reader) (*Frame, error) {
	op, err := ReadUint32(reader)
	if err != nil {
		return nil, err
	}
	switch op {
	case OpExcept:
		msg, err := ReadPacket(reader, MaxExceptionLen)
		if err != nil {
			return nil, err
		}
		return &Frame{Op: op, ErrMsg: string(msg)}, nil
	case OpCall, OpReturn:
		body, proc, err := readFrameBody(reader)
		if err != nil {
			return nil, err
		}
		fr := &Frame{Op: op, Proc: proc}
		if op == OpCall {
			if fr.Proc == "" {
				return nil, fmt.Errorf("codec: call frame without a procedure name")
			}
			fr.Args, err = ConsumeValues(body)
		} else {
			fr.Result, err = consumeResult(body)
		}
		if err != nil {
			return nil, err
		}
		return fr, nil
	}
	return nil, fmt.Errorf("codec: unrecognized frame opcode %#x", op)
}

func readFrameBody(reader io.Reader) (body []byte, proc string, err error) {
	hdr, err := ReadPacket(reader, MaxHeaderLen)
	if err != nil {
		return nil, "", err
	}
	var rawLen, snappyLen, checksum uint64
	for len(hdr) > 0 {
		num, typ, n := protowire.ConsumeTag(hdr)
		if n < 0 {
			return nil, "", protowire.ParseError(n)
		}
		hdr = hdr[n:]
		switch num {
		case fieldProc:
			proc, n = protowire.ConsumeString(hdr)
		case fieldRawLen:
			rawLen, n = protowire.ConsumeVarint(hdr)
		case fieldSnappyLen:
			snappyLen, n = protowire.ConsumeVarint(hdr)
		case fieldChecksum:
			checksum, n = protowire.ConsumeVarint(hdr)
		default:
			n = protowire.ConsumeFieldValue(num, typ, hdr)
		}
		if n < 0 {
			return nil, "", protowire.ParseError(n)
		}
		hdr = hdr[n:]
	}

	maxBodyLen := rawLen
	if snappyLen > maxBodyLen {
		maxBodyLen = snappyLen
	}
	body, err = ReadPacket(reader, maxBodyLen)
	if err != nil {
		return nil, "", err
	}
	if checksum != 0 && crc32.ChecksumIEEE(body) != uint32(checksum) {
		return nil, "", fmt.Errorf("codec: frame body checksum mismatch")
	}
	if snappyLen != 0 {
		body, err = snappy.Decode(nil, body)
		if err != nil {
			return nil, "", err
		}
	}
	if uint64(len(body)) != rawLen {
		return nil, "", fmt.Errorf("codec: frame body length %d does not match announced %d", len(body), rawLen)
	}
	return body, proc, nil
}

func consumeResult(b []byte) (Value, error) {
	v, n, err := ConsumeValue(b)
	if err != nil {
		return Value{}, err
	}
	if n != len(b) {
		return Value{}, fmt.Errorf("codec: %d trailing bytes after result value", len(b)-n)
	}
	return v, nil
}
