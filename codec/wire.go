package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const uint64ByteNum = 10 // max length of a uvarint-encoded 64-bit size

// WritePacket writes a uvarint length prefix followed by data. A nil or
// empty slice is written as a bare zero length.
func WritePacket(writer io.Writer, data []byte) error {
	var size [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(size[:], uint64(len(data)))
	if err := writeFull(writer, size[:n]); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return writeFull(writer, data)
}

// ReadPacket reads one length-prefixed packet. A size announcement above
// maxSize (when maxSize > 0) is rejected before any allocation.
func ReadPacket(reader io.Reader, maxSize uint64) ([]byte, error) {
	size, err := ReadSize(reader)
	if err != nil {
		return nil, err
	}
	if maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("codec: packet size %d overflows limit %d", size, maxSize)
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	if err = readFull(reader, data); err != nil {
		return nil, err
	}
	return data, nil
}

// ReadSize reads a uvarint size one byte at a time, so it never consumes
// bytes past the prefix on an unbuffered stream.
func ReadSize(reader io.Reader) (uint64, error) {
	var (
		size  uint64
		shift uint
	)
	for i := 1; ; i++ {
		b, err := readByte(reader)
		if err != nil {
			if i > 1 && err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if b < 0x80 {
			return size | uint64(b)<<shift, nil
		}
		if i == uint64ByteNum {
			return 0, errors.New("codec: size prefix overflows a 64-bit integer")
		}
		size |= uint64(b&0x7f) << shift
		shift += 7
	}
}

// WriteUint32 writes v as four little-endian bytes, the fixed-width layout
// used for the handshake fields and frame opcodes.
func WriteUint32(writer io.Writer, v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return writeFull(writer, buf[:])
}

// ReadUint32 reads four little-endian bytes. io.EOF is returned only when
// the stream ends before the first byte; a torn value is
// io.ErrUnexpectedEOF.
func ReadUint32(reader io.Reader) (int32, error) {
	var buf [4]byte
	if err := readFull(reader, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func readByte(reader io.Reader) (byte, error) {
	if br, ok := reader.(io.ByteReader); ok {
		return br.ReadByte()
	}
	var buf [1]byte
	if err := readFull(reader, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// readFull loops until buf is filled. Short reads are legal on the
// underlying transport; stopping early would tear frames apart.
func readFull(reader io.Reader, buf []byte) error {
	for n := 0; n < len(buf); {
		m, err := reader.Read(buf[n:])
		n += m
		if n == len(buf) {
			return nil
		}
		if err != nil {
			if err == io.EOF && n > 0 {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}

// writeFull loops until buf is fully written, for transports whose Write
// may be short without reporting an error.
func writeFull(writer io.Writer, buf []byte) error {
	for n := 0; n < len(buf); {
		m, err := writer.Write(buf[n:])
		n += m
		if err != nil {
			return err
		}
		if m == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
