// Package codec implements the wire encoding shared by both ends of a
// devrpc connection: the handshake constants, the tagged-value encoding
// used for arguments and results, and the call/return/exception frame
// layout. It is documented here as an aid to debugging, such as when
// analyzing network traffic.
package codec

// Magic identifies the protocol in the handshake. Every other wire code is
// an offset from it, so a peer speaking a different protocol (or a
// different version of this one) is rejected on the first four bytes.
const Magic int32 = 0xff271

const (
	// Handshake reply codes. Magic itself means the key was accepted.
	CodeKeyConflict int32 = Magic + 1 // key already claimed by a live connection
	CodeKeyNotFound int32 = Magic + 2 // no server matches the requested key

	// Frame opcodes. OpExcept doubles as the out-of-band exception marker
	// written before a session is established, so a client blocked on a
	// handshake reply can still decode it.
	OpExcept int32 = Magic + 3
	OpCall   int32 = Magic + 4
	OpReturn int32 = Magic + 5
)

// MaxHeaderLen bounds the encoded frame header; a header above this size is
// treated as a protocol error rather than allocated.
const MaxHeaderLen = 1024

// MaxKeyLen bounds the identity key length announced during the handshake.
const MaxKeyLen = 1 << 16
