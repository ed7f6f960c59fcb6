// Package mining implements the SHA-256 midstate, merkle, coinbase,
// and target/difficulty primitives spec §4.2/§4.4/§4.5 build on (C2).
//
// Midstate computation is generalized from the teacher's
// usb_device.go computeMidstate helper, which hashed a 64-byte block
// and returned the finished digest; here we need the *intermediate*
// compression state after exactly one 512-bit block, which the
// finished-digest approach can't produce. crypto/sha256's Digest
// implements encoding.BinaryMarshaler, and after Write-ing exactly one
// full 64-byte block its marshaled form has nothing buffered — the
// eight 32-bit chaining values sit at a fixed offset. No example repo
// or ecosystem library exposes mid-block SHA-256 state directly, so
// this one piece of C2 is stdlib-only, using a format stdlib itself
// documents and commits to via the Marshaler interface.
package mining

import (
	"crypto/sha256"
	"encoding"
	"encoding/binary"
	"fmt"
)

// InternalHash is a 32-byte value in SHA-256 "internal" byte order —
// i.e. the order the hash function itself produces, the same order
// Stratum V2 hands the core its merkle root and previous hash in.
type InternalHash [32]byte

// DisplayHash is a 32-byte value in the reversed, big-endian "display"
// order Bitcoin tooling and Stratum V1 use (block explorers, RPC
// getblock output). Reverse converts between the two.
type DisplayHash [32]byte

// Reverse returns h's bytes in the opposite order, converting between
// InternalHash and DisplayHash conventions (spec §9 Design Notes:
// "keep the byte-order conventions explicit as domain types").
func (h InternalHash) Reverse() DisplayHash {
	var out DisplayHash
	for i := range h {
		out[i] = h[len(h)-1-i]
	}
	return out
}

// Reverse is DisplayHash's inverse of InternalHash.Reverse.
func (h DisplayHash) Reverse() InternalHash {
	var out InternalHash
	for i := range h {
		out[i] = h[len(h)-1-i]
	}
	return out
}

func (h InternalHash) String() string { return fmt.Sprintf("%x", [32]byte(h)) }
func (h DisplayHash) String() string  { return fmt.Sprintf("%x", [32]byte(h)) }

// sha256MarshalMagic is the fixed 4-byte prefix crypto/sha256's Digest
// writes before its eight chaining-value words, per the stdlib source
// (magic224_256 constant "sha\x03"). It is stable ABI: the stdlib
// guarantees BinaryMarshaler round-trips across the same Go version
// family, which is all this needs (we decode what we just encoded).
const sha256MarshalMagic = "sha\x03"

// Midstate computes the SHA-256 compression-function output after
// consuming exactly the first 64 bytes of block, per spec's glossary
// definition. block must be at least 64 bytes; only the first 64 are
// consumed.
func Midstate(block []byte) (InternalHash, error) {
	if len(block) < 64 {
		return InternalHash{}, fmt.Errorf("mining: midstate needs 64 bytes, got %d", len(block))
	}

	h := sha256.New()
	h.Write(block[:64])

	marshaler, ok := h.(encoding.BinaryMarshaler)
	if !ok {
		return InternalHash{}, fmt.Errorf("mining: sha256.Digest does not implement BinaryMarshaler")
	}
	state, err := marshaler.MarshalBinary()
	if err != nil {
		return InternalHash{}, fmt.Errorf("mining: marshal digest: %w", err)
	}

	prefixLen := len(sha256MarshalMagic)
	if len(state) < prefixLen+32 || string(state[:prefixLen]) != sha256MarshalMagic {
		return InternalHash{}, fmt.Errorf("mining: unexpected sha256 digest encoding")
	}

	var mid InternalHash
	for i := 0; i < 8; i++ {
		binary.BigEndian.PutUint32(mid[i*4:i*4+4], binary.BigEndian.Uint32(state[prefixLen+i*4:prefixLen+i*4+4]))
	}
	return mid, nil
}

// DoubleSHA256 is Bitcoin's hash256: SHA-256(SHA-256(data)).
func DoubleSHA256(data []byte) InternalHash {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return InternalHash(second)
}
