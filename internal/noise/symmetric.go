package noise

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// maxNonce guards against the 64-bit counter wrapping; no handshake
// or transport session sends anywhere near this many messages.
const maxNonce = ^uint64(0) - 1

// cipherState wraps a single ChaCha20-Poly1305 key with a monotonic
// nonce counter, the same shape chimera-pool-core's noise handshake
// uses, rebuilt on the stdlib-backed AEAD rather than a hand-rolled
// one.
type cipherState struct {
	key   [32]byte
	nonce uint64
	aead  interface {
		Seal(dst, nonce, plaintext, ad []byte) []byte
		Open(dst, nonce, ciphertext, ad []byte) ([]byte, error)
	}
}

func newCipherState(key [32]byte) (*cipherState, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return &cipherState{key: key, aead: aead}, nil
}

func (c *cipherState) nonceBytes() []byte {
	var n [12]byte
	binary.LittleEndian.PutUint64(n[4:], c.nonce)
	return n[:]
}

func (c *cipherState) encrypt(ad, plaintext []byte) ([]byte, error) {
	if c.nonce >= maxNonce {
		return nil, fmt.Errorf("noise: cipher nonce exhausted")
	}
	out := c.aead.Seal(nil, c.nonceBytes(), plaintext, ad)
	c.nonce++
	return out, nil
}

func (c *cipherState) decrypt(ad, ciphertext []byte) ([]byte, error) {
	if c.nonce >= maxNonce {
		return nil, fmt.Errorf("noise: cipher nonce exhausted")
	}
	out, err := c.aead.Open(nil, c.nonceBytes(), ciphertext, ad)
	if err != nil {
		return nil, err
	}
	c.nonce++
	return out, nil
}

func (c *cipherState) zero() {
	for i := range c.key {
		c.key[i] = 0
	}
}

// symmetricState tracks the handshake's running chaining key and hash
// (spec §4.7: `ck`, `h`), mixing in each exchanged value and deriving
// AEAD keys as the handshake progresses.
type symmetricState struct {
	ck     [32]byte
	h      [32]byte
	cipher *cipherState
}

// newSymmetricState initializes ck = h = SHA256(protocolName), step 1
// of spec §4.7's handshake recipe.
func newSymmetricState(protocolName string) *symmetricState {
	digest := sha256.Sum256([]byte(protocolName))
	return &symmetricState{ck: digest, h: digest}
}

func (s *symmetricState) mixHash(data []byte) {
	h := sha256.New()
	h.Write(s.h[:])
	h.Write(data)
	copy(s.h[:], h.Sum(nil))
}

// mixKey runs HKDF over the chaining key and new key material,
// producing two 32-byte outputs: the first becomes the refreshed
// chaining key, the second seeds a fresh cipher state (spec §4.7
// steps 6/8's "HKDF-Expand the chaining key and a temporary AEAD
// key").
func (s *symmetricState) mixKey(ikm []byte) error {
	r := hkdf.New(sha256.New, ikm, s.ck[:], nil)
	var out [64]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return err
	}
	copy(s.ck[:], out[:32])
	var key [32]byte
	copy(key[:], out[32:])
	cs, err := newCipherState(key)
	if err != nil {
		return err
	}
	s.cipher = cs
	return nil
}

// encryptAndHash AEAD-seals plaintext under the current cipher (AD =
// running hash), then mixes the ciphertext into the hash. Before the
// first mixKey call there is no cipher yet; the plaintext passes
// through unmodified and is hashed directly.
func (s *symmetricState) encryptAndHash(plaintext []byte) ([]byte, error) {
	if s.cipher == nil {
		s.mixHash(plaintext)
		return plaintext, nil
	}
	ct, err := s.cipher.encrypt(s.h[:], plaintext)
	if err != nil {
		return nil, err
	}
	s.mixHash(ct)
	return ct, nil
}

func (s *symmetricState) decryptAndHash(ciphertext []byte) ([]byte, error) {
	if s.cipher == nil {
		s.mixHash(ciphertext)
		return ciphertext, nil
	}
	pt, err := s.cipher.decrypt(s.h[:], ciphertext)
	if err != nil {
		return nil, err
	}
	s.mixHash(ciphertext)
	return pt, nil
}

// split derives the two final transport keys from an empty IKM (spec
// §4.7 step 11), returning them in (initiator-send, initiator-recv)
// order; callers running as the responder swap the pair.
func (s *symmetricState) split() (send, recv [32]byte, err error) {
	r := hkdf.New(sha256.New, nil, s.ck[:], nil)
	var out [64]byte
	if _, err = io.ReadFull(r, out[:]); err != nil {
		return
	}
	copy(send[:], out[:32])
	copy(recv[:], out[32:])
	return
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
