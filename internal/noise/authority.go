package noise

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// base58Alphabet is the Bitcoin base58 alphabet. No base58 library
// appears anywhere in the example pack, so this is a direct stdlib
// (math/big) implementation rather than an imported dependency.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func base58Decode(s string) ([]byte, error) {
	base := big.NewInt(58)
	num := new(big.Int)
	for _, r := range s {
		idx := -1
		for i, c := range base58Alphabet {
			if c == r {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("noise: invalid base58 character %q", r)
		}
		num.Mul(num, base)
		num.Add(num, big.NewInt(int64(idx)))
	}

	decoded := num.Bytes()

	leadingZeros := 0
	for leadingZeros < len(s) && s[leadingZeros] == '1' {
		leadingZeros++
	}

	out := make([]byte, leadingZeros+len(decoded))
	copy(out[leadingZeros:], decoded)
	return out, nil
}

// authorityVersion is the 2-byte LE version prefix spec §6 mandates
// for the base58check-encoded SV2 authority key (`0x0001`).
const authorityVersion = 0x0001

// decodeAuthorityKey decodes the base58check SV2 authority pubkey
// configuration value into its 32-byte x-only public key, per spec §6
// / §8 property 12: 38-byte decoded length (2 version + 32 pubkey + 4
// checksum), version bytes `01 00` at offset 0..1, pubkey at 2..33.
// DecodeAuthorityKey exposes decodeAuthorityKey to callers outside
// this package that need to validate a configured authority pubkey
// before starting a handshake (e.g. to fail fast on bad configuration).
func DecodeAuthorityKey(encoded string) ([32]byte, error) {
	return decodeAuthorityKey(encoded)
}

func decodeAuthorityKey(encoded string) ([32]byte, error) {
	var out [32]byte
	raw, err := base58Decode(encoded)
	if err != nil {
		return out, err
	}
	if len(raw) != 38 {
		return out, fmt.Errorf("noise: authority key: decoded length %d, want 38", len(raw))
	}

	version := binary.LittleEndian.Uint16(raw[0:2])
	if version != authorityVersion {
		return out, fmt.Errorf("noise: authority key: version %#04x, want %#04x", version, authorityVersion)
	}

	payload := raw[:34]
	checksum := raw[34:38]
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	for i := 0; i < 4; i++ {
		if checksum[i] != second[i] {
			return out, fmt.Errorf("noise: authority key: checksum mismatch")
		}
	}

	copy(out[:], raw[2:34])
	return out, nil
}

// certificateMessage reconstructs the BIP-340 signed message for the
// responder's static-key certificate (spec §4.7 step 10):
// SHA256(version || valid_from || not_valid_after || xonly(static_x)).
func certificateMessage(version uint16, validFrom, notValidAfter uint32, staticX *big.Int) [32]byte {
	var buf [10]byte
	binary.LittleEndian.PutUint16(buf[0:2], version)
	binary.LittleEndian.PutUint32(buf[2:6], validFrom)
	binary.LittleEndian.PutUint32(buf[6:10], notValidAfter)

	xb := fieldElementBytes(staticX)

	h := sha256.New()
	h.Write(buf[:])
	h.Write(xb[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// verifyCertificate checks the responder's BIP-340 Schnorr signature
// over certificateMessage under the configured authority key (spec
// §4.7 step 10). Callers skip this entirely when no authority key is
// configured, per spec's "if an authority public key is configured".
func verifyCertificate(authorityX [32]byte, msg [32]byte, sig [64]byte) error {
	pub, err := schnorr.ParsePubKey(authorityX[:])
	if err != nil {
		return fmt.Errorf("noise: parse authority key: %w", err)
	}
	signature, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return fmt.Errorf("noise: parse certificate signature: %w", err)
	}
	if !signature.Verify(msg[:], pub) {
		return fmt.Errorf("noise: certificate signature verification failed")
	}
	return nil
}
