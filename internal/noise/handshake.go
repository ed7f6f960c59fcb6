package noise

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ProtocolName is the exact Noise protocol string spec §4.7 requires;
// step 1 of the handshake verifies it hashes to the expected digest
// before proceeding.
const ProtocolName = "Noise_NX_Secp256k1+EllSwift_ChaChaPoly_SHA256"

const (
	staticCipherLen      = 64 + 16 // encrypted 64-byte ElligatorSwift static key + AEAD tag
	certificateLen       = 74 + 16 // encrypted 74-byte certificate + AEAD tag
	act2Len              = ellswiftLen + staticCipherLen + certificateLen
	certificatePlainLen  = 74
	certificateSchnorrAt = 10
)

// Certificate is the responder's parsed static-key certificate (spec
// §4.7 step 9's 74-byte plaintext layout).
type Certificate struct {
	Version       uint16
	ValidFrom     uint32
	NotValidAfter uint32
	Signature     [64]byte
}

// TransportKeys are the two final AEAD keys split off the handshake
// (spec §4.7 step 11); callers build the framing cipher states from
// these and then zero this struct.
type TransportKeys struct {
	Send [32]byte
	Recv [32]byte
}

// Zero overwrites both keys, matching spec's "no plaintext secret
// outlives its subscope" requirement (Design Notes, "Noise handshake
// interior state").
func (k *TransportKeys) Zero() {
	zeroBytes(k.Send[:])
	zeroBytes(k.Recv[:])
}

// RemoteStatic is the responder's static public key, recovered as an
// x-coordinate (ECDH and certificate verification only ever need the
// x-only form).
type RemoteStatic struct {
	X *big.Int
}

// InitiatorResult carries everything the caller needs once the
// initiator handshake completes: the split transport keys and the
// responder's verified static key.
type InitiatorResult struct {
	Keys         TransportKeys
	RemoteStatic RemoteStatic
}

// RunInitiatorHandshake drives the NX pattern from the initiator side
// (spec §4.7's numbered steps 1-11): generate an ephemeral keypair,
// send its ElligatorSwift encoding, receive and decrypt the
// responder's ephemeral/static/certificate payload, optionally verify
// the certificate against authorityKey, and split transport keys.
//
// send/recv are the raw handshake-message transports: send writes
// exactly the bytes given (the 64-byte ephemeral encoding), recv
// reads exactly n bytes (the 234-byte Act 2 message).
func RunInitiatorHandshake(send func([]byte) error, recv func(n int) ([]byte, error), authorityKey *[32]byte) (*InitiatorResult, error) {
	expected := sha256.Sum256([]byte(ProtocolName))
	ss := newSymmetricState(ProtocolName)
	if ss.h != expected {
		return nil, fmt.Errorf("noise: protocol name digest mismatch")
	}

	// Step 2: MixHash empty prologue.
	ss.mixHash(nil)

	// Step 3: generate ephemeral keypair, encode, MixHash it and an
	// empty payload.
	ephPriv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("noise: generate ephemeral key: %w", err)
	}
	ephEncoded, err := EncodePubKey(ephPriv.PubKey())
	if err != nil {
		return nil, fmt.Errorf("noise: encode ephemeral key: %w", err)
	}
	ss.mixHash(ephEncoded[:])
	if _, err := ss.encryptAndHash(nil); err != nil {
		return nil, err
	}

	// Step 4: send the 64 ephemeral bytes.
	if err := send(ephEncoded[:]); err != nil {
		return nil, fmt.Errorf("noise: send ephemeral key: %w", err)
	}

	// Step 5: receive Act 2 (64 + 80 + 90 bytes).
	act2, err := recv(act2Len)
	if err != nil {
		return nil, fmt.Errorf("noise: receive act2: %w", err)
	}
	var respEphEncoded [ellswiftLen]byte
	copy(respEphEncoded[:], act2[:ellswiftLen])
	staticCiphertext := act2[ellswiftLen : ellswiftLen+staticCipherLen]
	certCiphertext := act2[ellswiftLen+staticCipherLen:]

	// Step 6: MixHash responder ephemeral, ECDH #1, HKDF.
	ss.mixHash(respEphEncoded[:])
	shared1, err := ECDHXOnly(ephPriv, respEphEncoded)
	if err != nil {
		return nil, fmt.Errorf("noise: ecdh#1: %w", err)
	}
	if err := ss.mixKey(shared1[:]); err != nil {
		return nil, err
	}

	// Step 7: decrypt responder static, MixHash ciphertext.
	staticPlain, err := ss.decryptAndHash(staticCiphertext)
	if err != nil {
		return nil, fmt.Errorf("noise: decrypt static key: %w", err)
	}
	var respStaticEncoded [ellswiftLen]byte
	copy(respStaticEncoded[:], staticPlain)
	remoteStaticX := DecodeEllSwift(respStaticEncoded)

	// Step 8: ECDH #2 (our ephemeral x responder static), HKDF again.
	shared2, err := ECDHXOnly(ephPriv, respStaticEncoded)
	if err != nil {
		return nil, fmt.Errorf("noise: ecdh#2: %w", err)
	}
	if err := ss.mixKey(shared2[:]); err != nil {
		return nil, err
	}

	// Step 9: decrypt the certificate.
	certPlain, err := ss.decryptAndHash(certCiphertext)
	if err != nil {
		return nil, fmt.Errorf("noise: decrypt certificate: %w", err)
	}
	if len(certPlain) != certificatePlainLen {
		return nil, fmt.Errorf("noise: certificate length %d, want %d", len(certPlain), certificatePlainLen)
	}
	cert := Certificate{
		Version:       binary.LittleEndian.Uint16(certPlain[0:2]),
		ValidFrom:     binary.LittleEndian.Uint32(certPlain[2:6]),
		NotValidAfter: binary.LittleEndian.Uint32(certPlain[6:10]),
	}
	copy(cert.Signature[:], certPlain[10:74])

	// Step 10: verify against the authority key, if configured.
	if authorityKey != nil {
		msg := certificateMessage(cert.Version, cert.ValidFrom, cert.NotValidAfter, remoteStaticX)
		if err := verifyCertificate(*authorityKey, msg, cert.Signature); err != nil {
			return nil, err
		}
	}

	// Step 11: split transport keys, zero ephemeral/h/ck.
	send1, recv1, err := ss.split()
	if err != nil {
		return nil, err
	}

	result := &InitiatorResult{
		Keys:         TransportKeys{Send: send1, Recv: recv1},
		RemoteStatic: RemoteStatic{X: remoteStaticX},
	}

	ephPriv.Zero()
	zeroBytes(ss.ck[:])
	zeroBytes(ss.h[:])

	return result, nil
}
