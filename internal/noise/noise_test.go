package noise

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func privKeyFromByte(b byte) *btcec.PrivateKey {
	var buf [32]byte
	buf[31] = b
	return btcec.PrivKeyFromBytes(buf[:])
}

// TestNoiseSelfTestMatchesBothSides is spec §8 property 10 / S10:
// given fixed initiator seckey=1 and responder seckey=2, the ellswift
// ECDH shared secret computed from each side must match byte-for-byte.
func TestNoiseSelfTestMatchesBothSides(t *testing.T) {
	initiator := privKeyFromByte(1)
	responder := privKeyFromByte(2)

	initiatorEnc, err := EncodePubKey(initiator.PubKey())
	require.NoError(t, err)
	responderEnc, err := EncodePubKey(responder.PubKey())
	require.NoError(t, err)

	sharedFromInitiator, err := ECDHXOnly(initiator, responderEnc)
	require.NoError(t, err)
	sharedFromResponder, err := ECDHXOnly(responder, initiatorEnc)
	require.NoError(t, err)

	require.Equal(t, sharedFromInitiator, sharedFromResponder)
}

// TestEllSwiftRoundTrip exercises encode/decode against freshly
// generated keys, the property the single-candidate simplification
// documented in ellswift.go depends on.
func TestEllSwiftRoundTrip(t *testing.T) {
	for i := 0; i < 16; i++ {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)

		enc, err := EncodePubKey(priv.PubKey())
		require.NoError(t, err)

		x := DecodeEllSwift(enc)
		require.Equal(t, 0, x.Cmp(priv.PubKey().X()))
	}
}

// TestMixKeySplitIsDeterministic is spec §8 property / S2: replaying
// the same handshake transcript into a fresh symmetricState must
// yield an identical key split.
func TestMixKeySplitIsDeterministic(t *testing.T) {
	ikm := []byte{0x01, 0x02, 0x03}

	run := func() (send, recv [32]byte) {
		ss := newSymmetricState(ProtocolName)
		ss.mixHash([]byte("transcript"))
		require.NoError(t, ss.mixKey(ikm))
		s, r, err := ss.split()
		require.NoError(t, err)
		return s, r
	}

	send1, recv1 := run()
	send2, recv2 := run()
	require.Equal(t, send1, send2)
	require.Equal(t, recv1, recv2)
}

func TestFieldSqrtRoundTrips(t *testing.T) {
	x := big.NewInt(9)
	require.True(t, isSquare(x))
	root := sqrtMod(x)
	require.Equal(t, 0, fieldSquare(root).Cmp(x))
}

func TestDecodeAuthorityKeyRejectsBadChecksum(t *testing.T) {
	// 38 bytes: version 0x0001 (LE), a 32-byte key of 0x11, and a
	// checksum whose last byte is flipped, so only the checksum is wrong.
	_, err := decodeAuthorityKey("9am67BCNssv88LQboZsL73ruEGxgbX3tVfbuCpjx9Q3eAWiHmwC")
	require.Error(t, err)
}
