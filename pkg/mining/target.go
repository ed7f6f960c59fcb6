package mining

import (
	"math/big"
)

// Diff1Target is the "true difficulty 1" target, the same constant
// toole-brendan-shell's blockchain package derives compact-bits work
// from (powLimit for difficulty 1 on Bitcoin-style chains):
// 0x00000000FFFF0000000000000000000000000000000000000000000000000000.
var Diff1Target = func() *big.Int {
	t, _ := new(big.Int).SetString("00000000FFFF0000000000000000000000000000000000000000000000000000", 16)
	return t
}()

// CompactToTarget expands Bitcoin's compact "nBits" encoding into a
// full 256-bit target, the standard mantissa*256^(exponent-3) form.
func CompactToTarget(nBits uint32) *big.Int {
	exponent := nBits >> 24
	mantissa := new(big.Int).SetUint64(uint64(nBits & 0x007fffff))

	if nBits&0x00800000 != 0 {
		// Negative targets never occur on real chains; treat as zero.
		return big.NewInt(0)
	}

	if exponent <= 3 {
		return mantissa.Rsh(mantissa, uint(8*(3-exponent)))
	}
	return mantissa.Lsh(mantissa, uint(8*(exponent-3)))
}

// HashToU256LE interprets a 32-byte internal-order hash as a
// little-endian unsigned 256-bit integer, per spec §4.5's difficulty
// computation ("interpret the digest as a little-endian U256").
func HashToU256LE(h InternalHash) *big.Int {
	rev := make([]byte, 32)
	for i := range h {
		rev[i] = h[31-i]
	}
	return new(big.Int).SetBytes(rev)
}

// Difficulty computes "true difficulty 1" / target for the given
// digest, per spec §4.5. A zero digest yields difficulty 0 instead of
// dividing by zero.
func Difficulty(h InternalHash) float64 {
	v := HashToU256LE(h)
	if v.Sign() == 0 {
		return 0
	}
	ratio := new(big.Rat).SetFrac(Diff1Target, v)
	f, _ := ratio.Float64()
	return f
}

// NetworkDifficulty is the block-solution threshold implied by nBits,
// used by the result task to detect block solutions (spec §4.5).
func NetworkDifficulty(nBits uint32) float64 {
	target := CompactToTarget(nBits)
	if target.Sign() == 0 {
		return 0
	}
	ratio := new(big.Rat).SetFrac(Diff1Target, target)
	f, _ := ratio.Float64()
	return f
}
