// Package noise implements the Noise_NX_Secp256k1+EllSwift_ChaChaPoly_SHA256
// handshake the V2 pool client speaks (spec §4.7/§6), built on the same
// github.com/btcsuite/btcd/btcec/v2 curve the original node uses for its
// own Schnorr/Taproot work (toole-brendan-shell/txscript/taproot_shell.go,
// crypto/musig2/musig2.go) rather than the X25519 primitives a generic
// Noise library would reach for.
package noise

import (
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// curveB is secp256k1's b parameter (y^2 = x^3 + 7); a is always 0.
var curveB = big.NewInt(7)

func curveP() *big.Int {
	return btcec.S256().Params().P
}

func fieldAdd(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Add(a, b), curveP())
}

func fieldSub(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Sub(a, b), curveP())
}

func fieldMul(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Mul(a, b), curveP())
}

func fieldSquare(a *big.Int) *big.Int {
	return fieldMul(a, a)
}

func fieldInv(a *big.Int) *big.Int {
	p := curveP()
	return new(big.Int).Exp(a, new(big.Int).Sub(p, big.NewInt(2)), p)
}

func fieldDiv(a, b *big.Int) *big.Int {
	return fieldMul(a, fieldInv(b))
}

func fieldNeg(a *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Neg(a), curveP())
}

// isSquare reports whether a is a quadratic residue mod p, using
// Euler's criterion. p mod 4 == 3 for secp256k1, so square roots
// exist in closed form (sqrtMod below) whenever this holds.
func isSquare(a *big.Int) bool {
	p := curveP()
	if a.Sign() == 0 {
		return true
	}
	e := new(big.Int).Rsh(new(big.Int).Sub(p, big.NewInt(1)), 1)
	r := new(big.Int).Exp(a, e, p)
	return r.Cmp(big.NewInt(1)) == 0
}

// sqrtMod returns a square root of a mod p, valid because secp256k1's
// prime satisfies p = 3 (mod 4): sqrt(a) = a^((p+1)/4) mod p. Callers
// must check isSquare(a) first; the result is otherwise meaningless.
func sqrtMod(a *big.Int) *big.Int {
	p := curveP()
	e := new(big.Int).Rsh(new(big.Int).Add(p, big.NewInt(1)), 2)
	return new(big.Int).Exp(a, e, p)
}

// curveEquation evaluates x^3 + 7 mod p.
func curveEquation(x *big.Int) *big.Int {
	x3 := fieldMul(fieldSquare(x), x)
	return fieldAdd(x3, curveB)
}

// isValidX reports whether x is the x-coordinate of some point on
// secp256k1, i.e. x^3+7 is a quadratic residue.
func isValidX(x *big.Int) bool {
	return isSquare(curveEquation(x))
}
