package mining

// FoldMerkle combines a coinbase transaction hash with an ordered
// list of merkle branch hashes into the block's merkle root, per
// spec §4.4's V1 work-generation recipe: concatenate, double-SHA-256,
// repeat for every branch entry in order.
//
// Hashes here are InternalHash (raw SHA-256 byte order); Stratum V1
// wire-transmits merkle branches in internal order already, so no
// reversal is needed before folding.
func FoldMerkle(coinbaseHash InternalHash, branch []InternalHash) InternalHash {
	acc := coinbaseHash
	for _, node := range branch {
		buf := make([]byte, 64)
		copy(buf[:32], acc[:])
		copy(buf[32:], node[:])
		acc = DoubleSHA256(buf)
	}
	return acc
}

// AssembleCoinbase concatenates the pool-supplied coinbase prefix,
// extranonce_1, extranonce_2, and coinbase suffix into the full
// coinbase transaction bytes, per spec §4.4.
func AssembleCoinbase(prefix []byte, extranonce1, extranonce2 []byte, suffix []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(extranonce1)+len(extranonce2)+len(suffix))
	out = append(out, prefix...)
	out = append(out, extranonce1...)
	out = append(out, extranonce2...)
	out = append(out, suffix...)
	return out
}

// CoinbaseHash returns the double-SHA-256 of the assembled coinbase
// transaction, ready to seed FoldMerkle.
func CoinbaseHash(coinbase []byte) InternalHash {
	return DoubleSHA256(coinbase)
}
