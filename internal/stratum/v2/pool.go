package v2

// PoolConfig is the SV2 pool's connection parameters (spec §6: pool
// URL/port, plus the worker identity and the base58check-encoded
// authority pubkey used to authenticate the pool's Noise static key).
type PoolConfig struct {
	URL              string
	Port             uint16
	User             string
	AuthorityPubkey  string // base58check; empty disables certificate verification
}
