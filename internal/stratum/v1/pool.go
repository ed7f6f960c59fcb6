// Package v1 implements the Stratum V1 JSON-RPC pool client (C5):
// newline-delimited JSON-RPC over TCP, primary/fallback failover,
// and the mining.* message set spec §4.6 describes.
package v1

// PoolConfig names one pool endpoint and its credentials, the
// client-side mirror of the original firmware's per-pool NVS entries
// (spec §6 keys stratumURL/stratumPort/stratumUser/...).
type PoolConfig struct {
	URL                 string
	Port                uint16
	User                string
	Pass                string
	TLS                 bool
	SuggestedDifficulty uint16
	ExtranonceSubscribe bool
}

func (p PoolConfig) configured() bool { return p.URL != "" }
