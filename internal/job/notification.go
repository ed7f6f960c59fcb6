package job

import "github.com/axeforge/bitaxe-core/pkg/mining"

// V1Notification is a decoded Stratum V1 mining.notify, the pool
// client's output and the job builder's input for the V1 path (spec
// §3 MiningJob). Stratum V1 hands prev_hash over the wire in display
// byte order (spec §9 Design Notes), hence DisplayHash here against
// V2Notification's InternalHash below.
type V1Notification struct {
	JobID           string
	PrevHash        mining.DisplayHash
	CoinbasePrefix  []byte
	CoinbaseSuffix  []byte
	MerkleBranch    []mining.InternalHash
	Version         uint32
	NBits           uint32
	NTime           uint32
	CleanJobs       bool
	PoolDifficulty  float64
	Extranonce1     []byte
	Extranonce2Size int
}

// V2Notification is a decoded Stratum V2 NewMiningJob/SetNewPrevHash
// pair merged into one record, the job builder's input for the V2
// path (spec §3 Sv2Job).
type V2Notification struct {
	JobID          uint32
	Version        uint32
	MerkleRoot     mining.InternalHash
	PrevHash       mining.InternalHash
	NBits          uint32
	NTime          uint32
	CleanJobs      bool
	PoolDifficulty float64
}
