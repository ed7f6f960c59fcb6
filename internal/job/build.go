package job

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/axeforge/bitaxe-core/pkg/mining"
)

// headerPrefixLen is the part of an 80-byte block header the SHA-256
// midstate covers: version ‖ prev_hash ‖ merkle_root[0:28] (spec §4.4:
// "the SHA-256 midstate covers bytes 0-63 of the block header").
const headerPrefixLen = 64

// buildHeaderPrefix lays out the first 64 bytes of a block header in
// internal (hashing) byte order: version, then prevHash and
// merkleRoot as produced by the hash function itself, no reversal.
func buildHeaderPrefix(version uint32, prevHash, merkleRoot mining.InternalHash) []byte {
	buf := make([]byte, headerPrefixLen)
	binary.LittleEndian.PutUint32(buf[0:4], version)
	copy(buf[4:36], prevHash[:])
	copy(buf[36:64], merkleRoot[:28])
	return buf
}

// scatterBits distributes value's low-order bits into mask's set-bit
// positions, e.g. scatterBits(0b101, 0b10110) places bit 0 of value
// into mask's lowest set bit, bit 1 into the next, and so on. This is
// the standard BIP320 technique for enumerating distinct rolled
// version values from a counter and a rolling mask.
func scatterBits(value, mask uint32) uint32 {
	var result uint32
	for mask != 0 {
		lsb := mask & (^mask + 1)
		if value&1 != 0 {
			result |= lsb
		}
		mask &^= lsb
		value >>= 1
	}
	return result
}

// RollVersions returns count distinct version values derived from
// baseVersion by rolling the bits named in mask, per BIP320 and spec
// §4.4's "the builder precomputes four midstates by repeatedly
// OR-incrementing the masked bits of the base version". A zero mask
// (no version-rolling support) yields count copies of baseVersion.
func RollVersions(baseVersion, mask uint32, count int) []uint32 {
	versions := make([]uint32, count)
	fixed := baseVersion &^ mask
	for i := 0; i < count; i++ {
		if mask == 0 {
			versions[i] = baseVersion
			continue
		}
		versions[i] = fixed | scatterBits(uint32(i), mask)
	}
	return versions
}

// midstatesForVersions computes one midstate per entry in versions,
// reusing prevHash and merkleRoot across all of them — version lives
// in the first word of the header prefix, so only that word changes
// between midstates.
func midstatesForVersions(versions []uint32, prevHash, merkleRoot mining.InternalHash) ([MaxMidstates]mining.InternalHash, error) {
	var out [MaxMidstates]mining.InternalHash
	for i, v := range versions {
		prefix := buildHeaderPrefix(v, prevHash, merkleRoot)
		mid, err := mining.Midstate(prefix)
		if err != nil {
			return out, fmt.Errorf("job: midstate %d: %w", i, err)
		}
		out[i] = mid
	}
	return out, nil
}

// BuildV1Job assembles a BmJob from a Stratum V1 notification, the
// chain's extranonce_1, a rolled extranonce_2 string, and the active
// version-rolling mask (0 disables rolling), per spec §4.4's V1 work
// generation recipe.
func BuildV1Job(n *V1Notification, extranonce2 string, versionMask uint32) (*BmJob, error) {
	extranonce2Bytes, err := hex.DecodeString(extranonce2)
	if err != nil {
		return nil, fmt.Errorf("job: decode extranonce_2 %q: %w", extranonce2, err)
	}

	coinbase := mining.AssembleCoinbase(n.CoinbasePrefix, n.Extranonce1, extranonce2Bytes, n.CoinbaseSuffix)
	coinbaseHash := mining.CoinbaseHash(coinbase)
	merkleRoot := mining.FoldMerkle(coinbaseHash, n.MerkleBranch)
	prevHash := n.PrevHash.Reverse()

	numMidstates := 1
	if versionMask != 0 {
		numMidstates = MaxMidstates
	}
	versions := RollVersions(n.Version, versionMask, numMidstates)
	midstates, err := midstatesForVersions(versions, prevHash, merkleRoot)
	if err != nil {
		return nil, err
	}

	return &BmJob{
		NumMidstates: numMidstates,
		Midstate:     midstates,
		MerkleRoot:   mining.InternalHash(merkleRoot.Reverse()),
		PrevHash:     mining.InternalHash(n.PrevHash),
		Version:      versions[0],
		NTime:        n.NTime,
		NBits:        n.NBits,
		Difficulty:   n.PoolDifficulty,
		VersionMask:  versionMask,
		Extranonce2:  extranonce2,
		PoolJobID:    n.JobID,
	}, nil
}

// BuildV2Job assembles a BmJob from a Stratum V2 notification.
// ntimeOffset is added to the notification's base nTime, letting the
// job builder roll ntime across repeated attempts against the same
// job the way V1 rolls extranonce_2 (spec §4.4: "the attempt counter
// rolls nTime rather than extranonce_2"). Merkle root and prev hash
// arrive from the pool already in internal order, so midstates are
// precomputed once per job and reused across every ntime increment —
// nTime lives in bytes 68-71 of the header, outside the 64-byte
// midstate prefix.
func BuildV2Job(n *V2Notification, ntimeOffset uint32, versionMask uint32) (*BmJob, error) {
	numMidstates := 1
	if versionMask != 0 {
		numMidstates = MaxMidstates
	}
	versions := RollVersions(n.Version, versionMask, numMidstates)
	midstates, err := midstatesForVersions(versions, n.PrevHash, n.MerkleRoot)
	if err != nil {
		return nil, err
	}

	return &BmJob{
		NumMidstates: numMidstates,
		Midstate:     midstates,
		MerkleRoot:   mining.InternalHash(n.MerkleRoot.Reverse()),
		PrevHash:     mining.InternalHash(n.PrevHash.Reverse()),
		Version:      versions[0],
		NTime:        n.NTime + ntimeOffset,
		NBits:        n.NBits,
		Difficulty:   n.PoolDifficulty,
		VersionMask:  versionMask,
		PoolJobID:    fmt.Sprintf("%d", n.JobID),
	}, nil
}
