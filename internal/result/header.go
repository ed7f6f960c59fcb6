package result

import (
	"encoding/binary"

	"github.com/axeforge/bitaxe-core/internal/job"
	"github.com/axeforge/bitaxe-core/pkg/mining"
)

// rebuildHeader lays out the full 80-byte block header in internal
// (hashing) byte order. BmJob stores its merkle root and prev hash
// byte-reversed for the chip (spec §3's BmJob description); reverse
// them back before hashing.
func rebuildHeader(j *job.BmJob, version, nonce uint32) []byte {
	prevHash := mining.DisplayHash(j.PrevHash).Reverse()
	merkleRoot := mining.DisplayHash(j.MerkleRoot).Reverse()

	buf := make([]byte, 80)
	binary.LittleEndian.PutUint32(buf[0:4], version)
	copy(buf[4:36], prevHash[:])
	copy(buf[36:68], merkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], j.NTime)
	binary.LittleEndian.PutUint32(buf[72:76], j.NBits)
	binary.LittleEndian.PutUint32(buf[76:80], nonce)
	return buf
}
