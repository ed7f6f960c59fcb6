package v2

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/axeforge/bitaxe-core/pkg/mining"
)

func TestSetupConnectionSuccessRoundTrip(t *testing.T) {
	want := SetupConnectionSuccess{UsedVersion: 2, Flags: 1}
	s := newSerializer()
	s.writeU16(want.UsedVersion)
	s.writeU32(want.Flags)

	got, err := deserializeSetupConnectionSuccess(s.buf)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSetupConnectionErrorRoundTrip(t *testing.T) {
	s := newSerializer()
	s.writeU32(7)
	s.writeSTR0_255("unsupported-protocol")

	got, err := deserializeSetupConnectionError(s.buf)
	require.NoError(t, err)
	require.Equal(t, uint32(7), got.Flags)
	require.Equal(t, STR0_255("unsupported-protocol"), got.ErrorCode)
}

func TestOpenStandardMiningChannelSerialize(t *testing.T) {
	var maxTarget [32]byte
	for i := range maxTarget {
		maxTarget[i] = 0xFF
	}
	m := OpenStandardMiningChannel{
		RequestID:       1,
		UserIdentity:    "worker.1",
		NominalHashrate: 500.5,
		MaxTarget:       maxTarget,
	}
	buf := m.serialize()

	d := newDeserializer(buf)
	reqID, err := d.readU32()
	require.NoError(t, err)
	require.Equal(t, uint32(1), reqID)
	user, err := d.readSTR0_255()
	require.NoError(t, err)
	require.Equal(t, STR0_255("worker.1"), user)
	hashrate, err := d.readF32()
	require.NoError(t, err)
	require.InDelta(t, float32(500.5), hashrate, 0.001)
	target, err := d.readFixed32()
	require.NoError(t, err)
	require.Equal(t, maxTarget, target)
}

func TestOpenStandardMiningChannelSuccessRoundTrip(t *testing.T) {
	var target [32]byte
	target[0] = 0x01

	s := newSerializer()
	s.writeU32(1)   // request_id
	s.writeU32(42)  // channel_id
	s.writeFixed(target[:])
	prefix := []byte{0xaa, 0xbb, 0xcc}
	s.writeU8(uint8(len(prefix)))
	s.buf = append(s.buf, prefix...)
	s.writeU32(7) // group_channel_id

	got, err := deserializeOpenStandardMiningChannelSuccess(s.buf)
	require.NoError(t, err)
	require.Equal(t, uint32(1), got.RequestID)
	require.Equal(t, uint32(42), got.ChannelID)
	require.Equal(t, target, got.Target)
	require.Equal(t, prefix, got.ExtranoncePrefix)
	require.Equal(t, uint32(7), got.GroupChannelID)
}

func TestNewMiningJobImmediateRoundTrip(t *testing.T) {
	var root mining.InternalHash
	root[0] = 0xAB

	s := newSerializer()
	s.writeU32(1)    // channel_id
	s.writeU32(99)   // job_id
	s.writeBool(true)
	s.writeU32(1700000000) // min_ntime
	s.writeU32(0x20000000) // version
	s.writeFixed(root[:])

	got, err := deserializeNewMiningJob(s.buf)
	require.NoError(t, err)
	require.True(t, got.HasMinNTime)
	require.Equal(t, uint32(1700000000), got.MinNTime)
	require.Equal(t, uint32(99), got.JobID)
	require.Equal(t, root, got.MerkleRoot)
}

func TestNewMiningJobFutureRoundTrip(t *testing.T) {
	s := newSerializer()
	s.writeU32(1)  // channel_id
	s.writeU32(5)  // job_id
	s.writeBool(false)
	s.writeU32(0x20000000) // version
	var root mining.InternalHash
	s.writeFixed(root[:])

	got, err := deserializeNewMiningJob(s.buf)
	require.NoError(t, err)
	require.False(t, got.HasMinNTime)
	require.Equal(t, uint32(0), got.MinNTime)
	require.Equal(t, uint32(5), got.JobID)
}

func TestSetNewPrevHashRoundTrip(t *testing.T) {
	var prevHash mining.InternalHash
	prevHash[31] = 0x01

	s := newSerializer()
	s.writeU32(1) // channel_id
	s.writeU32(5) // job_id
	s.writeFixed(prevHash[:])
	s.writeU32(1700000001) // min_ntime
	s.writeU32(0x1d00ffff) // nbits

	got, err := deserializeSetNewPrevHash(s.buf)
	require.NoError(t, err)
	require.Equal(t, uint32(5), got.JobID)
	require.Equal(t, prevHash, got.PrevHash)
	require.Equal(t, uint32(1700000001), got.MinNTime)
	require.Equal(t, uint32(0x1d00ffff), got.NBits)
}

func TestSubmitSharesStandardRoundTrip(t *testing.T) {
	want := SubmitSharesStandard{
		ChannelID:   1,
		SequenceNum: 9,
		JobID:       5,
		Nonce:       0xdeadbeef,
		NTime:       1700000002,
		Version:     0x20000000,
	}
	d := newDeserializer(want.serialize())
	var got SubmitSharesStandard
	var err error
	got.ChannelID, err = d.readU32()
	require.NoError(t, err)
	got.SequenceNum, err = d.readU32()
	require.NoError(t, err)
	got.JobID, err = d.readU32()
	require.NoError(t, err)
	got.Nonce, err = d.readU32()
	require.NoError(t, err)
	got.NTime, err = d.readU32()
	require.NoError(t, err)
	got.Version, err = d.readU32()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSubmitSharesSuccessAndErrorRoundTrip(t *testing.T) {
	s := newSerializer()
	s.writeU32(1)
	s.writeU32(9)
	s.writeU32(1)
	s.writeU64(1000)
	success, err := deserializeSubmitSharesSuccess(s.buf)
	require.NoError(t, err)
	require.Equal(t, uint32(1), success.ChannelID)
	require.Equal(t, uint64(1000), success.NewDifficulty)

	e := newSerializer()
	e.writeU32(1)
	e.writeU32(9)
	e.writeSTR0_255("stale share")
	fail, err := deserializeSubmitSharesError(e.buf)
	require.NoError(t, err)
	require.Equal(t, STR0_255("stale share"), fail.ErrorCode)
}
