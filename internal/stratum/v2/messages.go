package v2

import "github.com/axeforge/bitaxe-core/pkg/mining"

// SetupConnection is the client's connection-setup handshake message
// (spec §4.7: "mining protocol (0), min/max version = 2, flags = 1").
type SetupConnection struct {
	Protocol        uint8
	MinVersion      uint16
	MaxVersion      uint16
	Flags           uint32
	Endpoint        STR0_255
	Vendor          STR0_255
	HardwareVersion STR0_255
	FirmwareVersion STR0_255
	DeviceID        STR0_255
}

func (m SetupConnection) serialize() []byte {
	s := newSerializer()
	s.writeU8(m.Protocol)
	s.writeU16(m.MinVersion)
	s.writeU16(m.MaxVersion)
	s.writeU32(m.Flags)
	s.writeSTR0_255(m.Endpoint)
	s.writeSTR0_255(m.Vendor)
	s.writeSTR0_255(m.HardwareVersion)
	s.writeSTR0_255(m.FirmwareVersion)
	s.writeSTR0_255(m.DeviceID)
	return s.buf
}

type SetupConnectionSuccess struct {
	UsedVersion uint16
	Flags       uint32
}

func deserializeSetupConnectionSuccess(payload []byte) (SetupConnectionSuccess, error) {
	d := newDeserializer(payload)
	var m SetupConnectionSuccess
	var err error
	if m.UsedVersion, err = d.readU16(); err != nil {
		return m, err
	}
	m.Flags, err = d.readU32()
	return m, err
}

type SetupConnectionError struct {
	Flags     uint32
	ErrorCode STR0_255
}

func deserializeSetupConnectionError(payload []byte) (SetupConnectionError, error) {
	d := newDeserializer(payload)
	var m SetupConnectionError
	var err error
	if m.Flags, err = d.readU32(); err != nil {
		return m, err
	}
	m.ErrorCode, err = d.readSTR0_255()
	return m, err
}

// OpenStandardMiningChannel opens the single channel this core ever
// uses; max_target is all-0xFF per spec §4.7.
type OpenStandardMiningChannel struct {
	RequestID       uint32
	UserIdentity    STR0_255
	NominalHashrate float32
	MaxTarget       [32]byte
}

func (m OpenStandardMiningChannel) serialize() []byte {
	s := newSerializer()
	s.writeU32(m.RequestID)
	s.writeSTR0_255(m.UserIdentity)
	s.writeF32(m.NominalHashrate)
	s.writeFixed(m.MaxTarget[:])
	return s.buf
}

type OpenStandardMiningChannelSuccess struct {
	RequestID       uint32
	ChannelID       uint32
	Target          [32]byte
	ExtranoncePrefix []byte
	GroupChannelID  uint32
}

func deserializeOpenStandardMiningChannelSuccess(payload []byte) (OpenStandardMiningChannelSuccess, error) {
	d := newDeserializer(payload)
	var m OpenStandardMiningChannelSuccess
	var err error
	if m.RequestID, err = d.readU32(); err != nil {
		return m, err
	}
	if m.ChannelID, err = d.readU32(); err != nil {
		return m, err
	}
	if m.Target, err = d.readFixed32(); err != nil {
		return m, err
	}
	prefixLen, err := d.readU8()
	if err != nil {
		return m, err
	}
	if d.remaining() < int(prefixLen) {
		return m, ErrTruncated
	}
	m.ExtranoncePrefix = append([]byte(nil), d.data[d.pos:d.pos+int(prefixLen)]...)
	d.pos += int(prefixLen)
	m.GroupChannelID, err = d.readU32()
	return m, err
}

type OpenMiningChannelError struct {
	RequestID uint32
	ErrorCode STR0_255
}

func deserializeOpenMiningChannelError(payload []byte) (OpenMiningChannelError, error) {
	d := newDeserializer(payload)
	var m OpenMiningChannelError
	var err error
	if m.RequestID, err = d.readU32(); err != nil {
		return m, err
	}
	m.ErrorCode, err = d.readSTR0_255()
	return m, err
}

// NewMiningJob delivers channel_id, job_id, an optional min_ntime
// (HasMinNTime false means "future job", spec §4.7), version, and the
// internal-order merkle root.
type NewMiningJob struct {
	ChannelID   uint32
	JobID       uint32
	HasMinNTime bool
	MinNTime    uint32
	Version     uint32
	MerkleRoot  mining.InternalHash
}

func deserializeNewMiningJob(payload []byte) (NewMiningJob, error) {
	d := newDeserializer(payload)
	var m NewMiningJob
	var err error
	if m.ChannelID, err = d.readU32(); err != nil {
		return m, err
	}
	if m.JobID, err = d.readU32(); err != nil {
		return m, err
	}
	if m.HasMinNTime, err = d.readBool(); err != nil {
		return m, err
	}
	if m.HasMinNTime {
		if m.MinNTime, err = d.readU32(); err != nil {
			return m, err
		}
	}
	if m.Version, err = d.readU32(); err != nil {
		return m, err
	}
	root, err := d.readFixed32()
	m.MerkleRoot = mining.InternalHash(root)
	return m, err
}

// SetNewPrevHash binds job_id to a prev_hash/min_ntime/nBits triple
// (spec §4.7).
type SetNewPrevHash struct {
	ChannelID uint32
	JobID     uint32
	PrevHash  mining.InternalHash
	MinNTime  uint32
	NBits     uint32
}

func deserializeSetNewPrevHash(payload []byte) (SetNewPrevHash, error) {
	d := newDeserializer(payload)
	var m SetNewPrevHash
	var err error
	if m.ChannelID, err = d.readU32(); err != nil {
		return m, err
	}
	if m.JobID, err = d.readU32(); err != nil {
		return m, err
	}
	raw, err := d.readFixed32()
	if err != nil {
		return m, err
	}
	m.PrevHash = mining.InternalHash(raw)
	if m.MinNTime, err = d.readU32(); err != nil {
		return m, err
	}
	m.NBits, err = d.readU32()
	return m, err
}

// SetTarget updates the pool target, U256 little-endian (spec §4.7).
type SetTarget struct {
	ChannelID uint32
	MaxTarget [32]byte
}

func deserializeSetTarget(payload []byte) (SetTarget, error) {
	d := newDeserializer(payload)
	var m SetTarget
	var err error
	if m.ChannelID, err = d.readU32(); err != nil {
		return m, err
	}
	m.MaxTarget, err = d.readFixed32()
	return m, err
}

// SubmitSharesStandard is the 6xu32 share-submission payload (spec
// §4.7).
type SubmitSharesStandard struct {
	ChannelID   uint32
	SequenceNum uint32
	JobID       uint32
	Nonce       uint32
	NTime       uint32
	Version     uint32
}

func (m SubmitSharesStandard) serialize() []byte {
	s := newSerializer()
	s.writeU32(m.ChannelID)
	s.writeU32(m.SequenceNum)
	s.writeU32(m.JobID)
	s.writeU32(m.Nonce)
	s.writeU32(m.NTime)
	s.writeU32(m.Version)
	return s.buf
}

type SubmitSharesSuccess struct {
	ChannelID       uint32
	LastSequenceNum uint32
	NewSubmits      uint32
	NewDifficulty   uint64
}

func deserializeSubmitSharesSuccess(payload []byte) (SubmitSharesSuccess, error) {
	d := newDeserializer(payload)
	var m SubmitSharesSuccess
	var err error
	if m.ChannelID, err = d.readU32(); err != nil {
		return m, err
	}
	if m.LastSequenceNum, err = d.readU32(); err != nil {
		return m, err
	}
	if m.NewSubmits, err = d.readU32(); err != nil {
		return m, err
	}
	m.NewDifficulty, err = d.readU64()
	return m, err
}

type SubmitSharesError struct {
	ChannelID   uint32
	SequenceNum uint32
	ErrorCode   STR0_255
}

func deserializeSubmitSharesError(payload []byte) (SubmitSharesError, error) {
	d := newDeserializer(payload)
	var m SubmitSharesError
	var err error
	if m.ChannelID, err = d.readU32(); err != nil {
		return m, err
	}
	if m.SequenceNum, err = d.readU32(); err != nil {
		return m, err
	}
	m.ErrorCode, err = d.readSTR0_255()
	return m, err
}
