// Package v2 implements the Stratum V2 pool client (C6): binary frame
// encoding over a Noise_NX-encrypted transport, carrying the mining
// protocol's channel/job messages (spec §4.7/§6).
package v2

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Message type codes, spec §6's table — not chimera-pool-core's byte
// allocation (that example uses 0x30/0x32/0x33 for the submit-shares
// family; this core's wire format uses 0x1a/0x1c/0x1d per spec).
const (
	MsgTypeSetupConnection               uint8 = 0x00
	MsgTypeSetupConnectionSuccess        uint8 = 0x01
	MsgTypeSetupConnectionError          uint8 = 0x02
	MsgTypeOpenStandardMiningChannel     uint8 = 0x10
	MsgTypeOpenStandardMiningChannelOK   uint8 = 0x11
	MsgTypeOpenMiningChannelError        uint8 = 0x12
	MsgTypeNewMiningJob                  uint8 = 0x15
	MsgTypeSubmitSharesStandard          uint8 = 0x1a
	MsgTypeSubmitSharesSuccess           uint8 = 0x1c
	MsgTypeSubmitSharesError             uint8 = 0x1d
	MsgTypeSetNewPrevHash                uint8 = 0x20
	MsgTypeSetTarget                     uint8 = 0x21
)

// channelMsgBit is OR'd into extension_type for channel-scoped
// messages (spec §6: "Channel messages OR 0x8000 into extension_type").
const channelMsgBit uint16 = 0x8000

// SetupConnection protocol/version/flags constants, spec §4.7.
const (
	MiningProtocol          uint8  = 0
	MinProtocolVersion      uint16 = 2
	MaxProtocolVersion      uint16 = 2
	FlagRequiresStandardJob uint32 = 1
)

const HeaderSize = 6

var (
	ErrTruncated = errors.New("v2: truncated message")
	ErrTooLong   = errors.New("v2: message exceeds 2^24-1 bytes")
)

// FrameHeader is the 6-byte frame header preceding every SV2 payload
// (spec §4.7: 2-byte LE extension_type, 1-byte msg_type, 3-byte LE
// msg_length).
type FrameHeader struct {
	ExtensionType uint16
	MsgType       uint8
	MsgLength     uint32 // 24-bit on the wire
}

// EncodeFrameHeader serializes h, matching spec §8 property 2 exactly
// (encode_frame_header(0x0000,0x00,0) == 00 00 00 00 00 00).
func EncodeFrameHeader(h FrameHeader) ([]byte, error) {
	if h.MsgLength > 0xFFFFFF {
		return nil, ErrTooLong
	}
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], h.ExtensionType)
	buf[2] = h.MsgType
	buf[3] = byte(h.MsgLength)
	buf[4] = byte(h.MsgLength >> 8)
	buf[5] = byte(h.MsgLength >> 16)
	return buf, nil
}

// DecodeFrameHeader is EncodeFrameHeader's inverse (spec §8 property 1:
// parse(encode(h)) == h for all valid headers).
func DecodeFrameHeader(data []byte) (FrameHeader, error) {
	if len(data) < HeaderSize {
		return FrameHeader{}, ErrTruncated
	}
	return FrameHeader{
		ExtensionType: binary.LittleEndian.Uint16(data[0:2]),
		MsgType:       data[2],
		MsgLength:     uint32(data[3]) | uint32(data[4])<<8 | uint32(data[5])<<16,
	}, nil
}

// STR0_255 is a 1-byte-length-prefixed string (spec §4.7).
type STR0_255 string

// serializer accumulates a message payload byte by byte, the same
// writer shape as chimera-pool-core's binary.Serializer.
type serializer struct {
	buf []byte
}

func newSerializer() *serializer { return &serializer{buf: make([]byte, 0, 128)} }

func (s *serializer) writeU8(v uint8)   { s.buf = append(s.buf, v) }
func (s *serializer) writeBool(v bool) {
	if v {
		s.writeU8(1)
	} else {
		s.writeU8(0)
	}
}
func (s *serializer) writeU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	s.buf = append(s.buf, b[:]...)
}
func (s *serializer) writeU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}
func (s *serializer) writeU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	s.buf = append(s.buf, b[:]...)
}
func (s *serializer) writeF32(v float32) { s.writeU32(math.Float32bits(v)) }
func (s *serializer) writeFixed(b []byte) { s.buf = append(s.buf, b...) }
func (s *serializer) writeSTR0_255(str STR0_255) {
	v := string(str)
	if len(v) > 255 {
		v = v[:255]
	}
	s.writeU8(uint8(len(v)))
	s.buf = append(s.buf, v...)
}

// deserializer reads a message payload sequentially, mirroring
// chimera-pool-core's binary.Deserializer.
type deserializer struct {
	data []byte
	pos  int
}

func newDeserializer(data []byte) *deserializer { return &deserializer{data: data} }

func (d *deserializer) remaining() int { return len(d.data) - d.pos }

func (d *deserializer) readU8() (uint8, error) {
	if d.remaining() < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	v := d.data[d.pos]
	d.pos++
	return v, nil
}
func (d *deserializer) readBool() (bool, error) {
	v, err := d.readU8()
	return v != 0, err
}
func (d *deserializer) readU16() (uint16, error) {
	if d.remaining() < 2 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v, nil
}
func (d *deserializer) readU32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}
func (d *deserializer) readU64() (uint64, error) {
	if d.remaining() < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v, nil
}
func (d *deserializer) readF32() (float32, error) {
	bits, err := d.readU32()
	return math.Float32frombits(bits), err
}
func (d *deserializer) readFixed32() ([32]byte, error) {
	var v [32]byte
	if d.remaining() < 32 {
		return v, io.ErrUnexpectedEOF
	}
	copy(v[:], d.data[d.pos:d.pos+32])
	d.pos += 32
	return v, nil
}
func (d *deserializer) readSTR0_255() (STR0_255, error) {
	length, err := d.readU8()
	if err != nil {
		return "", err
	}
	if d.remaining() < int(length) {
		return "", io.ErrUnexpectedEOF
	}
	v := string(d.data[d.pos : d.pos+int(length)])
	d.pos += int(length)
	return STR0_255(v), nil
}
