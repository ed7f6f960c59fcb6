package v2

import (
	"fmt"
	"io"

	"github.com/axeforge/bitaxe-core/internal/noise"
)

// transport is the post-handshake encrypted framing layer (spec
// §4.7): header and payload are separately AEAD-sealed with the
// cipher's own monotonic nonce, one seal call each.
type transport struct {
	rw   io.ReadWriter
	send *noise.TransportCipher
	recv *noise.TransportCipher
}

func newTransport(rw io.ReadWriter, send, recv *noise.TransportCipher) *transport {
	return &transport{rw: rw, send: send, recv: recv}
}

// writeMessage seals and writes one frame: msgType/extensionType
// header plus payload, as two separate AEAD-sealed segments.
func (t *transport) writeMessage(msgType uint8, extensionType uint16, payload []byte) error {
	header, err := EncodeFrameHeader(FrameHeader{ExtensionType: extensionType, MsgType: msgType, MsgLength: uint32(len(payload))})
	if err != nil {
		return err
	}
	sealedHeader, err := t.send.Seal(nil, header)
	if err != nil {
		return fmt.Errorf("v2: seal header: %w", err)
	}
	sealedPayload, err := t.send.Seal(nil, payload)
	if err != nil {
		return fmt.Errorf("v2: seal payload: %w", err)
	}
	if _, err := t.rw.Write(sealedHeader); err != nil {
		return err
	}
	_, err = t.rw.Write(sealedPayload)
	return err
}

// readMessage decrypts the next header then its payload, mirroring
// writeMessage's order.
func (t *transport) readMessage() (FrameHeader, []byte, error) {
	var sealedHeader [HeaderSize + 16]byte
	if _, err := io.ReadFull(t.rw, sealedHeader[:]); err != nil {
		return FrameHeader{}, nil, err
	}
	headerBytes, err := t.recv.Open(nil, sealedHeader[:])
	if err != nil {
		return FrameHeader{}, nil, fmt.Errorf("v2: open header: %w", err)
	}
	header, err := DecodeFrameHeader(headerBytes)
	if err != nil {
		return FrameHeader{}, nil, err
	}

	sealedPayload := make([]byte, int(header.MsgLength)+16)
	if _, err := io.ReadFull(t.rw, sealedPayload); err != nil {
		return FrameHeader{}, nil, err
	}
	payload, err := t.recv.Open(nil, sealedPayload)
	if err != nil {
		return FrameHeader{}, nil, fmt.Errorf("v2: open payload: %w", err)
	}
	return header, payload, nil
}
