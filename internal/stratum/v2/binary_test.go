package v2

import "testing"

func TestFrameHeaderRoundTrip(t *testing.T) {
	cases := []FrameHeader{
		{ExtensionType: 0, MsgType: 0, MsgLength: 0},
		{ExtensionType: 0x8000, MsgType: 0x15, MsgLength: 1234},
		{ExtensionType: 0xFFFF, MsgType: 0xFF, MsgLength: 0xFFFFFF},
	}
	for _, h := range cases {
		buf, err := EncodeFrameHeader(h)
		if err != nil {
			t.Fatalf("encode %+v: %v", h, err)
		}
		got, err := DecodeFrameHeader(buf)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != h {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
		}
	}
}

func TestEncodeFrameHeaderZeroIsAllZeroBytes(t *testing.T) {
	buf, err := EncodeFrameHeader(FrameHeader{})
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#02x, want 0", i, b)
		}
	}
}

func TestEncodeFrameHeaderRejectsOverlongMessage(t *testing.T) {
	_, err := EncodeFrameHeader(FrameHeader{MsgLength: 0x1000000})
	if err != ErrTooLong {
		t.Fatalf("got %v, want ErrTooLong", err)
	}
}

func TestDecodeFrameHeaderRejectsTruncated(t *testing.T) {
	_, err := DecodeFrameHeader([]byte{0, 0, 0})
	if err != ErrTruncated {
		t.Fatalf("got %v, want ErrTruncated", err)
	}
}
