package logbuffer

import "encoding/binary"

// Frame layout inside a term buffer. Every frame starts with an 8-byte
// header followed by the payload, and frames are aligned to FrameAlignment
// so a header never straddles a cache line boundary unaligned.
//
//	0       4       5       6       8
//	+-------+-------+-------+-------+
//	| length| type  | flags | rsvd  |
//	+-------+-------+-------+-------+
//	| payload ...                   |
//
// length is the full frame length (header + payload) before alignment
// padding. A frame of type FrameTypePadding fills the remainder of a term
// when the next message does not fit; padding frames are skipped by
// readers and never delivered.
const (
	HeaderLength   = 8
	FrameAlignment = 8

	lengthOffset = 0
	typeOffset   = 4
	flagsOffset  = 5
)

const (
	FrameTypePadding uint8 = 0x00
	FrameTypeData    uint8 = 0x01
)

// Flag bits. An unfragmented message carries both BEGIN and END.
const (
	FlagBegin      uint8 = 0x80
	FlagEnd        uint8 = 0x40
	FlagUnfragment uint8 = FlagBegin | FlagEnd
)

// Align rounds length up to the next multiple of FrameAlignment.
func Align(length int32) int32 {
	return (length + (FrameAlignment - 1)) &^ (FrameAlignment - 1)
}

// FrameLength reads the stored frame length at offset within term.
func FrameLength(term []byte, offset int32) int32 {
	return int32(binary.LittleEndian.Uint32(term[offset+lengthOffset:]))
}

// FrameType reads the frame type at offset within term.
func FrameType(term []byte, offset int32) uint8 {
	return term[offset+typeOffset]
}

// FrameFlags reads the frame flags at offset within term.
func FrameFlags(term []byte, offset int32) uint8 {
	return term[offset+flagsOffset]
}

// writeFrameHeader lays down a complete header at offset within term.
func writeFrameHeader(term []byte, offset, frameLength int32, frameType, flags uint8) {
	binary.LittleEndian.PutUint32(term[offset+lengthOffset:], uint32(frameLength))
	term[offset+typeOffset] = frameType
	term[offset+flagsOffset] = flags
	term[offset+6] = 0
	term[offset+7] = 0
}
