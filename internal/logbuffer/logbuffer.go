package logbuffer

import (
	"fmt"
	"sync/atomic"
)

const (
	// TermMinLength bounds the smallest usable term. Anything smaller
	// cannot hold a useful run of frames between rotations.
	TermMinLength = 4 * 1024

	// TermDefaultLength is used when configuration does not override it.
	TermDefaultLength = 64 * 1024
)

// LogBuffer is the shared state between one exclusive writer and any
// number of readers: a fixed ring of terms plus the atomically published
// write position and flow-control limit. All cross-thread coordination
// goes through the two atomics; the term bytes themselves are only read
// below the published position, so no locks are needed.
type LogBuffer struct {
	termLength int32
	maxPayload int32

	terms [PartitionCount][]byte

	position  atomic.Int64 // published write position
	limit     atomic.Int64 // flow-control limit, owned by the conductor
	connected atomic.Bool  // at least one image attached, owned by the conductor
}

// NewLogBuffer allocates a log with PartitionCount terms of termLength
// bytes each. termLength must be a power of two within bounds.
func NewLogBuffer(termLength int32) (*LogBuffer, error) {
	if termLength < TermMinLength {
		return nil, fmt.Errorf("term length %d below minimum %d", termLength, TermMinLength)
	}
	if !IsPowerOfTwo(termLength) {
		return nil, fmt.Errorf("term length %d not a power of two", termLength)
	}
	lb := &LogBuffer{
		termLength: termLength,
		maxPayload: termLength/8 - HeaderLength,
	}
	for i := range lb.terms {
		lb.terms[i] = make([]byte, termLength)
	}
	return lb, nil
}

// TermLength returns the length of each term in the ring.
func (lb *LogBuffer) TermLength() int32 { return lb.termLength }

// MaxPayloadLength returns the largest payload Append accepts.
func (lb *LogBuffer) MaxPayloadLength() int32 { return lb.maxPayload }

// Term returns the term buffer at ring index i.
func (lb *LogBuffer) Term(i int) []byte { return lb.terms[i] }

// Position returns the published write position.
func (lb *LogBuffer) Position() int64 { return lb.position.Load() }

// Limit returns the current flow-control limit.
func (lb *LogBuffer) Limit() int64 { return lb.limit.Load() }

// SetLimit publishes a new flow-control limit. Only the conductor calls
// this; the writer observes it on the next Append.
func (lb *LogBuffer) SetLimit(limit int64) { lb.limit.Store(limit) }

// IsConnected reports whether any image is attached.
func (lb *LogBuffer) IsConnected() bool { return lb.connected.Load() }

// SetConnected records image attachment state. Conductor only.
func (lb *LogBuffer) SetConnected(v bool) { lb.connected.Store(v) }

// Append results.
const (
	// AppendOK: the frame was written and the position advanced.
	AppendOK = iota
	// AppendRotation: the frame did not fit the current term; a padding
	// frame filled the remainder and the caller should retry, which will
	// land in the next term.
	AppendRotation
	// AppendLimited: admitting the frame would cross the flow-control
	// limit; nothing was written.
	AppendLimited
)

// Append writes one data frame holding payload at the current position.
// It is only safe for a single exclusive writer. On AppendOK the returned
// position is the new stream position just past the written frame.
func (lb *LogBuffer) Append(payload []byte) (int64, int) {
	pos := lb.position.Load()
	termOffset := OffsetByPosition(pos, lb.termLength)
	frameLength := int32(HeaderLength + len(payload))
	aligned := Align(frameLength)

	if remaining := lb.termLength - termOffset; aligned > remaining {
		// Pad out the term and rotate. The padding stays within the term
		// the writer already owns, so no limit check is required here.
		term := lb.terms[IndexByPosition(pos, lb.termLength)]
		writeFrameHeader(term, termOffset, remaining, FrameTypePadding, 0)
		lb.position.Store(pos + int64(remaining))
		return pos + int64(remaining), AppendRotation
	}

	newPos := pos + int64(aligned)
	if newPos > lb.limit.Load() {
		return pos, AppendLimited
	}

	term := lb.terms[IndexByPosition(pos, lb.termLength)]
	writeFrameHeader(term, termOffset, frameLength, FrameTypeData, FlagUnfragment)
	copy(term[termOffset+HeaderLength:], payload)
	// The store publishes the frame: readers never scan past position, so
	// they cannot observe a partially copied frame.
	lb.position.Store(newPos)
	return newPos, AppendOK
}
