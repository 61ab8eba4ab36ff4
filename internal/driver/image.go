package driver

import (
	"sync/atomic"
	"time"

	"github.com/stevencasey/aeron/internal/logbuffer"
)

// Header carries per-fragment metadata into the handler.
type Header struct {
	SessionID int32
	StreamID  int32
	// Position is the stream position just past this fragment, i.e. the
	// position the image advances to once the fragment is consumed.
	Position int64
	Flags    uint8
	Type     uint8
}

// FragmentHandler is invoked synchronously within Poll, once per data
// frame. buffer is the underlying term; the fragment bytes are
// buffer[offset : offset+length] and must not be retained after return.
type FragmentHandler func(buffer []byte, offset, length int32, header Header)

// Image is the receive-side view of one publication for one
// subscription. The consumption position is the only cross-thread state
// the reader publishes; the conductor reads it for flow control and
// liveness, and the writer never looks at it directly.
type Image struct {
	correlationID int64
	sessionID     int32
	streamID      int32
	joinPosition  int64
	ownerID       int64 // registration id of the source publication
	log           *logbuffer.LogBuffer

	position    atomic.Int64
	closed      atomic.Bool
	endOfStream atomic.Bool

	// Liveness bookkeeping, touched only by the conductor goroutine.
	lastPosition int64
	lastProgress time.Time
}

// CorrelationID identifies this image uniquely within the driver.
func (img *Image) CorrelationID() int64 { return img.correlationID }

// SessionID identifies the source publication session.
func (img *Image) SessionID() int32 { return img.sessionID }

// StreamID returns the stream this image belongs to.
func (img *Image) StreamID() int32 { return img.streamID }

// JoinPosition is the stream position at which this image attached.
func (img *Image) JoinPosition() int64 { return img.joinPosition }

// Position returns the image's consumption position.
func (img *Image) Position() int64 { return img.position.Load() }

// IsClosed reports whether the image has been detached.
func (img *Image) IsClosed() bool { return img.closed.Load() }

// IsEndOfStream reports whether the source publication has closed and
// all of its data has been consumed through this image.
func (img *Image) IsEndOfStream() bool { return img.endOfStream.Load() }

// Poll delivers up to fragmentLimit data frames to handler and returns
// the number delivered. A panic escaping the handler propagates to the
// caller, but the position for fragments already delivered in the call
// is preserved by the deferred commit.
func (img *Image) Poll(handler FragmentHandler, fragmentLimit int) int {
	if img.closed.Load() {
		return 0
	}
	pos := img.position.Load()
	committed := pos
	defer func() {
		img.position.Store(committed)
	}()

	bound := img.log.Position()
	termLength := img.log.TermLength()
	count := 0
	for count < fragmentLimit && pos < bound {
		term := img.log.Term(logbuffer.IndexByPosition(pos, termLength))
		offset := logbuffer.OffsetByPosition(pos, termLength)
		frameLength := logbuffer.FrameLength(term, offset)
		if frameLength <= 0 {
			break
		}
		pos += int64(logbuffer.Align(frameLength))
		if logbuffer.FrameType(term, offset) == logbuffer.FrameTypePadding {
			committed = pos
			continue
		}
		handler(term, offset+logbuffer.HeaderLength, frameLength-logbuffer.HeaderLength, Header{
			SessionID: img.sessionID,
			StreamID:  img.streamID,
			Position:  pos,
			Flags:     logbuffer.FrameFlags(term, offset),
			Type:      logbuffer.FrameType(term, offset),
		})
		committed = pos
		count++
	}
	return count
}
