package driver

import (
	"sync/atomic"

	"github.com/stevencasey/aeron/internal/flow"
	"github.com/stevencasey/aeron/internal/logbuffer"
)

// SessionState is the lifecycle of a publication session.
//
// Pending: buffers being allocated by the conductor; offers are deferred.
// Active: normal operation, images attach and detach freely.
// Lingering: the publisher closed but images still hold unconsumed data;
// no new images attach.
// Closed: resources reclaimed, all handles report closed.
type SessionState int32

const (
	StatePending SessionState = iota
	StateActive
	StateLingering
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateLingering:
		return "lingering"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Offer result codes. Negative values are flow or terminal conditions;
// non-negative values are stream positions.
const (
	// NotConnected: no image is attached and the publisher has already
	// run a full term ahead of where it lost its last subscriber.
	NotConnected int64 = -1
	// BackPressured: admission denied by flow control, retry later.
	BackPressured int64 = -2
	// AdminAction: transient driver work (allocation, term rotation) is
	// in the way, retry immediately.
	AdminAction int64 = -3
	// PublicationClosed: the handle is terminally unusable.
	PublicationClosed int64 = -4
	// MaxPayloadExceeded: payload larger than MaxPayloadLength.
	MaxPayloadExceeded int64 = -5
)

// PublicationSession is the driver-side state of one publication: the
// log buffers, flow controller and attached images. The session struct
// is shared between the conductor (lifecycle, flow control, images) and
// the owning client's writer thread (Offer), which see each other only
// through the state and log atomics.
type PublicationSession struct {
	registrationID int64
	sessionID      int32
	streamID       int32
	channel        string // canonical URI
	fingerprint    uint64
	clientID       string

	termLength int32
	window     int32

	state atomic.Int32
	log   atomic.Pointer[logbuffer.LogBuffer]
	ctrl  *flow.Controller

	// images is conductor-owned; never touched from client threads.
	images []*Image
}

// RegistrationID identifies the session within the driver.
func (s *PublicationSession) RegistrationID() int64 { return s.registrationID }

// SessionID is the wire-level session identifier stamped on images.
func (s *PublicationSession) SessionID() int32 { return s.sessionID }

// StreamID returns the stream this publication feeds.
func (s *PublicationSession) StreamID() int32 { return s.streamID }

// Channel returns the canonical channel URI.
func (s *PublicationSession) Channel() string { return s.channel }

// State returns the session lifecycle state.
func (s *PublicationSession) State() SessionState { return SessionState(s.state.Load()) }

// Position returns the publication's write position, or 0 while pending.
func (s *PublicationSession) Position() int64 {
	if log := s.log.Load(); log != nil {
		return log.Position()
	}
	return 0
}

// IsConnected reports whether at least one image is attached.
func (s *PublicationSession) IsConnected() bool {
	if log := s.log.Load(); log != nil {
		return log.IsConnected()
	}
	return false
}

// MaxPayloadLength returns the largest payload Offer accepts, or 0 while
// the session is still pending allocation.
func (s *PublicationSession) MaxPayloadLength() int32 {
	if log := s.log.Load(); log != nil {
		return log.MaxPayloadLength()
	}
	return 0
}

// Offer appends one message. Non-blocking: it returns the new stream
// position or one of the negative codes. Only one goroutine may offer on
// a given publication; callers needing concurrent producers must
// serialize or create separate publications.
func (s *PublicationSession) Offer(payload []byte) int64 {
	switch SessionState(s.state.Load()) {
	case StatePending:
		return AdminAction
	case StateActive:
	default:
		return PublicationClosed
	}
	log := s.log.Load()
	if log == nil {
		return AdminAction
	}
	if int32(len(payload)) > log.MaxPayloadLength() {
		return MaxPayloadExceeded
	}
	newPos, res := log.Append(payload)
	switch res {
	case logbuffer.AppendOK:
		return newPos
	case logbuffer.AppendRotation:
		return AdminAction
	default:
		if log.IsConnected() {
			return BackPressured
		}
		return NotConnected
	}
}
