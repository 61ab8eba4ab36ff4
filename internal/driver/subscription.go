package driver

import "sync/atomic"

// SubscriptionSession aggregates the images a subscriber reads from. The
// image set is copy-on-write: the conductor swaps in a new slice on
// membership changes while readers poll the slice they loaded, so Poll
// never takes a lock.
type SubscriptionSession struct {
	registrationID int64
	streamID       int32
	channel        string // canonical URI
	fingerprint    uint64
	clientID       string

	closed atomic.Bool
	images atomic.Pointer[[]*Image]
	rr     atomic.Uint32
}

// RegistrationID identifies the subscription within the driver.
func (s *SubscriptionSession) RegistrationID() int64 { return s.registrationID }

// StreamID returns the subscribed stream.
func (s *SubscriptionSession) StreamID() int32 { return s.streamID }

// Channel returns the canonical channel URI.
func (s *SubscriptionSession) Channel() string { return s.channel }

// IsClosed reports whether the subscription has been closed.
func (s *SubscriptionSession) IsClosed() bool { return s.closed.Load() }

// Images returns the current image set.
func (s *SubscriptionSession) Images() []*Image {
	if p := s.images.Load(); p != nil {
		return *p
	}
	return nil
}

// ImageCount returns the number of attached images.
func (s *SubscriptionSession) ImageCount() int { return len(s.Images()) }

// IsConnected reports whether any image is attached.
func (s *SubscriptionSession) IsConnected() bool { return s.ImageCount() > 0 }

// Poll delivers up to fragmentLimit fragments across all images. The
// starting image rotates call to call so one busy publication cannot
// starve the others. Returns the number of fragments delivered.
func (s *SubscriptionSession) Poll(handler FragmentHandler, fragmentLimit int) int {
	if s.closed.Load() {
		return 0
	}
	images := s.Images()
	n := len(images)
	if n == 0 {
		return 0
	}
	start := int(s.rr.Add(1)-1) % n
	total := 0
	for i := 0; i < n && total < fragmentLimit; i++ {
		total += images[(start+i)%n].Poll(handler, fragmentLimit-total)
	}
	return total
}

// setImages publishes a new image set. Conductor only.
func (s *SubscriptionSession) setImages(images []*Image) {
	s.images.Store(&images)
}
