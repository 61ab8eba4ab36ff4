package aeron

import (
	"errors"

	"github.com/stevencasey/aeron/internal/driver"
)

// Header carries per-fragment metadata into the handler.
type Header = driver.Header

// FragmentHandler is invoked synchronously within Poll, once per
// fragment. The buffer must not be retained after the handler returns.
type FragmentHandler = driver.FragmentHandler

// Image is the receive-side view of one publication within a
// subscription.
type Image = driver.Image

// Subscription is the read side of a channel+stream pair. It aggregates
// one image per connected publication; images come and go as publishers
// appear, close or time out, without disturbing the rest.
type Subscription struct {
	client  *Client
	session *driver.SubscriptionSession
	channel string
}

// Channel returns the channel URI the subscription was created with.
func (s *Subscription) Channel() string { return s.channel }

// StreamID returns the subscribed stream.
func (s *Subscription) StreamID() int32 { return s.session.StreamID() }

// ImageCount returns the number of attached images.
func (s *Subscription) ImageCount() int { return s.session.ImageCount() }

// Images returns the currently attached images.
func (s *Subscription) Images() []*Image { return s.session.Images() }

// IsConnected reports whether any publication is feeding this
// subscription.
func (s *Subscription) IsConnected() bool { return s.session.IsConnected() }

// IsClosed reports whether the subscription has been closed.
func (s *Subscription) IsClosed() bool { return s.session.IsClosed() }

// Poll delivers up to fragmentLimit fragments across all images to
// handler and returns the number delivered. Non-blocking; a poll with
// no data available returns 0. A panic escaping the handler propagates,
// with the positions of fragments already delivered preserved.
func (s *Subscription) Poll(handler FragmentHandler, fragmentLimit int) int {
	return s.session.Poll(handler, fragmentLimit)
}

// Close releases the subscription and its images. Other subscriptions
// on the same channel and stream are unaffected.
func (s *Subscription) Close() error {
	err := s.client.driver.conductor.CloseSubscription(s.session)
	if errors.Is(err, ErrDriverClosed) {
		return nil
	}
	return err
}
