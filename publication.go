package aeron

import (
	"errors"

	"github.com/stevencasey/aeron/internal/driver"
)

// Offer result codes. Non-negative results are stream positions.
const (
	// NotConnected: no subscriber image is attached and the publication
	// has buffered a full term since losing its last one. Transient:
	// a subscriber joining makes offers progress again.
	NotConnected = driver.NotConnected
	// BackPressured: flow control denied admission; retry. Not an
	// error, the position is unchanged.
	BackPressured = driver.BackPressured
	// AdminAction: the driver is allocating buffers or rotating terms;
	// retry immediately.
	AdminAction = driver.AdminAction
	// PublicationClosed: terminal, the handle must not be retried.
	PublicationClosed = driver.PublicationClosed
	// MaxPayloadExceeded: the payload is larger than MaxPayloadLength.
	MaxPayloadExceeded = driver.MaxPayloadExceeded
)

// Publication is the write side of a channel+stream pair. A publication
// has exactly one permitted writer goroutine at a time: callers with
// concurrent producers must serialize or create separate publications.
type Publication struct {
	client  *Client
	session *driver.PublicationSession
	channel string
}

// Channel returns the channel URI the publication was created with.
func (p *Publication) Channel() string { return p.channel }

// StreamID returns the stream the publication feeds.
func (p *Publication) StreamID() int32 { return p.session.StreamID() }

// SessionID identifies this publication session on its stream.
func (p *Publication) SessionID() int32 { return p.session.SessionID() }

// Position returns the publication's current stream position.
func (p *Publication) Position() int64 { return p.session.Position() }

// IsConnected reports whether at least one subscriber image is attached.
func (p *Publication) IsConnected() bool { return p.session.IsConnected() }

// IsClosed reports whether the publication has been closed.
func (p *Publication) IsClosed() bool { return p.session.State() == driver.StateClosed || p.session.State() == driver.StateLingering }

// MaxPayloadLength returns the largest payload Offer accepts, or 0
// while the publication is still being set up.
func (p *Publication) MaxPayloadLength() int32 { return p.session.MaxPayloadLength() }

// Offer appends one message and returns the new stream position, or a
// negative code. Non-blocking; callers retry flow conditions with their
// own backoff.
func (p *Publication) Offer(payload []byte) int64 {
	return p.session.Offer(payload)
}

// Close terminates the publication. Buffered data still drains to
// attached subscribers before the driver reclaims the session.
func (p *Publication) Close() error {
	err := p.client.driver.conductor.ClosePublication(p.session)
	if errors.Is(err, ErrDriverClosed) {
		return nil
	}
	return err
}
