package aeron

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stevencasey/aeron/internal/driver"
	"github.com/stevencasey/aeron/internal/uri"
)

// ErrDriverClosed is returned for requests against a closed driver.
var ErrDriverClosed = driver.ErrDriverClosed

// ErrClientClosed is returned for requests on a closed client.
var ErrClientClosed = errors.New("client closed")

// Client is a handle to a media driver through which publications and
// subscriptions are created. A client may own any number of handles;
// closing it closes them all.
type Client struct {
	id     string
	driver *MediaDriver
	closed bool
}

// Connect attaches a new client to an embedded media driver.
func Connect(md *MediaDriver) (*Client, error) {
	if md == nil {
		return nil, errors.New("nil media driver")
	}
	return &Client{id: uuid.NewString(), driver: md}, nil
}

// ClientID returns the unique id of this client.
func (c *Client) ClientID() string { return c.id }

// AddPublication creates a publication on channel and streamID. The
// returned handle is usable immediately; Offer returns AdminAction
// until the driver finishes allocating buffers.
func (c *Client) AddPublication(channel string, streamID int32) (*Publication, error) {
	if c.closed {
		return nil, ErrClientClosed
	}
	u, err := uri.Parse(channel)
	if err != nil {
		return nil, fmt.Errorf("add publication: %w", err)
	}
	session, err := c.driver.conductor.AddPublication(c.id, u.Canonical(), streamID)
	if err != nil {
		return nil, fmt.Errorf("add publication: %w", err)
	}
	return &Publication{client: c, session: session, channel: channel}, nil
}

// AddSubscription creates a subscription on channel and streamID. It
// immediately attaches images for all active matching publications and
// picks up later ones as the driver discovers them.
func (c *Client) AddSubscription(channel string, streamID int32) (*Subscription, error) {
	if c.closed {
		return nil, ErrClientClosed
	}
	u, err := uri.Parse(channel)
	if err != nil {
		return nil, fmt.Errorf("add subscription: %w", err)
	}
	session, err := c.driver.conductor.AddSubscription(c.id, u.Canonical(), streamID)
	if err != nil {
		return nil, fmt.Errorf("add subscription: %w", err)
	}
	return &Subscription{client: c, session: session, channel: channel}, nil
}

// Close closes every publication and subscription the client owns.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.driver.conductor.CloseClient(c.id)
	if errors.Is(err, ErrDriverClosed) {
		// The driver already tore everything down.
		return nil
	}
	return err
}
