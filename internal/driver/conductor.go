// Package driver contains the embedded media driver: the conductor that
// owns session and image lifecycle, term buffer allocation and flow
// control bookkeeping. Client data paths (Offer/Poll) only ever touch
// state the conductor publishes through atomics, never the conductor's
// own maps.
package driver

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/stevencasey/aeron/internal/flow"
	"github.com/stevencasey/aeron/internal/logbuffer"
	"github.com/stevencasey/aeron/internal/logging"
	"github.com/stevencasey/aeron/internal/uri"
)

// ErrDriverClosed is returned for client requests after Close.
var ErrDriverClosed = errors.New("driver closed")

// Conductor is the mediation actor. All session state is owned by the
// run goroutine; clients submit work through the command channel and
// wait for completion, so no client thread ever mutates shared state.
type Conductor struct {
	ctx     Context
	metrics Metrics

	cmdCh     chan func()
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	nextRegistration int64
	nextSession      int32

	pubs         map[int64]*PublicationSession
	subs         map[int64]*SubscriptionSession
	pubsByStream map[uint64][]*PublicationSession
	subsByStream map[uint64][]*SubscriptionSession
}

// NewConductor builds a conductor with the given context. Start must be
// called before any client request.
func NewConductor(ctx Context) *Conductor {
	return &Conductor{
		ctx:          ctx.withDefaults(),
		cmdCh:        make(chan func()),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		pubs:         make(map[int64]*PublicationSession),
		subs:         make(map[int64]*SubscriptionSession),
		pubsByStream: make(map[uint64][]*PublicationSession),
		subsByStream: make(map[uint64][]*SubscriptionSession),
	}
}

// Start launches the conductor loop.
func (c *Conductor) Start() {
	go c.run()
}

// Close stops the loop and closes every session. Idempotent.
func (c *Conductor) Close() {
	c.closeOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

// Metrics exposes the conductor counters.
func (c *Conductor) Metrics() *Metrics { return &c.metrics }

func (c *Conductor) run() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.ctx.DutyCycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			c.closeAll()
			return
		case fn := <-c.cmdCh:
			fn()
		case <-ticker.C:
			c.dutyCycle()
		}
	}
}

// execute runs fn on the conductor goroutine and waits for it.
func (c *Conductor) execute(fn func()) error {
	done := make(chan struct{})
	select {
	case c.cmdCh <- func() { fn(); close(done) }:
	case <-c.stopCh:
		return ErrDriverClosed
	}
	select {
	case <-done:
		return nil
	case <-c.doneCh:
		return ErrDriverClosed
	}
}

// AddPublication registers a new publication session for the canonical
// channel and stream. The session starts Pending; Offer returns
// AdminAction until the conductor has allocated its buffers.
func (c *Conductor) AddPublication(clientID, channel string, streamID int32) (*PublicationSession, error) {
	var pub *PublicationSession
	err := c.execute(func() {
		c.nextRegistration++
		c.nextSession++
		pub = &PublicationSession{
			registrationID: c.nextRegistration,
			sessionID:      c.nextSession,
			streamID:       streamID,
			channel:        channel,
			fingerprint:    uri.Fingerprint(channel, streamID),
			clientID:       clientID,
			termLength:     c.ctx.TermBufferLength,
			window:         c.ctx.FlowWindowLength,
			ctrl:           flow.NewController(c.ctx.TermBufferLength, c.ctx.FlowWindowLength),
		}
		pub.state.Store(int32(StatePending))
		c.pubs[pub.registrationID] = pub
		c.pubsByStream[pub.fingerprint] = append(c.pubsByStream[pub.fingerprint], pub)
		c.metrics.publicationsAdded.Add(1)
		c.metrics.activeSessions.Add(1)
		slog.Debug("publication registered",
			slog.Int64("registration_id", pub.registrationID),
			slog.String("channel", channel),
			slog.Int("stream_id", int(streamID)))
	})
	return pub, err
}

// AddSubscription registers a subscription and attaches one image per
// active matching publication, each joined at that publication's current
// position.
func (c *Conductor) AddSubscription(clientID, channel string, streamID int32) (*SubscriptionSession, error) {
	var sub *SubscriptionSession
	err := c.execute(func() {
		c.nextRegistration++
		sub = &SubscriptionSession{
			registrationID: c.nextRegistration,
			streamID:       streamID,
			channel:        channel,
			fingerprint:    uri.Fingerprint(channel, streamID),
			clientID:       clientID,
		}
		c.subs[sub.registrationID] = sub
		c.subsByStream[sub.fingerprint] = append(c.subsByStream[sub.fingerprint], sub)
		for _, pub := range c.pubsByStream[sub.fingerprint] {
			if pub.State() == StateActive {
				c.attachImage(pub, sub)
			}
		}
		c.metrics.subscriptionsAdded.Add(1)
		slog.Debug("subscription registered",
			slog.Int64("registration_id", sub.registrationID),
			slog.String("channel", channel),
			slog.Int("stream_id", int(streamID)),
			slog.Int("images", sub.ImageCount()))
	})
	return sub, err
}

// ClosePublication transitions the session out of Active. If images
// still hold unconsumed data the session lingers until they drain.
func (c *Conductor) ClosePublication(pub *PublicationSession) error {
	return c.execute(func() { c.closePublication(pub) })
}

// CloseSubscription releases the subscription and all of its images.
func (c *Conductor) CloseSubscription(sub *SubscriptionSession) error {
	return c.execute(func() { c.closeSubscription(sub) })
}

// CloseClient closes every session the client owns.
func (c *Conductor) CloseClient(clientID string) error {
	return c.execute(func() {
		for _, pub := range c.pubs {
			if pub.clientID == clientID {
				c.closePublication(pub)
			}
		}
		for _, sub := range c.subs {
			if sub.clientID == clientID {
				c.closeSubscription(sub)
			}
		}
	})
}

// dutyCycle is the periodic work: activate pending sessions, recompute
// flow control, enforce liveness and drain lingering sessions.
func (c *Conductor) dutyCycle() {
	now := c.ctx.Clock.Now()
	for _, pub := range c.snapshotPubs() {
		switch pub.State() {
		case StatePending:
			c.activate(pub)
		case StateActive:
			c.updateFlowAndLiveness(pub, now)
		case StateLingering:
			c.drainLinger(pub, now)
		}
	}
}

func (c *Conductor) snapshotPubs() []*PublicationSession {
	out := make([]*PublicationSession, 0, len(c.pubs))
	for _, p := range c.pubs {
		out = append(out, p)
	}
	return out
}

func (c *Conductor) activate(pub *PublicationSession) {
	log, err := logbuffer.NewLogBuffer(pub.termLength)
	if err != nil {
		slog.Error("log buffer allocation failed",
			slog.Int64("registration_id", pub.registrationID),
			slog.Any("error", err))
		c.closeSessionNow(pub)
		return
	}
	pub.log.Store(log)
	// Attach images for waiting subscriptions before the state flips to
	// Active, so nothing offered on activation can slip past them.
	for _, sub := range c.subsByStream[pub.fingerprint] {
		if !sub.IsClosed() {
			c.attachImage(pub, sub)
		}
	}
	positions := make([]int64, len(pub.images))
	for i, img := range pub.images {
		positions[i] = img.Position()
	}
	limit, connected := pub.ctrl.Update(0, positions)
	log.SetLimit(limit)
	log.SetConnected(connected)
	pub.state.Store(int32(StateActive))
	logging.VInfo("driver", "publication active",
		slog.Int64("registration_id", pub.registrationID),
		slog.String("channel", pub.channel))
}

func (c *Conductor) updateFlowAndLiveness(pub *PublicationSession, now time.Time) {
	log := pub.log.Load()
	position := log.Position()

	positions := make([]int64, len(pub.images))
	minPos := int64(0)
	for i, img := range pub.images {
		positions[i] = img.Position()
		if i == 0 || positions[i] < minPos {
			minPos = positions[i]
		}
	}
	limit, connected := pub.ctrl.Update(position, positions)
	log.SetLimit(limit)
	log.SetConnected(connected)

	if connected && pub.ctrl.Violated(position, minPos) {
		// A term would be rewritten under a live reader. This is a
		// defect, not load; abort the session rather than corrupt data.
		slog.Error("flow control invariant violated; aborting session",
			slog.Int64("registration_id", pub.registrationID),
			slog.Int64("position", position),
			slog.Int64("min_image_position", minPos))
		c.metrics.flowViolations.Add(1)
		c.closeSessionNow(pub)
		return
	}

	for _, img := range append([]*Image(nil), pub.images...) {
		pos := img.Position()
		if pos != img.lastPosition {
			img.lastPosition = pos
			img.lastProgress = now
			continue
		}
		if pos < position && now.Sub(img.lastProgress) >= c.ctx.ImageLivenessTimeout {
			slog.Warn("image liveness timeout, removing",
				slog.Int64("correlation_id", img.correlationID),
				slog.Int64("position", pos),
				slog.Int64("publication_position", position))
			c.closeImage(pub, img, false)
			c.metrics.livenessEvictions.Add(1)
		}
	}
}

func (c *Conductor) drainLinger(pub *PublicationSession, now time.Time) {
	log := pub.log.Load()
	for _, img := range append([]*Image(nil), pub.images...) {
		pos := img.Position()
		if pos >= log.Position() {
			c.closeImage(pub, img, true)
			continue
		}
		if pos != img.lastPosition {
			img.lastPosition = pos
			img.lastProgress = now
			continue
		}
		// A stalled reader must not pin a lingering session forever.
		if now.Sub(img.lastProgress) >= c.ctx.ImageLivenessTimeout {
			slog.Warn("image liveness timeout while lingering, removing",
				slog.Int64("correlation_id", img.correlationID),
				slog.Int64("position", pos))
			c.closeImage(pub, img, false)
			c.metrics.livenessEvictions.Add(1)
		}
	}
	if len(pub.images) == 0 {
		c.closeSessionNow(pub)
	}
}

func (c *Conductor) closePublication(pub *PublicationSession) {
	switch pub.State() {
	case StatePending:
		c.closeSessionNow(pub)
	case StateActive:
		undrained := false
		log := pub.log.Load()
		for _, img := range pub.images {
			if img.Position() < log.Position() {
				undrained = true
				break
			}
		}
		if undrained {
			pub.state.Store(int32(StateLingering))
			logging.VInfo("driver", "publication lingering",
				slog.Int64("registration_id", pub.registrationID))
			c.drainLinger(pub, c.ctx.Clock.Now())
		} else {
			c.closeSessionNow(pub)
		}
	}
}

// closeSessionNow forces the session to Closed, detaching any images,
// and unregisters it.
func (c *Conductor) closeSessionNow(pub *PublicationSession) {
	for _, img := range append([]*Image(nil), pub.images...) {
		drained := false
		if log := pub.log.Load(); log != nil && img.Position() >= log.Position() {
			drained = true
		}
		c.closeImage(pub, img, drained)
	}
	pub.state.Store(int32(StateClosed))
	delete(c.pubs, pub.registrationID)
	c.pubsByStream[pub.fingerprint] = removePub(c.pubsByStream[pub.fingerprint], pub)
	c.metrics.activeSessions.Add(-1)
	slog.Debug("publication closed", slog.Int64("registration_id", pub.registrationID))
}

func (c *Conductor) closeSubscription(sub *SubscriptionSession) {
	if sub.closed.Swap(true) {
		return
	}
	for _, img := range sub.Images() {
		img.closed.Store(true)
		if pub, ok := c.pubs[imgOwner(img)]; ok {
			pub.images = removeImage(pub.images, img)
			c.metrics.imagesClosed.Add(1)
			if pub.State() == StateLingering && len(pub.images) == 0 {
				c.closeSessionNow(pub)
			}
		}
	}
	sub.setImages(nil)
	delete(c.subs, sub.registrationID)
	c.subsByStream[sub.fingerprint] = removeSub(c.subsByStream[sub.fingerprint], sub)
	slog.Debug("subscription closed", slog.Int64("registration_id", sub.registrationID))
}

func (c *Conductor) attachImage(pub *PublicationSession, sub *SubscriptionSession) {
	log := pub.log.Load()
	joinPos := log.Position()
	c.nextRegistration++
	img := &Image{
		correlationID: c.nextRegistration,
		sessionID:     pub.sessionID,
		streamID:      pub.streamID,
		joinPosition:  joinPos,
		log:           log,
		ownerID:       pub.registrationID,
		lastPosition:  joinPos,
		lastProgress:  c.ctx.Clock.Now(),
	}
	img.position.Store(joinPos)
	pub.images = append(pub.images, img)
	sub.setImages(append(append([]*Image(nil), sub.Images()...), img))
	c.metrics.imagesCreated.Add(1)
	logging.VInfo("driver", "image attached",
		slog.Int64("correlation_id", img.correlationID),
		slog.Int64("join_position", joinPos),
		slog.Int64("publication", pub.registrationID),
		slog.Int64("subscription", sub.registrationID))
}

// closeImage detaches an image from its publication and subscription.
// endOfStream marks a fully drained image of a closed publisher.
func (c *Conductor) closeImage(pub *PublicationSession, img *Image, endOfStream bool) {
	img.endOfStream.Store(endOfStream)
	img.closed.Store(true)
	pub.images = removeImage(pub.images, img)
	for _, sub := range c.subsByStream[pub.fingerprint] {
		images := sub.Images()
		trimmed := removeImage(images, img)
		if len(trimmed) != len(images) {
			sub.setImages(trimmed)
		}
	}
	c.metrics.imagesClosed.Add(1)
}

func (c *Conductor) closeAll() {
	for _, sub := range c.subs {
		c.closeSubscription(sub)
	}
	for _, pub := range c.pubs {
		c.closeSessionNow(pub)
	}
}

func imgOwner(img *Image) int64 { return img.ownerID }

func removeImage(images []*Image, target *Image) []*Image {
	out := images[:0:0]
	for _, img := range images {
		if img != target {
			out = append(out, img)
		}
	}
	return out
}

func removePub(pubs []*PublicationSession, target *PublicationSession) []*PublicationSession {
	out := pubs[:0:0]
	for _, p := range pubs {
		if p != target {
			out = append(out, p)
		}
	}
	return out
}

func removeSub(subs []*SubscriptionSession, target *SubscriptionSession) []*SubscriptionSession {
	out := subs[:0:0]
	for _, s := range subs {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
