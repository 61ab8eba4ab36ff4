package driver

import (
	"time"

	"github.com/stevencasey/aeron/internal/harness/clock"
	"github.com/stevencasey/aeron/internal/logbuffer"
)

// Defaults for Context fields left zero. The liveness timeout and flow
// window are policy knobs, not protocol constants; they are surfaced in
// the config package for the standalone driver.
const (
	DefaultImageLivenessTimeout = 10 * time.Second
	DefaultDutyCycleInterval    = time.Millisecond
)

// Context carries the tuning for one media driver instance. The zero
// value is usable; unset fields take defaults.
type Context struct {
	// TermBufferLength is the length of each term in a publication's
	// ring. Must be a power of two >= logbuffer.TermMinLength.
	TermBufferLength int32

	// FlowWindowLength is how far past the slowest image a publisher may
	// run before backpressure. <= 0 selects half a term.
	FlowWindowLength int32

	// ImageLivenessTimeout evicts an image that sits behind available
	// data without advancing for this long.
	ImageLivenessTimeout time.Duration

	// DutyCycleInterval is the conductor tick period.
	DutyCycleInterval time.Duration

	// Clock is the conductor's time source. Tests install a
	// clock.SimulatedClock here.
	Clock clock.Clock
}

func (c Context) withDefaults() Context {
	if c.TermBufferLength == 0 {
		c.TermBufferLength = logbuffer.TermDefaultLength
	}
	if c.ImageLivenessTimeout == 0 {
		c.ImageLivenessTimeout = DefaultImageLivenessTimeout
	}
	if c.DutyCycleInterval == 0 {
		c.DutyCycleInterval = DefaultDutyCycleInterval
	}
	if c.Clock == nil {
		c.Clock = clock.SystemClock{}
	}
	return c
}
