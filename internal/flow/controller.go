// Package flow computes the publisher admission limit for a publication
// from the consumption progress of its attached images. The conductor
// calls Update once per duty cycle and publishes the result; the writer
// only ever consults the published limit.
package flow

import "github.com/stevencasey/aeron/internal/logbuffer"

// Controller tracks connectivity transitions for one publication and
// derives its flow-control limit.
//
// Connected: limit = min(image positions) + window. The window is clamped
// at construction so the writer can never run more than
// PartitionCount-1 terms ahead of the slowest image, which is what
// guarantees a term is never reused while an image still references it.
//
// Disconnected: the publisher may run up to one full term past the
// position at which it lost its last image, so a publisher with no
// subscribers stays live without unbounded buffering. Past that point the
// writer reports not-connected rather than backpressure.
type Controller struct {
	termLength int64
	window     int64

	connected        bool
	disconnectedBase int64
}

// NewController builds a controller for a log with the given term length.
// window <= 0 selects the default of half a term.
func NewController(termLength, window int32) *Controller {
	w := int64(window)
	if w <= 0 {
		w = int64(termLength) / 2
	}
	maxWindow := int64(termLength) * (logbuffer.PartitionCount - 1)
	if w > maxWindow {
		w = maxWindow
	}
	if w < logbuffer.FrameAlignment {
		w = logbuffer.FrameAlignment
	}
	return &Controller{termLength: int64(termLength), window: w}
}

// Update recomputes the limit. position is the publication's current
// write position, imagePositions the consumption positions of all
// attached images (may be empty). It returns the new limit and whether
// the publication counts as connected.
func (c *Controller) Update(position int64, imagePositions []int64) (int64, bool) {
	if len(imagePositions) == 0 {
		if c.connected {
			c.connected = false
			c.disconnectedBase = position
		}
		return c.disconnectedBase + c.termLength, false
	}
	c.connected = true
	minPos := imagePositions[0]
	for _, p := range imagePositions[1:] {
		if p < minPos {
			minPos = p
		}
	}
	return minPos + c.window, true
}

// Violated reports a fatal flow-control breach: the writer has advanced
// far enough to overwrite a term an image may still be reading. This can
// only happen through a defect, never through load.
func (c *Controller) Violated(position, minImagePosition int64) bool {
	return position > minImagePosition+c.termLength*(logbuffer.PartitionCount-1)
}
