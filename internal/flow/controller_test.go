package flow

import (
	"testing"

	"github.com/stevencasey/aeron/internal/logbuffer"
)

const termLength = 64 * 1024

func TestDisconnectedAllowsOneTerm(t *testing.T) {
	c := NewController(termLength, 0)
	limit, connected := c.Update(0, nil)
	if connected {
		t.Fatalf("expected disconnected with no images")
	}
	if limit != termLength {
		t.Fatalf("limit = %d, want one term (%d)", limit, termLength)
	}
	// The base does not creep while the publisher advances unsubscribed.
	limit, _ = c.Update(termLength-8, nil)
	if limit != termLength {
		t.Fatalf("limit moved without images: %d", limit)
	}
}

func TestConnectedLimitTracksSlowestImage(t *testing.T) {
	c := NewController(termLength, 0)
	limit, connected := c.Update(100, []int64{5000, 200, 9000})
	if !connected {
		t.Fatalf("expected connected")
	}
	if want := int64(200 + termLength/2); limit != want {
		t.Fatalf("limit = %d, want %d", limit, want)
	}
}

func TestDisconnectBaseTakenAtDetach(t *testing.T) {
	c := NewController(termLength, 0)
	c.Update(0, []int64{0})
	pubPos := int64(3*termLength + 512)
	limit, connected := c.Update(pubPos, nil)
	if connected {
		t.Fatalf("expected disconnected after images detach")
	}
	if want := pubPos + termLength; limit != want {
		t.Fatalf("limit = %d, want %d", limit, want)
	}
}

func TestWindowClamp(t *testing.T) {
	c := NewController(termLength, 10*termLength)
	limit, _ := c.Update(0, []int64{0})
	if want := int64(termLength) * (logbuffer.PartitionCount - 1); limit != want {
		t.Fatalf("limit = %d, want clamped window %d", limit, want)
	}
}

func TestViolated(t *testing.T) {
	c := NewController(termLength, 0)
	guard := int64(termLength) * (logbuffer.PartitionCount - 1)
	if c.Violated(guard, 0) {
		t.Fatalf("position exactly at guard must not violate")
	}
	if !c.Violated(guard+1, 0) {
		t.Fatalf("position past guard must violate")
	}
}
