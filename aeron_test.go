package aeron

import (
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func launchTestDriver(t *testing.T) *MediaDriver {
	t.Helper()
	md, err := LaunchEmbeddedDriver(DriverContext{
		TermBufferLength:  4096,
		DutyCycleInterval: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(md.Close)
	return md
}

func TestConnectRequiresDriver(t *testing.T) {
	_, err := Connect(nil)
	require.Error(t, err)
}

func TestAddHandlesRejectBadChannels(t *testing.T) {
	md := launchTestDriver(t)
	client, err := Connect(md)
	require.NoError(t, err)

	for _, channel := range []string{
		"udp?endpoint=localhost:54325",
		"aeron:tcp?endpoint=localhost:54325",
		"aeron:udp",
	} {
		_, err = client.AddPublication(channel, 1)
		assert.Error(t, err, "publication on %q", channel)
		_, err = client.AddSubscription(channel, 1)
		assert.Error(t, err, "subscription on %q", channel)
	}
}

func TestOfferPositionsIncreaseAndDeliverInOrder(t *testing.T) {
	md := launchTestDriver(t)
	client, err := Connect(md)
	require.NoError(t, err)

	const channel = "aeron:udp?endpoint=localhost:54330"
	sub, err := client.AddSubscription(channel, 10)
	require.NoError(t, err)
	pub, err := client.AddPublication(channel, 10)
	require.NoError(t, err)

	const messages = 100
	var positions []int64
	var delivered []string

	handler := func(buf []byte, offset, length int32, h Header) {
		delivered = append(delivered, string(buf[offset:offset+length]))
	}

	i := 0
	executeUntil(t, 5*time.Second,
		func() bool { return len(delivered) == messages },
		func() {
			if i < messages {
				if pos := pub.Offer([]byte(fmt.Sprintf("msg-%03d", i))); pos >= 0 {
					positions = append(positions, pos)
					i++
				}
			}
			sub.Poll(handler, 10)
		})

	require.Len(t, positions, messages)
	for j := 1; j < messages; j++ {
		assert.Greater(t, positions[j], positions[j-1], "positions must strictly increase")
	}
	for j, msg := range delivered {
		assert.Equal(t, fmt.Sprintf("msg-%03d", j), msg, "delivery order")
	}
}

func TestMaxPayloadExceeded(t *testing.T) {
	md := launchTestDriver(t)
	client, err := Connect(md)
	require.NoError(t, err)

	pub, err := client.AddPublication("aeron:udp?endpoint=localhost:54331", 1)
	require.NoError(t, err)

	// Wait out the pending phase so the limit is known.
	deadline := time.Now().Add(time.Second)
	for pub.MaxPayloadLength() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("publication never became active")
		}
		runtime.Gosched()
	}

	oversized := make([]byte, pub.MaxPayloadLength()+1)
	assert.Equal(t, MaxPayloadExceeded, pub.Offer(oversized))

	exact := make([]byte, pub.MaxPayloadLength())
	assert.GreaterOrEqual(t, pub.Offer(exact), int64(0))
}

func TestClientCloseClosesItsHandles(t *testing.T) {
	md := launchTestDriver(t)
	client, err := Connect(md)
	require.NoError(t, err)
	other, err := Connect(md)
	require.NoError(t, err)

	const channel = "aeron:udp?endpoint=localhost:54332"
	pub, err := client.AddPublication(channel, 1)
	require.NoError(t, err)
	sub, err := client.AddSubscription(channel, 1)
	require.NoError(t, err)
	otherSub, err := other.AddSubscription(channel, 1)
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	for otherSub.ImageCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("image never attached")
		}
		runtime.Gosched()
	}

	require.NoError(t, client.Close())

	assert.Equal(t, PublicationClosed, pub.Offer([]byte("x")))
	assert.True(t, sub.IsClosed())
	assert.Zero(t, sub.Poll(func([]byte, int32, int32, Header) {}, 10))

	// The other client's subscription is untouched, though its image is
	// gone with the closed publication.
	assert.False(t, otherSub.IsClosed())

	_, err = client.AddPublication(channel, 1)
	assert.ErrorIs(t, err, ErrClientClosed)
}
