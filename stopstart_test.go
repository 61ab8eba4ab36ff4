package aeron

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Mirrors the classic stop/start-second-subscriber scenario: two
// independent channel+stream pairs, each with its own embedded driver,
// publisher and subscriber. The second subscriber is stopped and started
// again while both publishers keep offering, and the first subscriber
// must not notice.

const (
	stopStartChannel1 = "aeron:udp?endpoint=localhost:54325"
	stopStartChannel2 = "aeron:udp?endpoint=localhost:54326"
	stopStartStream1  = int32(1)
	stopStartStream2  = int32(2)
)

type stopStartFixture struct {
	driver1, driver2 *MediaDriver

	pubClient1, subClient1 *Client
	pubClient2, subClient2 *Client

	pub1, pub2 *Publication
	sub1, sub2 *Subscription
}

func launchStopStart(t *testing.T, channel1 string, stream1 int32, channel2 string, stream2 int32) *stopStartFixture {
	t.Helper()
	ctx := DriverContext{TermBufferLength: 4096, DutyCycleInterval: time.Millisecond}

	f := &stopStartFixture{}
	var err error
	f.driver1, err = LaunchEmbeddedDriver(ctx)
	require.NoError(t, err)
	f.driver2, err = LaunchEmbeddedDriver(ctx)
	require.NoError(t, err)

	f.pubClient1, err = Connect(f.driver1)
	require.NoError(t, err)
	f.subClient1, err = Connect(f.driver1)
	require.NoError(t, err)
	f.pubClient2, err = Connect(f.driver2)
	require.NoError(t, err)
	f.subClient2, err = Connect(f.driver2)
	require.NoError(t, err)

	f.pub1, err = f.pubClient1.AddPublication(channel1, stream1)
	require.NoError(t, err)
	f.sub1, err = f.subClient1.AddSubscription(channel1, stream1)
	require.NoError(t, err)
	f.pub2, err = f.pubClient2.AddPublication(channel2, stream2)
	require.NoError(t, err)
	f.sub2, err = f.subClient2.AddSubscription(channel2, stream2)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = f.subClient1.Close()
		_ = f.pubClient1.Close()
		_ = f.subClient2.Close()
		_ = f.pubClient2.Close()
		f.driver1.Close()
		f.driver2.Close()
	})
	return f
}

// executeUntil drives step until condition holds or the deadline passes.
func executeUntil(t *testing.T, deadline time.Duration, condition func() bool, step func()) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if condition() {
			return
		}
		step()
		runtime.Gosched()
	}
	t.Fatalf("condition not met within %v", deadline)
}

func offerWithRetry(t *testing.T, pub *Publication, payload []byte) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for pub.Offer(payload) < 0 {
		if time.Now().After(deadline) {
			t.Fatalf("offer did not succeed within deadline")
		}
		runtime.Gosched()
	}
}

func TestShouldSpinUpAndShutdown(t *testing.T) {
	launchStopStart(t, stopStartChannel1, stopStartStream1, stopStartChannel2, stopStartStream2)
}

func TestShouldReceivePublishedMessage(t *testing.T) {
	f := launchStopStart(t, stopStartChannel1, stopStartStream1, stopStartChannel2, stopStartStream2)

	message := []byte{0, 0, 0, 1}
	offerWithRetry(t, f.pub1, message)
	offerWithRetry(t, f.pub2, message)

	var count1, count2 int
	handler1 := func(buf []byte, offset, length int32, h Header) { count1++ }
	handler2 := func(buf []byte, offset, length int32, h Header) { count2++ }

	var read1, read2 int
	executeUntil(t, 5*time.Second,
		func() bool { return read1 >= 1 && read2 >= 1 },
		func() {
			read1 += f.sub1.Poll(handler1, 10)
			read2 += f.sub2.Poll(handler2, 10)
		})

	assert.Equal(t, 1, count1, "subscriber 1 fragment count")
	assert.Equal(t, 1, count2, "subscriber 2 fragment count")
}

func TestStopStartSameChannelSameStream(t *testing.T) {
	testReceiveMessagesAfterStopStart(t, stopStartChannel1, stopStartStream1, stopStartChannel1, stopStartStream1)
}

func TestStopStartSameChannelDifferentStreams(t *testing.T) {
	testReceiveMessagesAfterStopStart(t, stopStartChannel1, stopStartStream1, stopStartChannel1, stopStartStream2)
}

func TestStopStartDifferentChannelsSameStream(t *testing.T) {
	testReceiveMessagesAfterStopStart(t, stopStartChannel1, stopStartStream1, stopStartChannel2, stopStartStream1)
}

func TestStopStartDifferentChannelsDifferentStreams(t *testing.T) {
	testReceiveMessagesAfterStopStart(t, stopStartChannel1, stopStartStream1, stopStartChannel2, stopStartStream2)
}

func testReceiveMessagesAfterStopStart(t *testing.T, channel1 string, stream1 int32, channel2 string, stream2 int32) {
	f := launchStopStart(t, channel1, stream1, channel2, stream2)

	var running atomic.Bool
	running.Store(true)

	publisherWork := func(pub *Publication) func() error {
		payload := []byte{0, 0, 0, 1}
		return func() error {
			for running.Load() {
				for running.Load() && pub.Offer(payload) < 0 {
					runtime.Gosched()
				}
			}
			return nil
		}
	}
	g, _ := errgroup.WithContext(context.Background())
	g.Go(publisherWork(f.pub1))
	g.Go(publisherWork(f.pub2))
	defer func() {
		running.Store(false)
		require.NoError(t, g.Wait())
	}()

	var subscriber1Count, subscriber2Count int
	handler1 := func(buf []byte, offset, length int32, h Header) { subscriber1Count++ }
	handler2 := func(buf []byte, offset, length int32, h Header) { subscriber2Count++ }

	var read1, read2 int
	executeUntil(t, 5*time.Second,
		func() bool { return read1 >= 1 && read2 >= 1 },
		func() {
			read1 += f.sub1.Poll(handler1, 1)
			read2 += f.sub2.Poll(handler2, 1)
		})

	require.GreaterOrEqual(t, subscriber1Count, 1)
	require.GreaterOrEqual(t, subscriber2Count, 1)

	// Stop the second subscriber mid-stream.
	require.NoError(t, f.sub2.Close())

	// Start it again and expect messages offered after the rejoin.
	var err error
	f.sub2, err = f.subClient2.AddSubscription(channel2, stream2)
	require.NoError(t, err)

	var subscriber2AfterRestartCount int
	handler2b := func(buf []byte, offset, length int32, h Header) { subscriber2AfterRestartCount++ }

	subscriber1Before := subscriber1Count
	read1, read2 = 0, 0
	executeUntil(t, 5*time.Second,
		func() bool { return read1 >= 1 && read2 >= 1 },
		func() {
			read1 += f.sub1.Poll(handler1, 1)
			read2 += f.sub2.Poll(handler2b, 1)
		})

	assert.Greater(t, subscriber1Count, subscriber1Before,
		"expecting subscriber 1 to receive messages the entire time")
	assert.GreaterOrEqual(t, subscriber2Count, 1,
		"expecting subscriber 2 to receive messages before being stopped")
	assert.GreaterOrEqual(t, subscriber2AfterRestartCount, 1,
		"expecting subscriber 2 to receive messages after restart")
}
