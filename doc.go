// Package aeron is an embedded, fragment-oriented publish/subscribe
// message transport. Clients attach publications and subscriptions to
// channel+stream pairs and exchange discrete messages through a shared
// media driver running in-process.
//
// The data plane is non-blocking on both sides. Offer appends one
// message if flow control admits it and otherwise returns a negative
// code the caller retries on; Poll delivers buffered fragments to a
// handler and returns the count. Backpressure and absence of data are
// signaled, never waited on, so callers own their retry and idle
// strategy.
//
// A minimal exchange:
//
//	md, _ := aeron.LaunchEmbeddedDriver(aeron.DriverContext{})
//	defer md.Close()
//
//	client, _ := aeron.Connect(md)
//	defer client.Close()
//
//	pub, _ := client.AddPublication("aeron:udp?endpoint=localhost:54325", 1)
//	sub, _ := client.AddSubscription("aeron:udp?endpoint=localhost:54325", 1)
//
//	for pub.Offer([]byte("hello")) < 0 {
//		runtime.Gosched()
//	}
//	for sub.Poll(func(buf []byte, offset, length int32, h aeron.Header) {
//		// consume buf[offset : offset+length]
//	}, 10) == 0 {
//		runtime.Gosched()
//	}
//
// Subscriptions are independent: closing one never disturbs another on
// the same channel and stream, and a closed subscription can be
// re-created to resume delivery of subsequently published messages.
package aeron
