// Benchmark driving one publisher against a fan-out of subscribers on an
// embedded media driver, reporting throughput and delivery latency
// percentiles.
//
//	go run ./scripts/bench -duration 10s -subs 2 -payload 64 -json
package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stevencasey/aeron"
)

type benchResults struct {
	DurationSeconds   float64 `json:"durationSeconds"`
	MessagesOffered   uint64  `json:"messagesOffered"`
	FragmentsReceived uint64  `json:"fragmentsReceived"`
	BackPressureHits  uint64  `json:"backPressureHits"`
	ThroughputMsgSec  float64 `json:"throughputMsgSec"`
	LatencyP50Us      float64 `json:"latencyP50Us"`
	LatencyP95Us      float64 `json:"latencyP95Us"`
	LatencyP99Us      float64 `json:"latencyP99Us"`
	LatencyMaxUs      float64 `json:"latencyMaxUs"`
}

func main() {
	var (
		duration   = flag.Duration("duration", 10*time.Second, "measurement duration")
		subs       = flag.Int("subs", 1, "number of subscribers")
		payload    = flag.Int("payload", 64, "payload size in bytes (min 8)")
		termLength = flag.Int("term-length", 1<<20, "term buffer length in bytes")
		sampleMask = flag.Uint64("sample-mask", 1023, "latency sampling mask; sample when count&mask==0")
		asJSON     = flag.Bool("json", false, "emit results as JSON")
	)
	flag.Parse()
	if *payload < 8 {
		*payload = 8
	}

	md, err := aeron.LaunchEmbeddedDriver(aeron.DriverContext{TermBufferLength: int32(*termLength)})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer md.Close()

	const channel = "aeron:udp?endpoint=localhost:54325"
	const streamID = int32(1001)

	pubClient, err := aeron.Connect(md)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	pub, err := pubClient.AddPublication(channel, streamID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	var stop atomic.Bool
	var received atomic.Uint64

	latMu := sync.Mutex{}
	var latencies []time.Duration
	mask := *sampleMask

	for i := 0; i < *subs; i++ {
		client, err := aeron.Connect(md)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		sub, err := client.AddSubscription(channel, streamID)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			var count uint64
			handler := func(buf []byte, offset, length int32, h aeron.Header) {
				count++
				received.Add(1)
				if count&mask == 0 {
					sent := time.Unix(0, int64(binary.LittleEndian.Uint64(buf[offset:])))
					d := time.Since(sent)
					latMu.Lock()
					latencies = append(latencies, d)
					latMu.Unlock()
				}
			}
			for !stop.Load() {
				if sub.Poll(handler, 256) == 0 {
					runtime.Gosched()
				}
			}
		}()
	}

	msg := make([]byte, *payload)
	var offered, backPressured uint64
	start := time.Now()
	for time.Since(start) < *duration {
		binary.LittleEndian.PutUint64(msg, uint64(time.Now().UnixNano()))
		for {
			result := pub.Offer(msg)
			if result >= 0 {
				offered++
				break
			}
			if result == aeron.BackPressured {
				backPressured++
			}
			runtime.Gosched()
		}
	}
	elapsed := time.Since(start)

	// Let subscribers drain before stopping them.
	time.Sleep(100 * time.Millisecond)
	stop.Store(true)
	wg.Wait()

	res := benchResults{
		DurationSeconds:   elapsed.Seconds(),
		MessagesOffered:   offered,
		FragmentsReceived: received.Load(),
		BackPressureHits:  backPressured,
		ThroughputMsgSec:  float64(offered) / elapsed.Seconds(),
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	if n := len(latencies); n > 0 {
		res.LatencyP50Us = float64(latencies[n/2]) / float64(time.Microsecond)
		res.LatencyP95Us = float64(latencies[n*95/100]) / float64(time.Microsecond)
		res.LatencyP99Us = float64(latencies[n*99/100]) / float64(time.Microsecond)
		res.LatencyMaxUs = float64(latencies[n-1]) / float64(time.Microsecond)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		return
	}
	fmt.Printf("duration:        %.2fs\n", res.DurationSeconds)
	fmt.Printf("offered:         %d\n", res.MessagesOffered)
	fmt.Printf("received:        %d (%d subscribers)\n", res.FragmentsReceived, *subs)
	fmt.Printf("backpressured:   %d\n", res.BackPressureHits)
	fmt.Printf("throughput:      %.0f msg/s\n", res.ThroughputMsgSec)
	fmt.Printf("latency p50/p95/p99/max: %.1f / %.1f / %.1f / %.1f us\n",
		res.LatencyP50Us, res.LatencyP95Us, res.LatencyP99Us, res.LatencyMaxUs)
}
