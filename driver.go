package aeron

import (
	"time"

	"github.com/stevencasey/aeron/config"
	"github.com/stevencasey/aeron/internal/driver"
	"github.com/stevencasey/aeron/internal/harness/clock"
)

// DriverContext tunes an embedded media driver. The zero value launches
// a driver with defaults.
type DriverContext struct {
	// TermBufferLength is the length of each term buffer in bytes, a
	// power of two >= 4096. Default 64 KiB.
	TermBufferLength int32

	// FlowWindowLength is how far past the slowest subscriber a
	// publisher may run before backpressure. <= 0 selects half a term.
	FlowWindowLength int32

	// ImageLivenessTimeout removes a subscriber image that stops
	// consuming available data for this long. Default 10s.
	ImageLivenessTimeout time.Duration

	// DutyCycleInterval is the conductor tick period. Default 1ms.
	DutyCycleInterval time.Duration

	// clk overrides the conductor time source in tests.
	clk clock.Clock
}

// ContextFromConfig maps the loaded driver configuration onto a
// DriverContext for the standalone daemon.
func ContextFromConfig(cfg *config.DriverConfig) DriverContext {
	return DriverContext{
		TermBufferLength:     int32(cfg.TermBufferLength),
		FlowWindowLength:     int32(cfg.FlowWindowLength),
		ImageLivenessTimeout: time.Duration(cfg.ImageLivenessTimeoutMillis) * time.Millisecond,
		DutyCycleInterval:    time.Duration(cfg.ConductorDutyCycleMillis) * time.Millisecond,
	}
}

// MediaDriver is an embedded mediation process: a conductor goroutine
// owning buffer allocation, session lifecycle and flow control for the
// clients connected to it.
type MediaDriver struct {
	conductor *driver.Conductor
}

// LaunchEmbeddedDriver starts a media driver inside this process.
func LaunchEmbeddedDriver(ctx DriverContext) (*MediaDriver, error) {
	c := driver.NewConductor(driver.Context{
		TermBufferLength:     ctx.TermBufferLength,
		FlowWindowLength:     ctx.FlowWindowLength,
		ImageLivenessTimeout: ctx.ImageLivenessTimeout,
		DutyCycleInterval:    ctx.DutyCycleInterval,
		Clock:                ctx.clk,
	})
	c.Start()
	return &MediaDriver{conductor: c}, nil
}

// Close shuts the driver down, closing every session attached to it.
// Idempotent.
func (md *MediaDriver) Close() {
	md.conductor.Close()
}

// Metrics returns the driver's counter registry.
func (md *MediaDriver) Metrics() *driver.Metrics {
	return md.conductor.Metrics()
}
