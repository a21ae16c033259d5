package modbus

import (
	"time"

	"go.uber.org/zap"
)

// Config configures a Client (§9). Unlike the teacher's string-tagged Mode
// and Kind fields, the framing and transport are chosen by which
// constructor you call (NewTCPClient / NewRTUClient) — Config only carries
// the knobs common to both.
type Config struct {
	// RequestTimeout bounds how long a single request waits for its
	// response before failing with ErrTimeout. Zero selects
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// Scheduler provides the deadline and (RTU) broadcast-completion
	// timers the registry needs. Nil selects NewSystemScheduler.
	Scheduler TimeoutScheduler

	// Logger receives structured diagnostic events (dropped frames,
	// disconnects, transaction-id exhaustion). Nil selects zap.NewNop.
	Logger *zap.Logger
}

// DefaultRequestTimeout is applied when Config.RequestTimeout is zero.
const DefaultRequestTimeout = 3 * time.Second

func (cfg Config) withDefaults() Config {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewSystemScheduler()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}
