package processor

import (
	"time"

	"github.com/ValentinKolb/dRef/lib/common"
)

// Config configures a Processor
type Config struct {
	Cycle            time.Duration // Time between two background sweeps
	Background       bool          // Run sweeps on a background goroutine
	SoftMillisPerMiB int64         // Soft budget, see ref.SoftIdle

	// Clock returns the value handed to timed queues on every sweep,
	// nil uses the wall clock in unix milliseconds
	Clock func() int64
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return FromCommon(common.DefaultConfig())
}

// FromCommon derives the processor configuration from the module configuration
func FromCommon(c common.Config) Config {
	return Config{
		Cycle:            c.Cycle,
		Background:       c.Background,
		SoftMillisPerMiB: c.SoftMillisPerMiB,
	}
}

func (c Config) now() int64 {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UnixMilli()
}

func (c Config) cycle() time.Duration {
	if c.Cycle <= 0 {
		return common.DefaultCycle
	}
	return c.Cycle
}
