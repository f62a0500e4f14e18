package common

import (
	"fmt"
	"strings"
	"time"
)

// Defaults of the reference processor
const (
	DefaultCycle            = 100 * time.Millisecond // Default interval between two sweeps
	DefaultSoftMillisPerMiB = 1000                   // Idle budget of a soft cell per free heap MiB
	DefaultLogLevel         = "warn"
	DefaultCodec            = "binary"
)

// --------------------------------------------------------------------------
// Configuration struct
// --------------------------------------------------------------------------

// Config holds the tunables of reference-managed collections.
type Config struct {
	// Cycle is the period between two background sweeps of the reference queues
	Cycle time.Duration
	// Background enables the sweep goroutine, without it dead cells are only
	// removed opportunistically on access
	Background bool
	// SoftMillisPerMiB is the time (in ms) a soft cell may stay idle per MiB of
	// free heap before its strong hold is released
	SoftMillisPerMiB int64

	// Logging configuration
	LogLevel string

	// Codec is the serial codec used by the command line tools (json, gob, binary)
	Codec string
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Cycle:            DefaultCycle,
		Background:       true,
		SoftMillisPerMiB: DefaultSoftMillisPerMiB,
		LogLevel:         DefaultLogLevel,
		Codec:            DefaultCodec,
	}
}

// Validate checks the configuration for values that can't be used
func (c *Config) Validate() error {
	if c.Background && c.Cycle <= 0 {
		return fmt.Errorf("invalid cycle %s: background sweeping needs a positive cycle", c.Cycle)
	}
	if c.SoftMillisPerMiB < 0 {
		return fmt.Errorf("invalid soft budget %d: must not be negative", c.SoftMillisPerMiB)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Reference Processor")
	addField("Cycle", c.Cycle.String())
	addField("Background", fmt.Sprintf("%t", c.Background))
	addField("Soft Budget", fmt.Sprintf("%d ms/MiB", c.SoftMillisPerMiB))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Serialization")
	addField("Codec", c.Codec)

	return sb.String()
}
