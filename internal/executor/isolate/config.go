package isolate

import "time"

// Config tunes the VM itself. The per-request budget (memory, wall clock)
// arrives separately as executor.Limits.
type Config struct {
	// MaxCallStackSize bounds JS recursion depth; deeper calls throw a RangeError.
	MaxCallStackSize int
	// PollInterval is how often the memory watchdog samples heap usage.
	PollInterval time.Duration
}

// DefaultConfig returns settings suitable for short playground snippets.
func DefaultConfig() Config {
	return Config{
		MaxCallStackSize: 1024,
		PollInterval:     5 * time.Millisecond,
	}
}
