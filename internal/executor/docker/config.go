package docker

import (
	"time"
)

// Config holds the configuration for the container backend.
type Config struct {
	// Image is the Node.js image that runs the harness.
	Image string
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// PoolSize is the number of pre-warmed containers to keep ready.
	// Each container still serves exactly one execution and is then removed.
	PoolSize int
	// StartupGrace is added to the script timeout for the container-level
	// deadline, covering node start-up and result printing.
	StartupGrace time.Duration
}

// DefaultConfig provides defaults for a Node.js sandbox.
func DefaultConfig() Config {
	return Config{
		Image:        "node:22-alpine",
		CPULimit:     0.5,
		PoolSize:     3,
		StartupGrace: 2 * time.Second,
	}
}
