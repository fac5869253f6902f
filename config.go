package conductor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds engine-wide configuration.
type Config struct {
	// LeaseDuration is how long a claimed queue item stays leased to an
	// agent before it becomes reclaimable. It must exceed the expected
	// maximum task duration; leases are not renewable mid-execution.
	LeaseDuration time.Duration `yaml:"lease_duration"`

	// SchedulerInterval is how often the scheduler loop scans for due
	// schedules.
	SchedulerInterval time.Duration `yaml:"scheduler_interval"`

	// BackoffUnit is the linear backoff unit for system-failed items:
	// the n-th retry is deferred by n * BackoffUnit.
	BackoffUnit time.Duration `yaml:"backoff_unit"`

	// MaxRetries is the default retry budget for new queue items.
	MaxRetries int `yaml:"max_retries"`

	// AgentOnlineWindow is how recent an agent's heartbeat must be for the
	// agent to count as online.
	AgentOnlineWindow time.Duration `yaml:"agent_online_window"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LeaseDuration:     10 * time.Minute,
		SchedulerInterval: 30 * time.Second,
		BackoffUnit:       10 * time.Minute,
		MaxRetries:        3,
		AgentOnlineWindow: 5 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
	}
}

// LoadConfig reads a YAML config file and overlays it on DefaultConfig.
// Fields absent from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("conductor: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("conductor: parse config %s: %w", path, err)
	}
	return cfg, nil
}
