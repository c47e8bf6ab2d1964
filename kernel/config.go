package kernel

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	mote "github.com/wnxd/microdbg-mote"
)

// Config is the board description a runner loads from YAML.
type Config struct {
	Board     string          `yaml:"board"`
	Fault     string          `yaml:"fault"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	// TaskQueueDepth bounds each process's pending-upcall queue.
	TaskQueueDepth int             `yaml:"taskQueueDepth"`
	Processes      []ProcessConfig `yaml:"processes"`
}

type SchedulerConfig struct {
	// Type selects the scheduling policy: mlfq or roundrobin.
	Type string `yaml:"type"`
	// Quanta is the per-queue timeslice in ticks, highest priority
	// first (mlfq only).
	Quanta []uint32 `yaml:"quanta"`
	// RefreshTicks is the starvation-prevention period after which all
	// processes move back to the top queue (mlfq only).
	RefreshTicks uint64 `yaml:"refreshTicks"`
}

type ProcessConfig struct {
	Name  string `yaml:"name"`
	Image string `yaml:"image"`
	// Memory is the size of the process RAM region in bytes.
	Memory uint32 `yaml:"memory"`
	// Break is the initial process break offset; zero means the whole
	// region minus the grant reserve.
	Break uint32 `yaml:"break"`
}

// DefaultConfig returns the values a board file may omit.
func DefaultConfig() Config {
	return Config{
		Fault:          "panic",
		TaskQueueDepth: 10,
		Scheduler: SchedulerConfig{
			Type:         "mlfq",
			Quanta:       []uint32{10000, 20000, 50000},
			RefreshTicks: 200000,
		},
	}
}

// ParseConfig reads a board description, applying defaults for omitted
// fields.
func ParseConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("kernel: parse board config: %w", err)
	}
	return cfg, cfg.validate()
}

// LoadConfig reads a board description from path.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return ParseConfig(f)
}

func (c *Config) validate() error {
	if _, err := c.FaultResponse(); err != nil {
		return err
	}
	switch c.Scheduler.Type {
	case "mlfq":
		if len(c.Scheduler.Quanta) == 0 {
			return fmt.Errorf("kernel: mlfq scheduler needs at least one quantum")
		}
		for _, q := range c.Scheduler.Quanta {
			if q <= mote.MinTimeslice {
				return fmt.Errorf("kernel: quantum %d not above minimum timeslice %d", q, mote.MinTimeslice)
			}
		}
	case "roundrobin":
	default:
		return fmt.Errorf("kernel: unknown scheduler type %q", c.Scheduler.Type)
	}
	if c.TaskQueueDepth <= 0 {
		return fmt.Errorf("kernel: task queue depth must be positive")
	}
	for i, p := range c.Processes {
		if p.Name == "" {
			return fmt.Errorf("kernel: process %d has no name", i)
		}
		if p.Memory < 512 {
			return fmt.Errorf("kernel: process %q memory %d too small", p.Name, p.Memory)
		}
		if p.Break > p.Memory {
			return fmt.Errorf("kernel: process %q break beyond its memory", p.Name)
		}
	}
	return nil
}

// FaultResponse translates the configured fault policy.
func (c *Config) FaultResponse() (mote.FaultResponse, error) {
	switch c.Fault {
	case "panic", "":
		return mote.FaultPanic, nil
	case "restart":
		return mote.FaultRestart, nil
	case "stop":
		return mote.FaultStop, nil
	default:
		return 0, fmt.Errorf("kernel: unknown fault policy %q", c.Fault)
	}
}
