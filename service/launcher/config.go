package launcher

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"
)

// Config controls slot accounting, polling, cancellation and spawn retries.
type Config struct {
	// MaxProc caps concurrently running jobs; 0 derives the cap from CPUs.
	MaxProc int `yaml:"maxProc" json:"maxProc"`
	// MaxProcPerCPU is used when MaxProc is 0.
	MaxProcPerCPU int           `yaml:"maxProcPerCPU" json:"maxProcPerCPU"`
	PollInterval  time.Duration `yaml:"pollInterval" json:"pollInterval"`
	// GracePeriod separates the terminate signal from the kill on cancel.
	GracePeriod          time.Duration `yaml:"gracePeriod" json:"gracePeriod"`
	SpawnAttempts        int           `yaml:"spawnAttempts" json:"spawnAttempts"`
	SpawnRetryDelay      time.Duration `yaml:"spawnRetryDelay" json:"spawnRetryDelay"`
	SpawnRetryMultiplier float64       `yaml:"spawnRetryMultiplier" json:"spawnRetryMultiplier"`
	SpawnRetryMaxDelay   time.Duration `yaml:"spawnRetryMaxDelay" json:"spawnRetryMaxDelay"`
}

// DefaultConfig returns the default launcher configuration
func DefaultConfig() Config {
	return Config{
		MaxProcPerCPU:        4,
		PollInterval:         5 * time.Second,
		GracePeriod:          10 * time.Second,
		SpawnAttempts:        3,
		SpawnRetryDelay:      time.Second,
		SpawnRetryMultiplier: 2,
		SpawnRetryMaxDelay:   30 * time.Second,
	}
}

// Slots returns the number of execution slots.
func (c Config) Slots() int {
	if c.MaxProc > 0 {
		return c.MaxProc
	}
	return runtime.NumCPU() * c.MaxProcPerCPU
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.MaxProc < 0 {
		errs = append(errs, fmt.Errorf("maxProc must not be negative: %d", c.MaxProc))
	}
	if c.MaxProc == 0 && c.MaxProcPerCPU <= 0 {
		errs = append(errs, fmt.Errorf("maxProcPerCPU must be positive when maxProc is 0"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("pollInterval must be positive"))
	}
	if c.GracePeriod < 0 {
		errs = append(errs, fmt.Errorf("gracePeriod must not be negative"))
	}
	if c.SpawnAttempts <= 0 {
		errs = append(errs, fmt.Errorf("spawnAttempts must be positive"))
	}
	if c.SpawnRetryDelay < 0 || c.SpawnRetryMaxDelay < 0 {
		errs = append(errs, fmt.Errorf("spawn retry delays must not be negative"))
	}
	return errors.Join(errs...)
}

// shouldRetry returns whether a job that failed attempts spawns may be
// retried, and after what delay.
func (c Config) shouldRetry(attempts int) (bool, time.Duration) {
	if attempts >= c.SpawnAttempts {
		return false, 0
	}
	mult := c.SpawnRetryMultiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(c.SpawnRetryDelay) * math.Pow(mult, float64(attempts-1))
	if c.SpawnRetryMaxDelay > 0 && time.Duration(delay) > c.SpawnRetryMaxDelay {
		delay = float64(c.SpawnRetryMaxDelay)
	}
	return true, time.Duration(delay)
}
