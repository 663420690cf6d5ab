package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	handlecache "github.com/karupanerura/handle-cache"
	"github.com/karupanerura/handle-cache/expiration"
	"github.com/karupanerura/handle-cache/lrucache"
	"github.com/karupanerura/handle-cache/pool"
	"github.com/karupanerura/handle-cache/scheduler"
	"github.com/karupanerura/handle-cache/sweeper"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid value")

// DefaultMaxSize is the default capacity of caches and pools.
const DefaultMaxSize = 100

// Config is the root of the configuration file.
type Config struct {
	Cache     CacheConfig     `yaml:"cache"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// CacheConfig configures a cache or a pool.
type CacheConfig struct {
	MaxSize         int                    `yaml:"max_size"`
	TTL             time.Duration          `yaml:"ttl"`
	EarlyExpiration *EarlyExpirationConfig `yaml:"early_expiration"`
	SweepInterval   time.Duration          `yaml:"sweep_interval"`
	SingleFlight    bool                   `yaml:"single_flight"`
	Parallelism     int                    `yaml:"parallelism"`
}

// EarlyExpirationConfig enables expiration.EarlyPolicy.
type EarlyExpirationConfig struct {
	Window     time.Duration `yaml:"window"`
	Percentage float64       `yaml:"percentage"`
}

// SchedulerConfig configures a scheduler.
type SchedulerConfig struct {
	MinRequestSpacing        time.Duration `yaml:"min_request_spacing"`
	MaxConcurrent            int           `yaml:"max_concurrent"`
	MaxConsecutiveRateLimits int           `yaml:"max_consecutive_rate_limits"`
	CooldownPeriod           time.Duration `yaml:"cooldown_period"`
	MaxRetries               int           `yaml:"max_retries"`
	BaseDelay                time.Duration `yaml:"base_delay"`
	DispatchJitter           time.Duration `yaml:"dispatch_jitter"`
	BackoffJitter            time.Duration `yaml:"backoff_jitter"`
	LogPrefix                string        `yaml:"log_prefix"`
}

// Default returns the configuration used for omitted keys.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			MaxSize: DefaultMaxSize,
		},
		Scheduler: SchedulerConfig{
			MinRequestSpacing:        scheduler.DefaultMinRequestSpacing,
			MaxConcurrent:            scheduler.DefaultMaxConcurrent,
			MaxConsecutiveRateLimits: scheduler.DefaultMaxConsecutiveRateLimits,
			CooldownPeriod:           scheduler.DefaultCooldownPeriod,
			MaxRetries:               scheduler.DefaultMaxRetries,
			BaseDelay:                scheduler.DefaultBaseDelay,
			DispatchJitter:           scheduler.DefaultDispatchJitter,
			BackoffJitter:            scheduler.DefaultBackoffJitter,
		},
	}
}

// Load decodes a YAML document on top of the defaults and validates it.
// Unknown keys are rejected. An empty document yields the defaults.
func Load(r io.Reader) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile loads the configuration from the named file.
func LoadFile(name string) (Config, error) {
	f, err := os.Open(name)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Validate reports every invalid value, each wrapping ErrInvalid.
func (c Config) Validate() error {
	return errors.Join(c.Cache.validate(), c.Scheduler.validate())
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

func (c CacheConfig) validate() error {
	var errs []error
	if c.MaxSize <= 0 {
		errs = append(errs, invalid("cache.max_size must be positive, got %d", c.MaxSize))
	}
	if c.TTL < 0 {
		errs = append(errs, invalid("cache.ttl must not be negative, got %v", c.TTL))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, invalid("cache.sweep_interval must not be negative, got %v", c.SweepInterval))
	}
	if e := c.EarlyExpiration; e != nil {
		if e.Window < 0 {
			errs = append(errs, invalid("cache.early_expiration.window must not be negative, got %v", e.Window))
		}
		if e.Percentage < 0 || e.Percentage > 1 {
			errs = append(errs, invalid("cache.early_expiration.percentage must be within [0, 1], got %v", e.Percentage))
		}
	}
	return errors.Join(errs...)
}

func (c SchedulerConfig) validate() error {
	var errs []error
	if c.MaxConcurrent < 1 {
		errs = append(errs, invalid("scheduler.max_concurrent must be at least 1, got %d", c.MaxConcurrent))
	}
	if c.MaxConsecutiveRateLimits < 1 {
		errs = append(errs, invalid("scheduler.max_consecutive_rate_limits must be at least 1, got %d", c.MaxConsecutiveRateLimits))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, invalid("scheduler.max_retries must not be negative, got %d", c.MaxRetries))
	}
	for name, d := range map[string]time.Duration{
		"min_request_spacing": c.MinRequestSpacing,
		"cooldown_period":     c.CooldownPeriod,
		"base_delay":          c.BaseDelay,
		"dispatch_jitter":     c.DispatchJitter,
		"backoff_jitter":      c.BackoffJitter,
	} {
		if d < 0 {
			errs = append(errs, invalid("scheduler.%s must not be negative, got %v", name, d))
		}
	}
	return errors.Join(errs...)
}

func (c CacheConfig) policy() expiration.Policy {
	if c.EarlyExpiration == nil {
		return expiration.GeneralPolicy{}
	}
	return &expiration.EarlyPolicy{
		Window:     c.EarlyExpiration.Window,
		Percentage: c.EarlyExpiration.Percentage,
	}
}

// CacheOptions converts the configuration to lrucache options.
func CacheOptions[K handlecache.KeyConstraint, V handlecache.ValueConstraint](c CacheConfig) []lrucache.Option[K, V] {
	return []lrucache.Option[K, V]{
		lrucache.WithTTL[K, V](c.TTL),
		lrucache.WithExpirationPolicy[K, V](c.policy()),
	}
}

// PoolOptions converts the configuration to pool options.
func PoolOptions[K handlecache.KeyConstraint, H handlecache.Handle](c CacheConfig) []pool.Option[K, H] {
	opts := []pool.Option[K, H]{
		pool.WithTTL[K, H](c.TTL),
		pool.WithExpirationPolicy[K, H](c.policy()),
	}
	if c.SingleFlight {
		opts = append(opts, pool.WithSingleFlight[K, H]())
	}
	if c.Parallelism != 0 {
		opts = append(opts, pool.WithParallelism[K, H](c.Parallelism))
	}
	return opts
}

// NewPool creates a pool from the configuration. opts are applied after the configured options.
func NewPool[K handlecache.KeyConstraint, H handlecache.Handle](c CacheConfig, opts ...pool.Option[K, H]) (*pool.Pool[K, H], error) {
	return pool.New(c.MaxSize, append(PoolOptions[K, H](c), opts...)...)
}

// NewSweeper returns a sweeper for target running at the configured interval,
// or false if no interval is configured.
func (c CacheConfig) NewSweeper(target handlecache.Sweeper, opts ...sweeper.Option) (*sweeper.IntervalSweeper, bool) {
	if c.SweepInterval <= 0 {
		return nil, false
	}
	return sweeper.NewIntervalSweeper(target, c.SweepInterval, opts...), true
}

// Options converts the configuration to scheduler options.
func (c SchedulerConfig) Options() []scheduler.Option {
	opts := []scheduler.Option{
		scheduler.WithMinRequestSpacing(c.MinRequestSpacing),
		scheduler.WithMaxConcurrent(c.MaxConcurrent),
		scheduler.WithMaxConsecutiveRateLimits(c.MaxConsecutiveRateLimits),
		scheduler.WithCooldownPeriod(c.CooldownPeriod),
		scheduler.WithMaxRetries(c.MaxRetries),
		scheduler.WithBaseDelay(c.BaseDelay),
		scheduler.WithDispatchJitter(c.DispatchJitter),
		scheduler.WithBackoffJitter(c.BackoffJitter),
	}
	if c.LogPrefix != "" {
		opts = append(opts, scheduler.WithLogPrefix(c.LogPrefix))
	}
	return opts
}
