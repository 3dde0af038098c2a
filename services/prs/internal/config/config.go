package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/pflag"
)

// Load returns a Config populated from the process environment.
func Load(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith populates a Config from l and validates it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv merges the given .env files into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error
	for _, p := range []struct {
		name string
		val  int
	}{
		{"service port", c.ServicePort},
		{"start port", c.StartPort},
		{"end port", c.EndPort},
	} {
		if p.val < 1 || p.val > 65535 {
			errs = append(errs, fmt.Errorf("%s %d is outside the valid range 1-65535", p.name, p.val))
		}
	}
	if c.EndPort < c.StartPort {
		errs = append(errs, fmt.Errorf("end port %d is below start port %d", c.EndPort, c.StartPort))
	}
	if c.ServicePort >= c.StartPort && c.ServicePort <= c.EndPort {
		errs = append(errs, fmt.Errorf("service port %d lies inside the client range %d-%d", c.ServicePort, c.StartPort, c.EndPort))
	}
	if c.KeepAliveSeconds <= 0 {
		errs = append(errs, fmt.Errorf("keep-alive timeout must be positive, got %d", c.KeepAliveSeconds))
	}
	if c.Events.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("event buffer must be positive, got %d", c.Events.Buffer))
	}
	if c.Admin.Enabled {
		if c.Admin.Addr == "" {
			errs = append(errs, errors.New("admin address is required when the admin API is enabled"))
		}
		if c.Admin.RateLimit <= 0 {
			errs = append(errs, fmt.Errorf("admin rate limit must be positive, got %d", c.Admin.RateLimit))
		}
	}
	return errors.Join(errs...)
}

// Overrides are command-line values that win over the environment when set.
type Overrides struct {
	ServicePort      int
	StartPort        int
	EndPort          int
	KeepAliveSeconds int
	ListenHost       string
	AdminAddr        string
}

// Bind registers the override flags on fs.
func (o *Overrides) Bind(fs *pflag.FlagSet) {
	fs.IntVarP(&o.ServicePort, "service-port", "p", 30000, "UDP port the service listens on")
	fs.IntVarP(&o.StartPort, "start-port", "s", 40000, "first port handed to clients")
	fs.IntVarP(&o.EndPort, "end-port", "e", 40099, "last port handed to clients")
	fs.IntVarP(&o.KeepAliveSeconds, "timeout", "t", 300, "keep-alive timeout in seconds")
	fs.StringVar(&o.ListenHost, "host", "", "host to bind (empty for all interfaces)")
	fs.StringVar(&o.AdminAddr, "admin-addr", ":8080", "admin HTTP address (empty disables it)")
}

// Apply copies the flags the user actually set on fs into cfg and
// re-validates the result.
func (o Overrides) Apply(fs *pflag.FlagSet, cfg *Config) error {
	if fs.Changed("service-port") {
		cfg.ServicePort = o.ServicePort
	}
	if fs.Changed("start-port") {
		cfg.StartPort = o.StartPort
	}
	if fs.Changed("end-port") {
		cfg.EndPort = o.EndPort
	}
	if fs.Changed("timeout") {
		cfg.KeepAliveSeconds = o.KeepAliveSeconds
	}
	if fs.Changed("host") {
		cfg.ListenHost = o.ListenHost
	}
	if fs.Changed("admin-addr") {
		cfg.Admin.Addr = o.AdminAddr
		cfg.Admin.Enabled = o.AdminAddr != ""
	}
	return cfg.Validate()
}
