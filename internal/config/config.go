package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marksidell/dynips/internal/constants"
)

// Config is loaded from ~/.config/dynips/config.yaml. Integer durations are
// in seconds.
type Config struct {
	Profile string `yaml:"profile"`
	Region  string `yaml:"region"`

	Store      string `yaml:"store"`
	Bucket     string `yaml:"bucket"`
	SQLitePath string `yaml:"sqlite_path"`

	ZoneID     string `yaml:"zone_id"`
	DomainRoot string `yaml:"domain_root"`
	DefaultIP  string `yaml:"default_ip"`
	TTL        int    `yaml:"ttl"`

	MaxAge    int    `yaml:"max_age"`
	MaxErrors int    `yaml:"max_errors"`
	PolicyKey string `yaml:"policy_key"`

	Listen            string   `yaml:"listen"`
	TrustedProxies    []string `yaml:"trusted_proxies"`
	ExpireInterval    int      `yaml:"expire_interval"`
	ReconcileInterval int      `yaml:"reconcile_interval"`

	AutoRefreshInterval int `yaml:"auto_refresh_interval"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// DefaultPath returns ~/.config/dynips/config.yaml, or "" without a home dir.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", constants.AppName, "config.yaml")
}

// Load reads the config file at path (DefaultPath when empty). A missing file
// yields a Config holding only defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	setString(&c.Store, constants.StoreS3)
	setString(&c.SQLitePath, constants.DefaultSQLitePath)
	setString(&c.DefaultIP, constants.DefaultIP)
	setString(&c.Listen, constants.DefaultListen)
	setInt(&c.TTL, constants.DefaultTTL)
	setInt(&c.MaxAge, constants.DefaultMaxAge)
	setInt(&c.MaxErrors, constants.DefaultMaxErrors)
	setInt(&c.ExpireInterval, constants.DefaultExpireInterval)
	setInt(&c.ReconcileInterval, constants.DefaultReconcileInterval)
	c.Store = strings.ToLower(c.Store)
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// Merge applies CLI flag overrides. Flags take precedence over config defaults.
func (c *Config) Merge(profile, region string) (string, string) {
	p := c.Profile
	if profile != "" {
		p = profile
	}
	r := c.Region
	if region != "" {
		r = region
	}
	return p, r
}

// Need selects what Validate checks.
type Need int

const (
	NeedStore Need = 1 << iota
	NeedDNS
	NeedPolicy
)

// Validate reports every missing field required by need.
func (c *Config) Validate(need Need) error {
	var errs []error
	if need&NeedStore != 0 {
		switch c.Store {
		case constants.StoreS3:
			if c.Bucket == "" {
				errs = append(errs, errors.New("bucket is required when store is s3"))
			}
		case constants.StoreSQLite:
			if c.SQLitePath == "" {
				errs = append(errs, errors.New("sqlite_path is required when store is sqlite"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
		}
	}
	if need&NeedDNS != 0 {
		if c.ZoneID == "" {
			errs = append(errs, errors.New("zone_id is required"))
		}
		if c.DomainRoot == "" {
			errs = append(errs, errors.New("domain_root is required"))
		}
	}
	if need&NeedPolicy != 0 && c.PolicyKey == "" {
		errs = append(errs, errors.New("policy_key is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) MaxAgeDuration() time.Duration {
	return time.Duration(c.MaxAge) * time.Second
}

func (c *Config) ExpireEvery() time.Duration {
	return time.Duration(c.ExpireInterval) * time.Second
}

func (c *Config) ReconcileEvery() time.Duration {
	return time.Duration(c.ReconcileInterval) * time.Second
}

// RefreshInterval is the dashboard refresh period: 15s by default, never
// below 5s.
func (c *Config) RefreshInterval() time.Duration {
	secs := c.AutoRefreshInterval
	if secs <= 0 {
		secs = constants.DefaultRefreshInterval
	}
	if secs < constants.MinRefreshInterval {
		secs = constants.MinRefreshInterval
	}
	return time.Duration(secs) * time.Second
}
