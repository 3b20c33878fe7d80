// Package config loads the validated daemon configuration.
// Durations are configured in whole seconds, matching the device's
// original config file layout. Invalid values fail at boot, before any
// network listener starts.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/picorelay/relayd/internal/gpio"
	"github.com/picorelay/relayd/internal/relay"
)

// Config is the full daemon configuration. Immutable after Load.
type Config struct {
	Relay  Relay  `yaml:"relay"`
	Web    Web    `yaml:"web"`
	Auth   Auth   `yaml:"auth"`
	API    API    `yaml:"api"`
	MQTT   MQTT   `yaml:"mqtt"`
	System System `yaml:"system"`
}

// Relay holds the hardware and safety timer settings.
type Relay struct {
	PinNumber int  `yaml:"pin"`
	ActiveLow bool `yaml:"active_low"`

	SafetyTimeoutSec     int `yaml:"safety_timeout"`
	MaxOnTimeSec         int `yaml:"max_on_time"`
	MinSwitchIntervalSec int `yaml:"min_switch_interval"`
}

// Web holds the HTTP listener settings.
type Web struct {
	Addr              string `yaml:"addr"`
	MaxConnections    int    `yaml:"max_connections"`
	RequestTimeoutSec int    `yaml:"request_timeout"`
	MaxRequestBytes   int64  `yaml:"max_request_bytes"`
	// OpenStatus allows unauthenticated status reads.
	OpenStatus bool `yaml:"open_status"`
}

// Auth holds credentials and session settings.
type Auth struct {
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	SessionLifetimeSec int    `yaml:"session_lifetime"`
	CSRFLifetimeSec    int    `yaml:"csrf_lifetime"`
	MaxSessions        int    `yaml:"max_sessions"`
	MaxLoginAttempts   int    `yaml:"max_login_attempts"`
	LockoutSec         int    `yaml:"lockout_duration"`
	MaxClients         int    `yaml:"max_clients"`
}

// API holds rate limiting settings.
type API struct {
	RateLimit     int `yaml:"rate_limit"`
	RateWindowSec int `yaml:"rate_window"`
}

// MQTT holds event publishing settings. An empty broker disables MQTT.
type MQTT struct {
	Broker       string `yaml:"broker"`
	HeartbeatSec int    `yaml:"heartbeat"`
}

// System holds device identity and persistence settings.
type System struct {
	DeviceName string `yaml:"device_name"`
	StatsPath  string `yaml:"stats_path"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Relay: Relay{
			PinNumber:            gpio.DefaultPin,
			ActiveLow:            true,
			SafetyTimeoutSec:     300,
			MaxOnTimeSec:         86400,
			MinSwitchIntervalSec: 1,
		},
		Web: Web{
			Addr:              ":80",
			MaxConnections:    5,
			RequestTimeoutSec: 10,
			MaxRequestBytes:   4096,
			OpenStatus:        true,
		},
		Auth: Auth{
			Username:           "admin",
			Password:           "password123",
			SessionLifetimeSec: 1800,
			CSRFLifetimeSec:    3600,
			MaxSessions:        8,
			MaxLoginAttempts:   5,
			LockoutSec:         900,
			MaxClients:         32,
		},
		API: API{
			RateLimit:     60,
			RateWindowSec: 60,
		},
		MQTT: MQTT{
			HeartbeatSec: 900,
		},
		System: System{
			DeviceName: "pico-relay",
			StatsPath:  "relay_stats.db",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file
// yields the defaults; a malformed or invalid file is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon must not start with.
func (c Config) Validate() error {
	if !gpio.ValidPin(c.Relay.PinNumber) {
		return fmt.Errorf("config: relay pin %d is not usable", c.Relay.PinNumber)
	}
	if c.Relay.SafetyTimeoutSec < 0 || c.Relay.MaxOnTimeSec < 0 || c.Relay.MinSwitchIntervalSec < 0 {
		return fmt.Errorf("config: safety timers must not be negative")
	}
	if c.Relay.SafetyTimeoutSec > 0 && c.Relay.MaxOnTimeSec > 0 &&
		c.Relay.SafetyTimeoutSec > c.Relay.MaxOnTimeSec {
		return fmt.Errorf("config: safety_timeout %ds exceeds max_on_time %ds",
			c.Relay.SafetyTimeoutSec, c.Relay.MaxOnTimeSec)
	}
	if c.Web.Addr == "" {
		return fmt.Errorf("config: web.addr must be set")
	}
	if c.Web.MaxConnections <= 0 || c.Web.RequestTimeoutSec <= 0 || c.Web.MaxRequestBytes <= 0 {
		return fmt.Errorf("config: web limits must be positive")
	}
	if c.Auth.Username == "" || c.Auth.Password == "" {
		return fmt.Errorf("config: auth credentials must be set")
	}
	if c.Auth.SessionLifetimeSec <= 0 || c.Auth.CSRFLifetimeSec <= 0 {
		return fmt.Errorf("config: session and csrf lifetimes must be positive")
	}
	if c.Auth.MaxSessions <= 0 || c.Auth.MaxClients <= 0 {
		return fmt.Errorf("config: auth table capacities must be positive")
	}
	if c.Auth.MaxLoginAttempts <= 0 || c.Auth.LockoutSec <= 0 {
		return fmt.Errorf("config: lockout settings must be positive")
	}
	if c.API.RateLimit <= 0 || c.API.RateWindowSec <= 0 {
		return fmt.Errorf("config: rate limit settings must be positive")
	}
	if c.MQTT.HeartbeatSec < 0 {
		return fmt.Errorf("config: mqtt heartbeat must not be negative")
	}
	if c.System.DeviceName == "" {
		return fmt.Errorf("config: device_name must be set")
	}
	return nil
}

// Timers converts the relay settings for the safety controller.
func (c Config) Timers() relay.Timers {
	return relay.Timers{
		SafetyTimeout:     time.Duration(c.Relay.SafetyTimeoutSec) * time.Second,
		MaxOnTime:         time.Duration(c.Relay.MaxOnTimeSec) * time.Second,
		MinSwitchInterval: time.Duration(c.Relay.MinSwitchIntervalSec) * time.Second,
	}
}

// RequestTimeout returns the per-request HTTP deadline.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Web.RequestTimeoutSec) * time.Second
}

// SessionLifetime returns the session idle expiry.
func (c Config) SessionLifetime() time.Duration {
	return time.Duration(c.Auth.SessionLifetimeSec) * time.Second
}

// CSRFLifetime returns the CSRF token expiry.
func (c Config) CSRFLifetime() time.Duration {
	return time.Duration(c.Auth.CSRFLifetimeSec) * time.Second
}

// LockoutDuration returns how long an identity stays locked.
func (c Config) LockoutDuration() time.Duration {
	return time.Duration(c.Auth.LockoutSec) * time.Second
}

// RateWindow returns the rate limiter window length.
func (c Config) RateWindow() time.Duration {
	return time.Duration(c.API.RateWindowSec) * time.Second
}

// Heartbeat returns the MQTT heartbeat interval (0 disables it).
func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.MQTT.HeartbeatSec) * time.Second
}
