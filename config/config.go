// Package config loads client settings from a TOML file on top of defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds everything needed to build a client.
type Config struct {
	URL         string // Base URL serving the discovery layout
	AccessToken string
	UserAgent   string // Client identifier sent in the handshake

	ReconnectDelay   time.Duration
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration // Transport dial/upgrade timeout
	WriteTimeout     time.Duration

	HeartbeatInterval time.Duration // Client-initiated heartbeats on tcp:// endpoints, 0 disables

	LayoutPath    string
	Endpoints     []string // Static endpoints; discovery is skipped when set
	EtcdEndpoints []string
	EtcdPrefix    string

	CallTimeout    time.Duration // 0 waits for the response forever
	RateLimit      float64       // Calls per second, 0 = unlimited
	RateBurst      int
	RetryMax       int
	RetryBaseDelay time.Duration

	LogLevel string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		UserAgent:        "bunkr",
		ReconnectDelay:   2 * time.Second,
		IdleTimeout:      35 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		LayoutPath:       "/layout.json",
		EtcdPrefix:       "/bunkr/layout/socket/",
		RateBurst:        1,
		RetryBaseDelay:   100 * time.Millisecond,
		LogLevel:         "info",
	}
}

// config.toml key mapping to Config.
type fileConfig struct {
	URL              string   `toml:"url"`
	AccessToken      string   `toml:"access_token"`
	UserAgent        string   `toml:"user_agent"`
	ReconnectDelay   string   `toml:"reconnect_delay"`
	IdleTimeout      string   `toml:"idle_timeout"`
	HandshakeTimeout string   `toml:"handshake_timeout"`
	WriteTimeout     string   `toml:"write_timeout"`
	Heartbeat        string   `toml:"heartbeat_interval"`
	LayoutPath       string   `toml:"layout_path"`
	Endpoints        []string `toml:"endpoints"`
	EtcdEndpoints    []string `toml:"etcd_endpoints"`
	EtcdPrefix       string   `toml:"etcd_prefix"`
	CallTimeout      string   `toml:"call_timeout"`
	RateLimit        float64  `toml:"rate_limit"`
	RateBurst        int      `toml:"rate_burst"`
	RetryMax         int      `toml:"retry_max"`
	RetryBaseDelay   string   `toml:"retry_base_delay"`
	LogLevel         string   `toml:"log_level"`
}

// Load reads path and overlays the keys it defines onto Default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("access_token") {
		cfg.AccessToken = strings.TrimSpace(raw.AccessToken)
	}
	if meta.IsDefined("user_agent") {
		cfg.UserAgent = strings.TrimSpace(raw.UserAgent)
	}
	if meta.IsDefined("layout_path") {
		cfg.LayoutPath = strings.TrimSpace(raw.LayoutPath)
	}
	if meta.IsDefined("endpoints") {
		cfg.Endpoints = trimAll(raw.Endpoints)
	}
	if meta.IsDefined("etcd_endpoints") {
		cfg.EtcdEndpoints = trimAll(raw.EtcdEndpoints)
	}
	if meta.IsDefined("etcd_prefix") {
		cfg.EtcdPrefix = strings.TrimSpace(raw.EtcdPrefix)
	}
	if meta.IsDefined("rate_limit") {
		cfg.RateLimit = raw.RateLimit
	}
	if meta.IsDefined("rate_burst") {
		cfg.RateBurst = raw.RateBurst
	}
	if meta.IsDefined("retry_max") {
		cfg.RetryMax = raw.RetryMax
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"reconnect_delay", raw.ReconnectDelay, &cfg.ReconnectDelay},
		{"idle_timeout", raw.IdleTimeout, &cfg.IdleTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.HandshakeTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
		{"heartbeat_interval", raw.Heartbeat, &cfg.HeartbeatInterval},
		{"call_timeout", raw.CallTimeout, &cfg.CallTimeout},
		{"retry_base_delay", raw.RetryBaseDelay, &cfg.RetryBaseDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("load config: %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if c.URL == "" && len(c.Endpoints) == 0 && len(c.EtcdEndpoints) == 0 {
		return errors.New("one of url, endpoints or etcd_endpoints is required")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect_delay must be positive, got %s", c.ReconnectDelay)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got %s", c.IdleTimeout)
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat_interval must not be negative, got %s", c.HeartbeatInterval)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call_timeout must not be negative, got %s", c.CallTimeout)
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.New("rate_limit and rate_burst must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		return errors.New("rate_burst must be at least 1 when rate_limit is set")
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("retry_max must not be negative, got %d", c.RetryMax)
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
