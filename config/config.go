// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PeerCertAsUsername values for zone configuration.
const (
	PeerCertNone = "none"
	PeerCertCN   = "cn"
	PeerCertDN   = "dn"
)

// Config holds all configuration for the MQTT broker.
type Config struct {
	Server ServerConfig    `yaml:"server"`
	Log    LogConfig       `yaml:"log"`
	Zones  map[string]Zone `yaml:"zones"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	TCPAddr         string        `yaml:"tcp_addr"`
	WSAddr          string        `yaml:"ws_addr"`
	WSPath          string        `yaml:"ws_path"`
	WSEnabled       bool          `yaml:"ws_enabled"`
	TCPMaxConn      int           `yaml:"tcp_max_connections"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Connection-rate limiting per source IP.
	ConnectRateLimit float64 `yaml:"connect_rate_limit"`
	ConnectBurst     int     `yaml:"connect_burst"`

	// OpenTelemetry configuration.
	MetricsEnabled     bool   `yaml:"metrics_enabled"`
	OtelEndpoint       string `yaml:"otel_endpoint"`
	OtelServiceName    string `yaml:"otel_service_name"`
	OtelServiceVersion string `yaml:"otel_service_version"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Zone is a named policy bucket supplying per-client protocol limits.
type Zone struct {
	// MaxPacketSize caps the size of inbound packets, in bytes. 0 means
	// the protocol maximum.
	MaxPacketSize uint32 `yaml:"max_packet_size"`

	// Mountpoint is a topic prefix template; %c and %u are replaced with
	// the client identifier and username after a successful handshake.
	Mountpoint string `yaml:"mountpoint"`

	// EnableACL toggles per-topic authorization checks.
	EnableACL bool `yaml:"enable_acl"`

	// MaxClientIDLen bounds the client identifier length accepted at CONNECT.
	MaxClientIDLen int `yaml:"max_clientid_len"`

	// KeepaliveBackoff scales the client keepalive interval when arming
	// the idle timer.
	KeepaliveBackoff float64 `yaml:"keepalive_backoff"`

	// PeerCertAsUsername seeds the username from the TLS client
	// certificate: "cn", "dn" or "none".
	PeerCertAsUsername string `yaml:"peer_cert_as_username"`

	// MaxQoS is the highest QoS accepted on PUBLISH.
	MaxQoS byte `yaml:"max_qos"`

	// RetainAvailable permits retained messages.
	RetainAvailable bool `yaml:"retain_available"`

	// WildcardSubAvailable permits wildcard subscription filters.
	WildcardSubAvailable bool `yaml:"wildcard_sub_available"`
}

// DefaultZone returns the built-in zone policy.
func DefaultZone() Zone {
	return Zone{
		MaxPacketSize:        1024 * 1024,
		EnableACL:            true,
		MaxClientIDLen:       65535,
		KeepaliveBackoff:     0.75,
		PeerCertAsUsername:   PeerCertNone,
		MaxQoS:               2,
		RetainAvailable:      true,
		WildcardSubAvailable: true,
	}
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			TCPAddr:            ":1883",
			WSAddr:             ":8083",
			WSPath:             "/mqtt",
			ShutdownTimeout:    30 * time.Second,
			ConnectRateLimit:   0,
			OtelServiceName:    "mqtt-broker",
			OtelServiceVersion: "0.1.0",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Zones: map[string]Zone{
			"default": DefaultZone(),
		},
	}
}

// Load reads configuration from a YAML file. An empty path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	for name, zone := range cfg.Zones {
		if zone.KeepaliveBackoff == 0 {
			zone.KeepaliveBackoff = 0.75
		}
		if zone.MaxClientIDLen == 0 {
			zone.MaxClientIDLen = 65535
		}
		if zone.PeerCertAsUsername == "" {
			zone.PeerCertAsUsername = PeerCertNone
		}
		cfg.Zones[name] = zone
	}
	return cfg, nil
}

// Zone returns the named zone, falling back to the default zone.
func (c *Config) Zone(name string) Zone {
	if z, ok := c.Zones[name]; ok {
		return z
	}
	if z, ok := c.Zones["default"]; ok {
		return z
	}
	return DefaultZone()
}
