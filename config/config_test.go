// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.TCPAddr != ":1883" {
		t.Errorf("expected default TCP addr :1883, got %s", cfg.Server.TCPAddr)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}

	zone := cfg.Zone("default")
	if zone.KeepaliveBackoff != 0.75 {
		t.Errorf("expected keepalive backoff 0.75, got %v", zone.KeepaliveBackoff)
	}
	if zone.MaxQoS != 2 {
		t.Errorf("expected max QoS 2, got %d", zone.MaxQoS)
	}
	if !zone.RetainAvailable {
		t.Error("expected retain available by default")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.Server.TCPAddr != ":1883" {
		t.Errorf("expected default TCP addr, got %s", cfg.Server.TCPAddr)
	}
}

func TestLoadZones(t *testing.T) {
	data := `
server:
  tcp_addr: ":2883"
zones:
  external:
    mountpoint: "u/%c/"
    enable_acl: true
    max_clientid_len: 23
    max_qos: 1
`
	path := filepath.Join(t.TempDir(), "broker.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.TCPAddr != ":2883" {
		t.Errorf("expected :2883, got %s", cfg.Server.TCPAddr)
	}

	zone := cfg.Zone("external")
	if zone.Mountpoint != "u/%c/" {
		t.Errorf("expected mountpoint template, got %q", zone.Mountpoint)
	}
	if zone.MaxClientIDLen != 23 {
		t.Errorf("expected max client id len 23, got %d", zone.MaxClientIDLen)
	}
	if zone.KeepaliveBackoff != 0.75 {
		t.Errorf("expected defaulted keepalive backoff, got %v", zone.KeepaliveBackoff)
	}
	if zone.PeerCertAsUsername != PeerCertNone {
		t.Errorf("expected defaulted peer cert policy, got %q", zone.PeerCertAsUsername)
	}

	// Unknown zones fall back to the default zone.
	fallback := cfg.Zone("missing")
	if fallback.MaxQoS != 2 {
		t.Errorf("expected fallback to default zone, got max QoS %d", fallback.MaxQoS)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/broker.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
