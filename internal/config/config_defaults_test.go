package config

import (
	"testing"

	"logroute/pkg/types"
)

func TestApplyDefaultsFillsAppServerMetrics(t *testing.T) {
	config := &types.Config{}
	applyDefaults(config)

	if config.App.Name != "logroute" {
		t.Errorf("expected default app name, got %q", config.App.Name)
	}
	if config.App.LogLevel != "info" {
		t.Errorf("expected default log level, got %q", config.App.LogLevel)
	}
	if config.Server.Port != 8080 {
		t.Errorf("expected default server port 8080, got %d", config.Server.Port)
	}
	if config.Metrics.Port != 9090 {
		t.Errorf("expected default metrics port 9090, got %d", config.Metrics.Port)
	}
}

func TestApplyDefaultsLeavesExplicitValues(t *testing.T) {
	config := &types.Config{
		App:    types.AppConfig{Name: "custom", LogLevel: "debug"},
		Server: types.ServerConfig{Port: 9999},
	}
	applyDefaults(config)

	if config.App.Name != "custom" {
		t.Errorf("expected explicit app name preserved, got %q", config.App.Name)
	}
	if config.App.LogLevel != "debug" {
		t.Errorf("expected explicit log level preserved, got %q", config.App.LogLevel)
	}
	if config.Server.Port != 9999 {
		t.Errorf("expected explicit server port preserved, got %d", config.Server.Port)
	}
}

func TestApplyDefaultsFillsPositionsAndSecrets(t *testing.T) {
	config := &types.Config{}
	applyDefaults(config)

	if config.Positions.Directory == "" {
		t.Error("expected a default positions directory")
	}
	if config.Positions.FlushInterval == "" {
		t.Error("expected a default positions flush interval")
	}
	if config.Secrets.EnvPrefix != "SECRET_" {
		t.Errorf("expected default secret env prefix, got %q", config.Secrets.EnvPrefix)
	}
}

func TestApplyDefaultsFillsSourceDefaults(t *testing.T) {
	config := &types.Config{
		Sources: types.SourcesConfig{
			File: map[string]types.FileSourceConfig{
				"app_log": {Path: "/tmp/app.log"},
			},
			Datagram: map[string]types.DatagramSourceConfig{
				"syslog_udp": {Address: "0.0.0.0:5514"},
			},
		},
	}
	applyDefaults(config)

	file := config.Sources.File["app_log"]
	if file.SeekStrategy != "beginning" {
		t.Errorf("expected default seek strategy, got %q", file.SeekStrategy)
	}
	if file.PollInterval != "250ms" {
		t.Errorf("expected default poll interval, got %q", file.PollInterval)
	}
	if file.Framer != "text" {
		t.Errorf("expected default framer, got %q", file.Framer)
	}

	datagram := config.Sources.Datagram["syslog_udp"]
	if datagram.Network != "udp" {
		t.Errorf("expected default datagram network, got %q", datagram.Network)
	}
	if datagram.MaxDatagramSize != 65536 {
		t.Errorf("expected default max datagram size, got %d", datagram.MaxDatagramSize)
	}
}
