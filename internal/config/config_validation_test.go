package config

import (
	"strings"
	"testing"

	"logroute/pkg/types"
)

func TestValidConfigPasses(t *testing.T) {
	config := validBaseConfig()
	config.PathGraph = types.PathGraphConfig{
		Paths: []types.PathConfig{
			{
				Name:         "app-logs",
				Source:       types.PathNodeConfig{Kind: "file", Ref: "app_log"},
				Destinations: []types.PathNodeConfig{{Kind: "local_file", Ref: "local_file"}},
				Queue:        types.QueueClassConfig{Class: "memory", Capacity: 500},
			},
		},
	}

	if err := ValidateConfig(config); err != nil {
		t.Errorf("valid config should pass validation, got error: %v", err)
	}
}

func TestInvalidServerPort(t *testing.T) {
	testCases := []struct {
		name string
		port int
	}{
		{"zero port", 0},
		{"negative port", -1},
		{"port too large", 65536},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := validBaseConfig()
			config.Server.Port = tc.port
			config.PathGraph = types.PathGraphConfig{
				Paths: []types.PathConfig{
					{
						Name:         "app-logs",
						Source:       types.PathNodeConfig{Kind: "file", Ref: "app_log"},
						Destinations: []types.PathNodeConfig{{Kind: "local_file", Ref: "local_file"}},
					},
				},
			}

			err := ValidateConfig(config)
			if err == nil {
				t.Fatalf("invalid server port %d should fail validation", tc.port)
			}
			if !strings.Contains(err.Error(), "validate_port") {
				t.Errorf("expected a validate_port error, got: %v", err)
			}
		})
	}
}

func TestInvalidLogLevel(t *testing.T) {
	config := validBaseConfig()
	config.App.LogLevel = "invalid-level"
	config.PathGraph = types.PathGraphConfig{
		Paths: []types.PathConfig{
			{
				Name:         "app-logs",
				Source:       types.PathNodeConfig{Kind: "file", Ref: "app_log"},
				Destinations: []types.PathNodeConfig{{Kind: "local_file", Ref: "local_file"}},
			},
		},
	}

	err := ValidateConfig(config)
	if err == nil || !strings.Contains(err.Error(), "validate_log_level") {
		t.Errorf("expected a validate_log_level error, got: %v", err)
	}
}

func TestServerTLSRequiresCertAndKey(t *testing.T) {
	config := validBaseConfig()
	config.Server.TLSEnabled = true
	config.PathGraph = types.PathGraphConfig{
		Paths: []types.PathConfig{
			{
				Name:         "app-logs",
				Source:       types.PathNodeConfig{Kind: "file", Ref: "app_log"},
				Destinations: []types.PathNodeConfig{{Kind: "local_file", Ref: "local_file"}},
			},
		},
	}

	err := ValidateConfig(config)
	if err == nil || !strings.Contains(err.Error(), "validate_tls") {
		t.Errorf("expected a validate_tls error, got: %v", err)
	}
}

func TestInvalidLokiSinkURL(t *testing.T) {
	config := validBaseConfig()
	config.Sinks.Loki = map[string]types.LokiSinkConfig{
		"primary": {URL: ""},
	}
	config.PathGraph = types.PathGraphConfig{
		Paths: []types.PathConfig{
			{
				Name:         "app-logs",
				Source:       types.PathNodeConfig{Kind: "file", Ref: "app_log"},
				Destinations: []types.PathNodeConfig{{Kind: "loki", Ref: "primary"}},
			},
		},
	}

	err := ValidateConfig(config)
	if err == nil || !strings.Contains(err.Error(), "validate_url") {
		t.Errorf("expected a validate_url error, got: %v", err)
	}
}

func TestLocalFileSinkRequiresAbsolutePath(t *testing.T) {
	config := validBaseConfig()
	config.Sinks.LocalFile["local_file"] = types.LocalFileSinkConfig{Path: "relative/path"}
	config.PathGraph = types.PathGraphConfig{
		Paths: []types.PathConfig{
			{
				Name:         "app-logs",
				Source:       types.PathNodeConfig{Kind: "file", Ref: "app_log"},
				Destinations: []types.PathNodeConfig{{Kind: "local_file", Ref: "local_file"}},
			},
		},
	}

	err := ValidateConfig(config)
	if err == nil || !strings.Contains(err.Error(), "must be absolute") {
		t.Errorf("expected a path-must-be-absolute error, got: %v", err)
	}
}

func TestKafkaSinkRequiresBrokersAndTopic(t *testing.T) {
	config := validBaseConfig()
	config.Sinks.Kafka = map[string]types.KafkaSinkConfig{
		"events": {},
	}
	config.PathGraph = types.PathGraphConfig{
		Paths: []types.PathConfig{
			{
				Name:         "app-logs",
				Source:       types.PathNodeConfig{Kind: "file", Ref: "app_log"},
				Destinations: []types.PathNodeConfig{{Kind: "kafka", Ref: "events"}},
			},
		},
	}

	err := ValidateConfig(config)
	if err == nil {
		t.Fatal("expected validation error for kafka sink missing brokers/topic")
	}
	if !strings.Contains(err.Error(), "validate_brokers") {
		t.Errorf("expected a validate_brokers error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "validate_topic") {
		t.Errorf("expected a validate_topic error, got: %v", err)
	}
}

func TestFileSourcePathTraversalRejected(t *testing.T) {
	config := validBaseConfig()
	config.Sources.File["app_log"] = types.FileSourceConfig{Path: "/tmp/../etc/passwd"}
	config.PathGraph = types.PathGraphConfig{
		Paths: []types.PathConfig{
			{
				Name:         "app-logs",
				Source:       types.PathNodeConfig{Kind: "file", Ref: "app_log"},
				Destinations: []types.PathNodeConfig{{Kind: "local_file", Ref: "local_file"}},
			},
		},
	}

	err := ValidateConfig(config)
	if err == nil || !strings.Contains(err.Error(), "validate_path") {
		t.Errorf("expected a validate_path error, got: %v", err)
	}
}

func TestPathGraphRequiresAtLeastOnePath(t *testing.T) {
	config := validBaseConfig()

	err := ValidateConfig(config)
	if err == nil || !strings.Contains(err.Error(), "validate_paths") {
		t.Errorf("expected a validate_paths error, got: %v", err)
	}
}
