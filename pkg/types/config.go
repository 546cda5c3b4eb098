// Package types - Configuration data structures
package types

import (
	"logroute/pkg/message"
	"logroute/pkg/secrets"
	"logroute/pkg/tracing"
	"logroute/pkg/validation"
)

// Config represents the complete application configuration structure:
// every setting needed to build the pkg/pipeline path graph, the
// pkg/logqueue/pkg/destdriver delivery side, and the ambient
// logging/metrics/security/tracing stack around them.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`

	Security            SecurityConfig        `yaml:"security"`
	Tracing             tracing.TracingConfig `yaml:"tracing"`
	TimestampValidation validation.Config     `yaml:"timestamp_validation"`
	Secrets             secrets.Config        `yaml:"secrets"`
	Positions           PositionsConfig       `yaml:"positions"`

	// Named source and sink configurations. A PathNodeConfig.Ref names a
	// key into the map selected by its Kind (e.g. Kind "file" looks up
	// Sources.File[Ref]).
	Sources SourcesConfig `yaml:"sources"`
	Sinks   SinksConfig   `yaml:"sinks"`

	// Pipe graph: source -> parser -> filter -> rewrite -> destination
	PathGraph PathGraphConfig `yaml:"path_graph"`
}

// AppConfig contains core application settings.
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// ServerConfig contains the control/stats HTTP server settings (health,
// metrics passthrough, and authenticated status endpoints routed with
// gorilla/mux and guarded by Security.Auth).
type ServerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
	TLSEnabled   bool   `yaml:"tls_enabled"`
	TLSCertFile  string `yaml:"tls_cert_file"`
	TLSKeyFile   string `yaml:"tls_key_file"`
}

// MetricsConfig contains Prometheus metrics settings for pkg/stats.Registry.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// PositionsConfig drives pkg/positions.Store.
type PositionsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Directory     string `yaml:"directory"`
	FlushInterval string `yaml:"flush_interval"`
}

// SourcesConfig holds the named source definitions a PathNodeConfig can
// reference by Kind+Ref.
type SourcesConfig struct {
	File     map[string]FileSourceConfig     `yaml:"file"`
	Datagram map[string]DatagramSourceConfig `yaml:"datagram"`
	Docker   map[string]DockerSourceConfig   `yaml:"docker"`
}

// FileSourceConfig drives an internal/sources.FileDriver.
type FileSourceConfig struct {
	Path string `yaml:"path"`

	// SeekStrategy picks the initial read position: "beginning"
	// (default), "end", or "recent" (see SeekRecentBytes). Ignored when
	// Resume is enabled and a saved position exists.
	SeekStrategy    string `yaml:"seek_strategy"`
	SeekRecentBytes int64  `yaml:"seek_recent_bytes"`

	PollInterval string `yaml:"poll_interval"`

	// Framer selects the logproto.Framer: "text" (default, newline
	// delimited) or "datagram" is not valid here (file sources always
	// frame a byte stream, not individual packets).
	Framer string `yaml:"framer"`

	// Resume enables loading/saving this source's framer state via the
	// shared pkg/positions.Store, keyed by Path.
	Resume bool `yaml:"resume"`

	SourceAddr string                `yaml:"source_addr"`
	Parse      message.ParseOptions `yaml:"parse"`
}

// DatagramSourceConfig drives an internal/sources.DatagramDriver.
type DatagramSourceConfig struct {
	Network         string                `yaml:"network"`
	Address         string                `yaml:"address"`
	MaxDatagramSize int                   `yaml:"max_datagram_size"`
	Parse           message.ParseOptions  `yaml:"parse"`
}

// DockerSourceConfig drives an internal/sources.DockerDriver, tailing
// one container's combined stdout/stderr log stream.
type DockerSourceConfig struct {
	SocketPath string `yaml:"socket_path"`

	// ContainerName selects the container by a Docker "name" filter
	// (substring match, same as `docker ps --filter name=...`).
	ContainerName string `yaml:"container_name"`

	SourceAddr string               `yaml:"source_addr"`
	Parse      message.ParseOptions `yaml:"parse"`
}

// SinksConfig holds the named terminal-delivery sink definitions a
// PathNodeConfig can reference by Kind+Ref.
type SinksConfig struct {
	Loki          map[string]LokiSinkConfig          `yaml:"loki"`
	LocalFile     map[string]LocalFileSinkConfig     `yaml:"local_file"`
	Elasticsearch map[string]ElasticsearchSinkConfig `yaml:"elasticsearch"`
	Splunk        map[string]SplunkSinkConfig        `yaml:"splunk"`
	Kafka         map[string]KafkaSinkConfig         `yaml:"kafka"`
}

// LokiSinkConfig drives a pkg/sinks.LokiWorker. Password/Token accept a
// secret:// reference resolved through Config.Secrets.
type LokiSinkConfig struct {
	URL          string            `yaml:"url"`
	PushEndpoint string            `yaml:"push_endpoint"`
	TenantID     string            `yaml:"tenant_id"`
	Labels       map[string]string `yaml:"labels"`
	Headers      map[string]string `yaml:"headers"`
	AuthType     string            `yaml:"auth_type"` // "basic" or "bearer"
	Username     string            `yaml:"username"`
	Password     string            `yaml:"password"`
	Token        string            `yaml:"token"`
	Timeout      string            `yaml:"timeout"`
}

// LocalFileSinkConfig drives a pkg/sinks.LocalFileWorker.
type LocalFileSinkConfig struct {
	Path         string `yaml:"path"`
	Format       string `yaml:"format"` // "json" or "text"
	MaxSizeBytes int64  `yaml:"max_size_bytes"`
	Compress     bool   `yaml:"compress"`
}

// ElasticsearchSinkConfig drives a pkg/sinks.ElasticsearchWorker.
type ElasticsearchSinkConfig struct {
	URLs         []string `yaml:"urls"`
	IndexPattern string   `yaml:"index_pattern"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	APIKey       string   `yaml:"api_key"`
	Timeout      string   `yaml:"timeout"`
}

// SplunkSinkConfig drives a pkg/sinks.SplunkWorker.
type SplunkSinkConfig struct {
	URL        string `yaml:"url"`
	Token      string `yaml:"token"`
	Index      string `yaml:"index"`
	Source     string `yaml:"source"`
	SourceType string `yaml:"source_type"`
	Timeout    string `yaml:"timeout"`
}

// KafkaSinkConfig drives a pkg/sinks.KafkaWorker.
type KafkaSinkConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	Compression   string   `yaml:"compression"`
	ConnTimeout   string   `yaml:"conn_timeout"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	SASLMechanism string   `yaml:"sasl_mechanism"`
}

// PathGraphConfig describes the pkg/pipeline node graph(s) the
// application should build: each entry is one source-to-destination
// path, named so logs and the control interface can refer to it.
type PathGraphConfig struct {
	Paths []PathConfig `yaml:"paths"`
}

// PathConfig is a single path through the pipe graph. Source and
// Destinations name entries under Sources/Sinks respectively;
// Filters/Rewrites are evaluated in list order.
type PathConfig struct {
	Name         string           `yaml:"name"`
	Source       PathNodeConfig   `yaml:"source"`
	Parser       PathNodeConfig   `yaml:"parser"`
	Filters      []PathNodeConfig `yaml:"filters"`
	Rewrites     []PathNodeConfig `yaml:"rewrites"`
	Destinations []PathNodeConfig `yaml:"destinations"`
	Queue        QueueClassConfig `yaml:"queue"`
}

// PathNodeConfig identifies one node in a path by kind (e.g. "file",
// "datagram", "kafka", "local_file") plus a reference (Ref) to that
// kind's named entry under Sources/Sinks, and any node-specific
// settings that don't belong in a shared block (e.g. a filter's match
// expression).
type PathNodeConfig struct {
	Kind     string                 `yaml:"kind"`
	Ref      string                 `yaml:"ref"`
	Settings map[string]interface{} `yaml:"settings"`
}

// QueueClassConfig selects and configures a path's pkg/logqueue backend.
type QueueClassConfig struct {
	// Class is "memory" (default), "disk", or "external".
	Class string `yaml:"class"`

	Capacity int `yaml:"capacity"`

	// Discipline is "parallel" (default, drop on overflow) or
	// "flow_control" (block the source until space frees up). Only
	// meaningful for Class "memory".
	Discipline string `yaml:"discipline"`

	// Disk-class settings.
	SpoolDirectory string `yaml:"spool_directory"`

	// External-class settings (Kafka-backed, see pkg/logqueue.ExternalQueue).
	// Backlog is the local disk spool a failed remote write falls back to.
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	SASLMechanism string   `yaml:"sasl_mechanism"`
	ConnTimeout   string   `yaml:"conn_timeout"`
	Backlog       string   `yaml:"backlog_directory"`
}
