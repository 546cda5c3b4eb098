package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"logroute/pkg/errors"
	"logroute/pkg/security"
	"logroute/pkg/types"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// LoadConfig reads configFile (if non-empty), layers environment
// overrides on top, fills in defaults, and validates the result before
// returning it.
func LoadConfig(configFile string) (*types.Config, error) {
	config := &types.Config{}

	if configFile != "" {
		if err := loadConfigFile(configFile, config); err != nil {
			return nil, errors.WrapError(err, "config", "load", "failed to load config file "+configFile)
		}
	}

	applyEnvironmentOverrides(config)
	applyDefaults(config)

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

// applyDefaults fills every zero-valued setting a running instance
// needs with a workable default, mirroring the teacher's
// applyDefaults but scoped to the trimmed config tree.
func applyDefaults(config *types.Config) {
	if config.App.Name == "" {
		config.App.Name = "logroute"
	}
	if config.App.LogLevel == "" {
		config.App.LogLevel = "info"
	}
	if config.App.LogFormat == "" {
		config.App.LogFormat = "json"
	}

	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.ReadTimeout == "" {
		config.Server.ReadTimeout = "10s"
	}
	if config.Server.WriteTimeout == "" {
		config.Server.WriteTimeout = "10s"
	}

	if config.Metrics.Port == 0 {
		config.Metrics.Port = 9090
	}
	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}
	if config.Metrics.Namespace == "" {
		config.Metrics.Namespace = "logroute"
	}

	if config.Positions.Directory == "" {
		config.Positions.Directory = "/var/lib/logroute/positions"
	}
	if config.Positions.FlushInterval == "" {
		config.Positions.FlushInterval = "10s"
	}

	if config.Secrets.EnvPrefix == "" {
		config.Secrets.EnvPrefix = "SECRET_"
	}
	if config.Secrets.CacheTTL == 0 {
		config.Secrets.CacheTTL = 5 * time.Minute
	}

	config.TimestampValidation.SetDefaults()
	config.Security.Validation = security.DefaultValidationConfig()

	for name, src := range config.Sources.File {
		if src.SeekStrategy == "" {
			src.SeekStrategy = "beginning"
		}
		if src.PollInterval == "" {
			src.PollInterval = "250ms"
		}
		if src.Framer == "" {
			src.Framer = "text"
		}
		config.Sources.File[name] = src
	}
	for name, src := range config.Sources.Datagram {
		if src.Network == "" {
			src.Network = "udp"
		}
		if src.MaxDatagramSize == 0 {
			src.MaxDatagramSize = 65536
		}
		config.Sources.Datagram[name] = src
	}

	for i, p := range config.PathGraph.Paths {
		if p.Queue.Class == "" {
			p.Queue.Class = "memory"
		}
		if p.Queue.Discipline == "" {
			p.Queue.Discipline = "parallel"
		}
		if p.Queue.Capacity == 0 {
			p.Queue.Capacity = 1000
		}
		config.PathGraph.Paths[i] = p
	}
}

// applyEnvironmentOverrides applies the small set of settings an
// operator commonly needs to flip without touching the YAML file:
// listen addresses, log level, and enabling the control server.
func applyEnvironmentOverrides(config *types.Config) {
	config.App.Name = getEnvString("LOGROUTE_APP_NAME", config.App.Name)
	config.App.Environment = getEnvString("LOGROUTE_ENVIRONMENT", config.App.Environment)
	config.App.LogLevel = getEnvString("LOGROUTE_LOG_LEVEL", config.App.LogLevel)
	config.App.LogFormat = getEnvString("LOGROUTE_LOG_FORMAT", config.App.LogFormat)

	config.Server.Enabled = getEnvBool("LOGROUTE_SERVER_ENABLED", config.Server.Enabled)
	config.Server.Host = getEnvString("LOGROUTE_SERVER_HOST", config.Server.Host)
	config.Server.Port = getEnvInt("LOGROUTE_SERVER_PORT", config.Server.Port)

	config.Metrics.Enabled = getEnvBool("LOGROUTE_METRICS_ENABLED", config.Metrics.Enabled)
	config.Metrics.Port = getEnvInt("LOGROUTE_METRICS_PORT", config.Metrics.Port)

	config.Security.Auth.Enabled = getEnvBool("LOGROUTE_AUTH_ENABLED", config.Security.Auth.Enabled)
	config.Tracing.Enabled = getEnvBool("LOGROUTE_TRACING_ENABLED", config.Tracing.Enabled)
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// ConfigValidator accumulates every validation failure across the
// config tree rather than stopping at the first, so a misconfigured
// deployment sees the whole list in one pass.
type ConfigValidator struct {
	config *types.Config
	errors []*errors.AppError
}

func (v *ConfigValidator) addError(component, operation, message string) {
	v.errors = append(v.errors, errors.ConfigError(operation, fmt.Sprintf("%s: %s", component, message)))
}

// ValidateConfig runs every validation pass and returns a single
// aggregated error, or nil if the configuration is sound.
func ValidateConfig(config *types.Config) error {
	v := &ConfigValidator{config: config}
	v.validateApp()
	v.validateServer()
	v.validateSources()
	v.validateSinks()
	v.validatePathGraph()
	v.validatePositions()

	if len(v.errors) == 0 {
		return nil
	}
	return v.buildValidationError()
}

func (v *ConfigValidator) validateApp() {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if v.config.App.LogLevel != "" && !validLevels[v.config.App.LogLevel] {
		v.addError("app", "validate_log_level", fmt.Sprintf("invalid log level %q", v.config.App.LogLevel))
	}
}

func (v *ConfigValidator) validateServer() {
	if !v.config.Server.Enabled {
		return
	}
	if v.config.Server.Port <= 0 || v.config.Server.Port > 65535 {
		v.addError("server", "validate_port", fmt.Sprintf("invalid port %d", v.config.Server.Port))
	}
	if v.config.Server.TLSEnabled {
		if v.config.Server.TLSCertFile == "" || v.config.Server.TLSKeyFile == "" {
			v.addError("server", "validate_tls", "tls_enabled requires both tls_cert_file and tls_key_file")
		}
	}
}

// validateSources checks every named file source's path through
// pkg/security's InputValidator, the same path-traversal/symlink
// guard the teacher applied to sink file destinations, now applied
// symmetrically to source paths.
func (v *ConfigValidator) validateSources() {
	validator := security.NewInputValidator(v.config.Security.Validation)
	for name, src := range v.config.Sources.File {
		if src.Path == "" {
			v.addError("sources.file", "validate_path", fmt.Sprintf("source %q: path cannot be empty", name))
			continue
		}
		if err := validator.ValidatePath(src.Path); err != nil {
			v.addError("sources.file", "validate_path", fmt.Sprintf("source %q: %v", name, err))
		}
		validSeek := map[string]bool{"": true, "beginning": true, "end": true, "recent": true}
		if !validSeek[src.SeekStrategy] {
			v.addError("sources.file", "validate_seek_strategy", fmt.Sprintf("source %q: invalid seek_strategy %q", name, src.SeekStrategy))
		}
	}
	for name, src := range v.config.Sources.Datagram {
		if src.Address == "" {
			v.addError("sources.datagram", "validate_address", fmt.Sprintf("source %q: address cannot be empty", name))
		}
	}
}

func (v *ConfigValidator) validateSinks() {
	for name, s := range v.config.Sinks.Loki {
		if s.URL == "" {
			v.addError("sinks.loki", "validate_url", fmt.Sprintf("sink %q: url cannot be empty", name))
			continue
		}
		if _, err := url.Parse(s.URL); err != nil {
			v.addError("sinks.loki", "validate_url", fmt.Sprintf("sink %q: %v", name, err))
		}
	}
	for name, s := range v.config.Sinks.LocalFile {
		if s.Path == "" {
			v.addError("sinks.local_file", "validate_path", fmt.Sprintf("sink %q: path cannot be empty", name))
			continue
		}
		if !filepath.IsAbs(s.Path) {
			v.addError("sinks.local_file", "validate_path", fmt.Sprintf("sink %q: path must be absolute", name))
		}
	}
	for name, s := range v.config.Sinks.Elasticsearch {
		if len(s.URLs) == 0 {
			v.addError("sinks.elasticsearch", "validate_urls", fmt.Sprintf("sink %q: urls cannot be empty", name))
		}
		for i, u := range s.URLs {
			if _, err := url.Parse(u); err != nil {
				v.addError("sinks.elasticsearch", "validate_urls", fmt.Sprintf("sink %q: url[%d]: %v", name, i, err))
			}
		}
	}
	for name, s := range v.config.Sinks.Splunk {
		if s.URL == "" {
			v.addError("sinks.splunk", "validate_url", fmt.Sprintf("sink %q: url cannot be empty", name))
		}
		if s.Token == "" {
			v.addError("sinks.splunk", "validate_token", fmt.Sprintf("sink %q: token cannot be empty", name))
		}
	}
	for name, s := range v.config.Sinks.Kafka {
		if len(s.Brokers) == 0 {
			v.addError("sinks.kafka", "validate_brokers", fmt.Sprintf("sink %q: brokers cannot be empty", name))
		}
		if s.Topic == "" {
			v.addError("sinks.kafka", "validate_topic", fmt.Sprintf("sink %q: topic cannot be empty", name))
		}
	}
}

var validQueueClasses = map[string]bool{"": true, "memory": true, "disk": true, "external": true}

func (v *ConfigValidator) validatePathGraph() {
	if len(v.config.PathGraph.Paths) == 0 {
		v.addError("path_graph", "validate_paths", "at least one path must be configured")
		return
	}

	for i, p := range v.config.PathGraph.Paths {
		if p.Name == "" {
			v.addError("path_graph", "validate_name", fmt.Sprintf("path[%d] must have a name", i))
		}
		if p.Source.Kind == "" {
			v.addError("path_graph", "validate_source", fmt.Sprintf("path %q must name a source kind", p.Name))
		}
		if len(p.Destinations) == 0 {
			v.addError("path_graph", "validate_destinations", fmt.Sprintf("path %q must name at least one destination", p.Name))
		}

		if !validQueueClasses[p.Queue.Class] {
			v.addError("path_graph", "validate_queue_class", fmt.Sprintf("path %q has invalid queue class %q", p.Name, p.Queue.Class))
			continue
		}
		switch p.Queue.Class {
		case "external":
			if len(p.Queue.Brokers) == 0 {
				v.addError("path_graph", "validate_queue_brokers", fmt.Sprintf("path %q: external queue requires at least one broker", p.Name))
			}
			if p.Queue.Topic == "" {
				v.addError("path_graph", "validate_queue_topic", fmt.Sprintf("path %q: external queue requires a topic", p.Name))
			}
			if p.Queue.ConnTimeout != "" {
				if _, err := time.ParseDuration(p.Queue.ConnTimeout); err != nil {
					v.addError("path_graph", "validate_queue_conn_timeout", fmt.Sprintf("path %q: invalid conn_timeout: %s", p.Name, p.Queue.ConnTimeout))
				}
			}
		case "disk":
			if p.Queue.SpoolDirectory == "" {
				v.addError("path_graph", "validate_queue_spool_directory", fmt.Sprintf("path %q: disk queue requires a spool_directory", p.Name))
			}
		}
	}
}

func (v *ConfigValidator) validatePositions() {
	if !v.config.Positions.Enabled {
		return
	}
	if v.config.Positions.Directory == "" {
		v.addError("positions", "validate_directory", "directory cannot be empty when enabled")
	}
	if v.config.Positions.FlushInterval != "" {
		if _, err := time.ParseDuration(v.config.Positions.FlushInterval); err != nil {
			v.addError("positions", "validate_flush_interval", fmt.Sprintf("invalid flush_interval: %s", v.config.Positions.FlushInterval))
		}
	}
}

func (v *ConfigValidator) buildValidationError() error {
	if len(v.errors) == 1 {
		return v.errors[0]
	}
	messages := make([]string, 0, len(v.errors))
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return errors.ConfigError("validate", fmt.Sprintf("multiple validation errors: %s", strings.Join(messages, "; ")))
}

// NewLogger builds the application's logrus.Logger from AppConfig,
// matching the level/format knobs applyDefaults guarantees are set.
func NewLogger(cfg types.AppConfig) *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}
