// Package validation checks that parsed message timestamps fall within
// an acceptable window of wall-clock time, adapted from the teacher's
// pkg/validation/timestamp_validator.go onto pkg/message.Message instead
// of its LogEntry type. The dead-letter routing the teacher wired in for
// clamped/rejected timestamps is replaced with a plain OnInvalid
// callback: the caller (typically a pkg/pipeline.RewriteNode) decides
// whether that means dropping the message, logging it, or something
// else entirely.
package validation

import (
	"fmt"
	"sync"
	"time"

	"logroute/pkg/message"

	"github.com/sirupsen/logrus"
)

// Config configures the timestamp validator.
type Config struct {
	Enabled             bool     `yaml:"enabled"`
	MaxPastAgeSeconds   int      `yaml:"max_past_age_seconds"`
	MaxFutureAgeSeconds int      `yaml:"max_future_age_seconds"`
	ClampEnabled        bool     `yaml:"clamp_enabled"`
	InvalidAction       string   `yaml:"invalid_action"` // "clamp", "reject", "warn"
	DefaultTimezone     string   `yaml:"default_timezone"`
	AcceptedFormats     []string `yaml:"accepted_formats"`
}

func (c *Config) SetDefaults() {
	if c.MaxPastAgeSeconds == 0 {
		c.MaxPastAgeSeconds = 21600
	}
	if c.MaxFutureAgeSeconds == 0 {
		c.MaxFutureAgeSeconds = 60
	}
	if c.InvalidAction == "" {
		c.InvalidAction = "clamp"
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "UTC"
	}
	if len(c.AcceptedFormats) == 0 {
		c.AcceptedFormats = []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02T15:04:05.000Z",
			"2006-01-02T15:04:05Z",
			"2006-01-02 15:04:05",
		}
	}
}

// Stats tracks validation outcomes.
type Stats struct {
	TotalValidated     int64
	ValidTimestamps    int64
	InvalidTimestamps  int64
	ClampedTimestamps  int64
	RejectedTimestamps int64
	FutureTimestamps   int64
	PastTimestamps     int64
}

// Result reports the outcome of validating one timestamp.
type Result struct {
	Valid         bool
	OriginalTime  time.Time
	ValidatedTime time.Time
	Action        string // "valid", "clamped", "rejected", "warned"
	Reason        string
}

// TimestampValidator validates and, depending on configuration, clamps
// message timestamps that fall outside the acceptable window.
type TimestampValidator struct {
	config    Config
	logger    *logrus.Logger
	OnInvalid func(msg *message.Message, result Result)

	mu    sync.Mutex
	stats Stats
}

// New returns a validator with defaults applied.
func New(config Config, logger *logrus.Logger) *TimestampValidator {
	config.SetDefaults()
	if logger == nil {
		logger = logrus.New()
	}
	return &TimestampValidator{config: config, logger: logger}
}

// Validate checks msg.Stamp against the acceptable window, clamping,
// rejecting, or warning per InvalidAction, and returns the outcome.
func (v *TimestampValidator) Validate(msg *message.Message) Result {
	if !v.config.Enabled {
		return Result{Valid: true, Action: "valid", Reason: "validation_disabled"}
	}

	v.mu.Lock()
	v.stats.TotalValidated++
	v.mu.Unlock()

	now := time.Now()
	original := msg.Stamp.Time()
	result := Result{OriginalTime: original, ValidatedTime: original, Valid: true, Action: "valid"}

	maxFuture := now.Add(time.Duration(v.config.MaxFutureAgeSeconds) * time.Second)
	maxPast := now.Add(-time.Duration(v.config.MaxPastAgeSeconds) * time.Second)

	switch {
	case original.After(maxFuture):
		v.bump(func(s *Stats) { s.InvalidTimestamps++; s.FutureTimestamps++ })
		result.Valid = false
		result.Reason = "timestamp_too_far_future"
		v.logger.WithFields(logrus.Fields{"source_addr": msg.SourceAddr, "original": original, "now": now}).
			Warn("validation: timestamp too far in future")
		result = v.handleInvalid(msg, result, now)
	case original.Before(maxPast):
		v.bump(func(s *Stats) { s.InvalidTimestamps++; s.PastTimestamps++ })
		result.Valid = false
		result.Reason = "timestamp_too_old"
		v.logger.WithFields(logrus.Fields{"source_addr": msg.SourceAddr, "original": original, "now": now}).
			Warn("validation: timestamp too old")
		result = v.handleInvalid(msg, result, now)
	default:
		v.bump(func(s *Stats) { s.ValidTimestamps++ })
	}

	if !result.Valid || result.Action != "valid" {
		if v.OnInvalid != nil {
			v.OnInvalid(msg, result)
		}
	}
	return result
}

func (v *TimestampValidator) handleInvalid(msg *message.Message, result Result, now time.Time) Result {
	switch v.config.InvalidAction {
	case "clamp":
		if v.config.ClampEnabled {
			msg.Stamp = message.TimeStampFromTime(now)
			result.ValidatedTime = now
			result.Action = "clamped"
			result.Valid = true
			v.bump(func(s *Stats) { s.ClampedTimestamps++ })
			return result
		}
		result.Action = "rejected"
		v.bump(func(s *Stats) { s.RejectedTimestamps++ })
		return result
	case "reject":
		result.Action = "rejected"
		v.bump(func(s *Stats) { s.RejectedTimestamps++ })
		v.logger.WithFields(logrus.Fields{"source_addr": msg.SourceAddr, "reason": result.Reason}).
			Error("validation: timestamp rejected")
		return result
	case "warn":
		result.Action = "warned"
		result.Valid = true
		v.logger.WithFields(logrus.Fields{"source_addr": msg.SourceAddr, "reason": result.Reason}).
			Warn("validation: invalid timestamp allowed through")
		return result
	default:
		msg.Stamp = message.TimeStampFromTime(now)
		result.ValidatedTime = now
		result.Action = "clamped"
		result.Valid = true
		v.bump(func(s *Stats) { s.ClampedTimestamps++ })
		return result
	}
}

func (v *TimestampValidator) bump(f func(*Stats)) {
	v.mu.Lock()
	f(&v.stats)
	v.mu.Unlock()
}

// ParseTimestamp tries every configured format, then retries each format
// against DefaultTimezone.
func (v *TimestampValidator) ParseTimestamp(s string) (time.Time, error) {
	for _, format := range v.config.AcceptedFormats {
		if parsed, err := time.Parse(format, s); err == nil {
			return parsed, nil
		}
	}

	if loc, err := time.LoadLocation(v.config.DefaultTimezone); err == nil {
		for _, format := range v.config.AcceptedFormats {
			if parsed, err := time.ParseInLocation(format, s, loc); err == nil {
				return parsed, nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("validation: unable to parse timestamp %q with any configured format", s)
}

// InWindow reports whether timestamp falls within the acceptable window
// without mutating any state.
func (v *TimestampValidator) InWindow(timestamp time.Time) bool {
	if !v.config.Enabled {
		return true
	}
	now := time.Now()
	maxFuture := now.Add(time.Duration(v.config.MaxFutureAgeSeconds) * time.Second)
	maxPast := now.Add(-time.Duration(v.config.MaxPastAgeSeconds) * time.Second)
	return timestamp.After(maxPast) && timestamp.Before(maxFuture)
}

// Stats returns a snapshot of validation counters.
func (v *TimestampValidator) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}
