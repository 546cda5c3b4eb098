// Package types - Enterprise feature configuration and data structures
package types

import (
	"time"

	"logroute/pkg/security"
)

// SecurityConfig wires pkg/security's own authentication, sanitization
// and input-validation configs into the application config tree,
// rather than re-declaring parallel Auth/Role/Permission structures the
// way the teacher's enterprise.go did: pkg/security already owns those
// shapes, and duplicating them here would let the two drift out of
// sync.
type SecurityConfig struct {
	Auth       security.AuthConfig      `yaml:"auth"`
	Sanitizer  security.SanitizerConfig `yaml:"sanitizer"`
	Validation security.ValidationConfig `yaml:"validation"`
}

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerOpen     CircuitBreakerState = "open"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
)

// CircuitBreakerStats represents circuit breaker statistics.
type CircuitBreakerStats struct {
	State         CircuitBreakerState `json:"state"`
	FailureCount  int64               `json:"failure_count"`
	SuccessCount  int64               `json:"success_count"`
	Failures      int64               `json:"failures"`  // Alias for FailureCount
	Successes     int64               `json:"successes"` // Alias for SuccessCount
	Requests      int64               `json:"requests"`
	LastFailure   time.Time           `json:"last_failure"`
	LastSuccess   time.Time           `json:"last_success"`
	OpenTimestamp time.Time           `json:"open_timestamp"`
	NextRetryTime time.Time           `json:"next_retry_time"`
}
