// Package secrets resolves secret:// references in configuration values
// (sink passwords, bearer tokens, SASL credentials) against environment
// variables, trimmed from the teacher's pkg/secrets.MultiSecretsManager
// down to the one backend (env) that has a real implementation — the
// teacher's vault/aws/k8s backends were stubs that always returned an
// error, so carrying them forward would only add configuration surface
// nothing can satisfy.
package secrets

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultPrefix = "SECRET_"

// Config configures the Resolver.
type Config struct {
	EnvPrefix string        `yaml:"env_prefix"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type cached struct {
	value   string
	expires time.Time
}

// Resolver resolves secret:// references against environment variables,
// with a short-lived cache so a hot path re-resolving the same
// reference doesn't repeatedly hit os.Getenv.
type Resolver struct {
	prefix string
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]cached
}

// New returns a Resolver with defaults applied.
func New(cfg Config) *Resolver {
	prefix := cfg.EnvPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{prefix: prefix, ttl: ttl, cache: make(map[string]cached)}
}

// IsReference reports whether value names a secret rather than carrying
// a literal (spec.md credential fields accept either).
func IsReference(value string) bool {
	return strings.HasPrefix(value, "secret://")
}

// Resolve returns value unchanged unless it is a secret:// reference, in
// which case it looks the referenced key up as an environment variable
// named <prefix><KEY>, with '/' mapped to '_' and the key upper-cased.
func (r *Resolver) Resolve(value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	key := strings.TrimPrefix(value, "secret://")

	r.mu.Lock()
	if c, ok := r.cache[key]; ok && time.Now().Before(c.expires) {
		r.mu.Unlock()
		return c.value, nil
	}
	r.mu.Unlock()

	envKey := r.prefix + strings.ToUpper(strings.ReplaceAll(key, "/", "_"))
	resolved, ok := os.LookupEnv(envKey)
	if !ok {
		return "", fmt.Errorf("secrets: environment variable %s not set for reference %q", envKey, value)
	}

	r.mu.Lock()
	r.cache[key] = cached{value: resolved, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return resolved, nil
}
