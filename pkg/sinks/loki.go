package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"logroute/pkg/circuit"
	"logroute/pkg/compression"
	"logroute/pkg/message"

	"github.com/sirupsen/logrus"
)

// LokiAuthConfig mirrors the teacher's internal/sinks/loki_sink.go auth
// block: basic-auth or bearer-token, selected by Type.
type LokiAuthConfig struct {
	Type     string // "basic" or "bearer"
	Username string
	Password string
	Token    string
}

// LokiConfig configures LokiWorker.
type LokiConfig struct {
	URL          string
	PushEndpoint string
	TenantID     string
	Labels       map[string]string
	Headers      map[string]string
	Auth         LokiAuthConfig
	Timeout      time.Duration

	Breaker circuit.BreakerConfig
}

func (c *LokiConfig) setDefaults() {
	if c.PushEndpoint == "" {
		c.PushEndpoint = "/loki/api/v1/push"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.Timeout <= 0 {
		c.Breaker.Timeout = 30 * time.Second
	}
}

// lokiPayload and lokiStream mirror Loki's push API body
// (internal/sinks/loki_sink.go's LokiPayload/LokiStream).
type lokiPayload struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// LokiWorker pushes one message per Insert as a single-entry Loki stream,
// labeled from the static config plus the message's source address.
// Collapsed from the teacher's batching async sink into a single-message
// synchronous delivery the same way pkg/sinks/kafka.go collapsed Kafka's:
// pkg/destdriver already owns batching cadence via its queue-pop loop.
type LokiWorker struct {
	cfg        LokiConfig
	logger     *logrus.Logger
	httpClient *http.Client
	compressor *compression.HTTPCompressor
	breaker    *circuit.Breaker
}

func NewLokiWorker(cfg LokiConfig, logger *logrus.Logger) (*LokiWorker, error) {
	cfg.setDefaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("sinks: loki worker requires a URL")
	}
	if cfg.Auth.Type != "" && cfg.Auth.Type != "basic" && cfg.Auth.Type != "bearer" {
		return nil, fmt.Errorf("sinks: loki worker: unknown auth type %q", cfg.Auth.Type)
	}
	cfg.Breaker.Name = "loki"
	return &LokiWorker{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		compressor: compression.NewHTTPCompressor(compression.Config{}, logger),
		breaker:    circuit.NewBreaker(cfg.Breaker, logger),
	}, nil
}

func (w *LokiWorker) Insert(msg *message.Message) bool {
	text, _ := msg.GetValue(message.KeyMessage)
	stream := map[string]string{}
	for k, v := range w.cfg.Labels {
		stream[k] = v
	}
	if msg.SourceAddr != "" {
		stream["source_addr"] = msg.SourceAddr
	}

	payload := lokiPayload{Streams: []lokiStream{{
		Stream: stream,
		Values: [][]string{{
			fmt.Sprintf("%d", msg.Stamp.Time().UnixNano()),
			text,
		}},
	}}}

	err := w.breaker.Execute(func() error { return w.send(payload) })
	if err != nil {
		if w.logger != nil {
			w.logger.WithError(err).Warn("sinks: loki: send failed")
		}
		return false
	}
	return true
}

func (w *LokiWorker) send(payload lokiPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	compressed, err := w.compressor.Compress(data, compression.AlgorithmAuto, "loki")
	if err != nil {
		return fmt.Errorf("compress payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL+w.cfg.PushEndpoint, bytes.NewReader(compressed.Data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", compressed.ContentType)
	if compressed.Encoding != "" {
		req.Header.Set("Content-Encoding", compressed.Encoding)
	}
	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}
	if w.cfg.TenantID != "" {
		req.Header.Set("X-Scope-OrgID", w.cfg.TenantID)
	}
	switch w.cfg.Auth.Type {
	case "basic":
		req.SetBasicAuth(w.cfg.Auth.Username, w.cfg.Auth.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+w.cfg.Auth.Token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("loki returned status %d", resp.StatusCode)
	}
	return nil
}

func (w *LokiWorker) Disconnect() {
	w.httpClient.CloseIdleConnections()
}

func (w *LokiWorker) ThreadDeinit() {
	w.Disconnect()
}
