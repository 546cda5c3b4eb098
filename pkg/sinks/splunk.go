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

// SplunkConfig configures SplunkWorker. Grounded on
// internal/sinks/splunk_sink.go's HEC token auth and event envelope.
type SplunkConfig struct {
	URL        string
	Token      string
	Index      string
	Source     string
	SourceType string
	Timeout    time.Duration

	Breaker circuit.BreakerConfig
}

func (c *SplunkConfig) setDefaults() {
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

// splunkEvent mirrors SplunkEvent in splunk_sink.go.
type splunkEvent struct {
	Time       float64     `json:"time"`
	Index      string      `json:"index,omitempty"`
	Source     string      `json:"source,omitempty"`
	SourceType string      `json:"sourcetype,omitempty"`
	Event      interface{} `json:"event"`
}

type splunkEventBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Tags    []string          `json:"tags,omitempty"`
}

// SplunkWorker delivers one message per Insert to Splunk's HTTP Event
// Collector, authenticating with the "Splunk <token>" header
// validateToken/sendBatch of splunk_sink.go uses.
type SplunkWorker struct {
	cfg        SplunkConfig
	logger     *logrus.Logger
	httpClient *http.Client
	compressor *compression.HTTPCompressor
	breaker    *circuit.Breaker
}

func NewSplunkWorker(cfg SplunkConfig, logger *logrus.Logger) (*SplunkWorker, error) {
	cfg.setDefaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("sinks: splunk worker requires a URL")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("sinks: splunk worker requires a HEC token")
	}
	cfg.Breaker.Name = "splunk"
	return &SplunkWorker{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		compressor: compression.NewHTTPCompressor(compression.Config{}, logger),
		breaker:    circuit.NewBreaker(cfg.Breaker, logger),
	}, nil
}

func (w *SplunkWorker) Insert(msg *message.Message) bool {
	text, _ := msg.GetValue(message.KeyMessage)

	ev := splunkEvent{
		Time:       float64(msg.Stamp.Time().UnixNano()) / 1e9,
		Index:      w.cfg.Index,
		Source:     w.cfg.Source,
		SourceType: w.cfg.SourceType,
		Event: splunkEventBody{
			Message: text,
			Fields:  msg.NV.Snapshot(),
			Tags:    msg.Tags.Names(),
		},
	}

	err := w.breaker.Execute(func() error { return w.send(ev) })
	if err != nil {
		if w.logger != nil {
			w.logger.WithError(err).Warn("sinks: splunk: send failed")
		}
		return false
	}
	return true
}

func (w *SplunkWorker) send(ev splunkEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	compressed, err := w.compressor.Compress(data, compression.AlgorithmAuto, "splunk")
	if err != nil {
		return fmt.Errorf("compress event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL+"/services/collector/event", bytes.NewReader(compressed.Data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", compressed.ContentType)
	if compressed.Encoding != "" {
		req.Header.Set("Content-Encoding", compressed.Encoding)
	}
	req.Header.Set("Authorization", "Splunk "+w.cfg.Token)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("splunk returned status %d", resp.StatusCode)
	}
	return nil
}

func (w *SplunkWorker) Disconnect() {
	w.httpClient.CloseIdleConnections()
}

func (w *SplunkWorker) ThreadDeinit() {
	w.Disconnect()
}
