package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"logroute/pkg/circuit"
	"logroute/pkg/compression"
	"logroute/pkg/message"

	"github.com/sirupsen/logrus"
)

// ElasticsearchConfig configures ElasticsearchWorker. IndexPattern follows
// internal/sinks/elasticsearch_sink.go's {date}/{year}/{month}/{day}/{hour}
// placeholder substitution in generateIndexName.
//
// The teacher's elasticsearch_sink.go imports github.com/elastic/go-
// elasticsearch/v8, but that module was never added to its go.mod — the
// import was dead code in the teacher that would not have compiled.
// ElasticsearchWorker keeps the teacher's bulk-request shape (NDJSON
// action/document pairs against the _bulk endpoint) over plain net/http
// instead of reintroducing an unresolvable client dependency.
type ElasticsearchConfig struct {
	URLs        []string
	IndexPattern string
	Username    string
	Password    string
	APIKey      string
	Timeout     time.Duration

	Breaker circuit.BreakerConfig
}

func (c *ElasticsearchConfig) setDefaults() {
	if c.IndexPattern == "" {
		c.IndexPattern = "logroute-{date}"
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

// esDocument mirrors ElasticsearchDocument in elasticsearch_sink.go,
// trimmed to the fields message.Message actually carries.
type esDocument struct {
	Timestamp time.Time         `json:"@timestamp"`
	Message   string            `json:"message"`
	Host      string            `json:"host,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
}

// ElasticsearchWorker delivers one message per Insert as a single-document
// bulk request. A future batching improvement could coalesce several
// pending queue pops into one _bulk call, but pkg/destdriver pops one
// message per doWork cycle today.
type ElasticsearchWorker struct {
	cfg        ElasticsearchConfig
	logger     *logrus.Logger
	httpClient *http.Client
	compressor *compression.HTTPCompressor
	breaker    *circuit.Breaker
	urlIndex   int
}

func NewElasticsearchWorker(cfg ElasticsearchConfig, logger *logrus.Logger) (*ElasticsearchWorker, error) {
	cfg.setDefaults()
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("sinks: elasticsearch worker requires at least one URL")
	}
	cfg.Breaker.Name = "elasticsearch"
	return &ElasticsearchWorker{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		compressor: compression.NewHTTPCompressor(compression.Config{}, logger),
		breaker:    circuit.NewBreaker(cfg.Breaker, logger),
	}, nil
}

func (w *ElasticsearchWorker) Insert(msg *message.Message) bool {
	text, _ := msg.GetValue(message.KeyMessage)
	host, _ := msg.GetValue(message.KeyHost)

	doc := esDocument{
		Timestamp: msg.Stamp.Time(),
		Message:   text,
		Host:      host,
		Fields:    msg.NV.Snapshot(),
		Tags:      msg.Tags.Names(),
	}

	err := w.breaker.Execute(func() error { return w.sendBulk(doc) })
	if err != nil {
		if w.logger != nil {
			w.logger.WithError(err).Warn("sinks: elasticsearch: bulk request failed")
		}
		return false
	}
	return true
}

func (w *ElasticsearchWorker) sendBulk(doc esDocument) error {
	index := w.generateIndexName(doc.Timestamp)

	action := map[string]interface{}{
		"index": map[string]interface{}{"_index": index},
	}
	actionJSON, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(actionJSON)
	buf.WriteByte('\n')
	buf.Write(docJSON)
	buf.WriteByte('\n')

	compressed, err := w.compressor.Compress(buf.Bytes(), compression.AlgorithmAuto, "elasticsearch")
	if err != nil {
		return fmt.Errorf("compress bulk body: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
	defer cancel()

	url := w.nextURL() + "/_bulk"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(compressed.Data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if compressed.Encoding != "" {
		req.Header.Set("Content-Encoding", compressed.Encoding)
	}
	switch {
	case w.cfg.APIKey != "":
		req.Header.Set("Authorization", "ApiKey "+w.cfg.APIKey)
	case w.cfg.Username != "":
		req.SetBasicAuth(w.cfg.Username, w.cfg.Password)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("elasticsearch returned status %d", resp.StatusCode)
	}
	return nil
}

// nextURL round-robins across the configured cluster URLs.
func (w *ElasticsearchWorker) nextURL() string {
	url := w.cfg.URLs[w.urlIndex%len(w.cfg.URLs)]
	w.urlIndex++
	return url
}

func (w *ElasticsearchWorker) generateIndexName(ts time.Time) string {
	pattern := w.cfg.IndexPattern
	pattern = strings.ReplaceAll(pattern, "{date}", ts.Format("2006.01.02"))
	pattern = strings.ReplaceAll(pattern, "{year}", ts.Format("2006"))
	pattern = strings.ReplaceAll(pattern, "{month}", ts.Format("01"))
	pattern = strings.ReplaceAll(pattern, "{day}", ts.Format("02"))
	pattern = strings.ReplaceAll(pattern, "{hour}", ts.Format("15"))
	return pattern
}

func (w *ElasticsearchWorker) Disconnect() {
	w.httpClient.CloseIdleConnections()
}

func (w *ElasticsearchWorker) ThreadDeinit() {
	w.Disconnect()
}
