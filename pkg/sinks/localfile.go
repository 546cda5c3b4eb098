// Package sinks adapts the teacher's terminal-delivery sinks
// (internal/sinks) into destdriver.Worker implementations: each Insert
// call delivers exactly one message, handed to it in queue-pop order by
// a pkg/destdriver.Driver.
package sinks

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"logroute/pkg/message"

	"github.com/sirupsen/logrus"
)

// LocalFileConfig configures LocalFileWorker. Defaults mirror the
// teacher's NewLocalFileSink ("json" output, size-triggered rotation).
type LocalFileConfig struct {
	Path         string
	Format       string // "json" or "text"
	MaxSizeBytes int64
	Compress     bool
}

func (c *LocalFileConfig) setDefaults() {
	if c.Format == "" {
		c.Format = "json"
	}
	if c.MaxSizeBytes <= 0 {
		c.MaxSizeBytes = 100 * 1024 * 1024
	}
}

// LocalFileWorker writes each delivered message as one line to a local
// file, rotating by size. Grounded on internal/sinks/local_file_sink.go's
// logFile/rotateFile/compressFile, collapsed from a multi-file,
// multi-worker fan-out sink into the single-file shape a single
// destdriver.Driver instance needs (one Worker per configured
// destination; multiple destinations just mean multiple drivers).
type LocalFileWorker struct {
	cfg    LocalFileConfig
	logger *logrus.Logger

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewLocalFileWorker validates cfg but does not open the file; ThreadInit
// does that on the driver's own goroutine.
func NewLocalFileWorker(cfg LocalFileConfig, logger *logrus.Logger) (*LocalFileWorker, error) {
	cfg.setDefaults()
	if cfg.Path == "" {
		return nil, fmt.Errorf("sinks: local file worker requires a path")
	}
	if cfg.Format != "json" && cfg.Format != "text" {
		return nil, fmt.Errorf("sinks: local file worker: unknown format %q", cfg.Format)
	}
	return &LocalFileWorker{cfg: cfg, logger: logger}, nil
}

func (w *LocalFileWorker) ThreadInit() error {
	return w.openLocked()
}

func (w *LocalFileWorker) openLocked() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(w.cfg.Path), 0o755); err != nil {
		return fmt.Errorf("sinks: create directory for %s: %w", w.cfg.Path, err)
	}
	f, err := os.OpenFile(w.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("sinks: open %s: %w", w.cfg.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("sinks: stat %s: %w", w.cfg.Path, err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

func (w *LocalFileWorker) Insert(msg *message.Message) bool {
	line, err := w.render(msg)
	if err != nil {
		if w.logger != nil {
			w.logger.WithError(err).Error("sinks: local file: failed to render message")
		}
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		if err := w.openLocked(); err != nil {
			if w.logger != nil {
				w.logger.WithError(err).Error("sinks: local file: reopen failed")
			}
			return false
		}
	}

	n, err := w.file.Write(line)
	if err != nil {
		if w.logger != nil {
			w.logger.WithError(err).Error("sinks: local file: write failed")
		}
		return false
	}
	w.size += int64(n)

	if w.size >= w.cfg.MaxSizeBytes {
		if err := w.rotateLocked(); err != nil && w.logger != nil {
			w.logger.WithError(err).Error("sinks: local file: rotate failed")
		}
	}
	return true
}

// rotateLocked closes the active file, renames it with a timestamp
// suffix (optionally gzip-compressing it), and reopens a fresh file at
// the configured path. Grounded on local_file_sink.go's rotateFile/
// compressFile pair.
func (w *LocalFileWorker) rotateLocked() error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	rotated := fmt.Sprintf("%s.%s", w.cfg.Path, time.Now().UTC().Format("20060102T150405.000000000"))
	if w.cfg.Compress {
		if err := compressFile(w.cfg.Path, rotated+".gz"); err != nil {
			return err
		}
		if err := os.Remove(w.cfg.Path); err != nil {
			return err
		}
	} else if err := os.Rename(w.cfg.Path, rotated); err != nil {
		return err
	}

	return w.openLocked()
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

func (w *LocalFileWorker) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}

func (w *LocalFileWorker) ThreadDeinit() {
	w.Disconnect()
}

type jsonRecord struct {
	Priority   int               `json:"priority"`
	Timestamp  string            `json:"timestamp"`
	Received   string            `json:"received"`
	SourceAddr string            `json:"source_addr,omitempty"`
	Fields     map[string]string `json:"fields"`
	Tags       []string          `json:"tags,omitempty"`
}

func (w *LocalFileWorker) render(msg *message.Message) ([]byte, error) {
	switch w.cfg.Format {
	case "text":
		return w.renderText(msg), nil
	default:
		return w.renderJSON(msg)
	}
}

func (w *LocalFileWorker) renderJSON(msg *message.Message) ([]byte, error) {
	rec := jsonRecord{
		Priority:   msg.Priority,
		Timestamp:  msg.Stamp.Time().Format(time.RFC3339Nano),
		Received:   msg.Recvd.Time().Format(time.RFC3339Nano),
		SourceAddr: msg.SourceAddr,
		Fields:     msg.NV.Snapshot(),
		Tags:       msg.Tags.Names(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (w *LocalFileWorker) renderText(msg *message.Message) []byte {
	text, _ := msg.GetValue(message.KeyMessage)
	line := fmt.Sprintf("%s %s\n", msg.Stamp.Time().Format(time.RFC3339), text)
	return []byte(line)
}
