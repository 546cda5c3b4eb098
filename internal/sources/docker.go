package sources

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sirupsen/logrus"

	"logroute/internal/docker"
	"logroute/pkg/message"
	"logroute/pkg/pipeline"
	"logroute/pkg/syslogformat"
)

// DockerDriverConfig configures a DockerDriver.
type DockerDriverConfig struct {
	// SocketPath is passed to internal/docker.HTTPDockerClient, e.g.
	// "unix:///var/run/docker.sock".
	SocketPath string

	// ContainerName selects the container to tail by name. NameFilter is
	// used verbatim as a Docker "name" list filter, so a bare name
	// matches the container whose name contains it, same as `docker ps
	// --filter name=...`.
	ContainerName string

	// Since resumes the log stream from this point; zero value streams
	// from container start.
	Since time.Time

	ParseOptions syslogformat.Options
	SourceAddr   string

	Logger *logrus.Logger
}

// DockerDriver tails a single container's combined stdout/stderr log
// stream, generalizing internal/docker/http_client.go's pooled
// HTTPDockerClient (previously only exercised by the teacher's
// discovery/connection-pool machinery) into a pkg/pipeline.Driver: one
// container, one ContainerLogs follow stream, demuxed with
// github.com/docker/docker/pkg/stdcopy and split into lines, each
// line parsed the same way FileDriver parses a text frame.
type DockerDriver struct {
	cfg    DockerDriverConfig
	emit   func(*message.Message, *pipeline.PathOptions)
	logger *logrus.Logger

	client *docker.HTTPDockerClient

	mu          sync.Mutex
	lastLogTime time.Time

	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewDockerDriver returns a driver that calls emit for each log line the
// named container produces.
func NewDockerDriver(cfg DockerDriverConfig, emit func(*message.Message, *pipeline.PathOptions)) *DockerDriver {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &DockerDriver{
		cfg:         cfg,
		emit:        emit,
		logger:      logger,
		lastLogTime: cfg.Since,
	}
}

func (d *DockerDriver) resolveContainerID(ctx context.Context) (string, error) {
	f := filters.NewArgs(filters.Arg("name", d.cfg.ContainerName))
	containers, err := d.client.Client().ContainerList(ctx, types.ContainerListOptions{Filters: f})
	if err != nil {
		return "", fmt.Errorf("listing containers matching %q: %w", d.cfg.ContainerName, err)
	}
	if len(containers) == 0 {
		return "", fmt.Errorf("no container matching name %q", d.cfg.ContainerName)
	}
	return containers[0].ID, nil
}

// Start connects to the Docker daemon, resolves the configured
// container, and begins following its log stream in a background
// goroutine.
func (d *DockerDriver) Start() error {
	socketPath := d.cfg.SocketPath
	if socketPath == "" {
		socketPath = "unix:///var/run/docker.sock"
	}
	clientCfg := docker.DefaultHTTPClientConfig()
	clientCfg.SocketPath = socketPath
	c, err := docker.NewHTTPDockerClient(clientCfg, d.logger)
	if err != nil {
		return fmt.Errorf("docker source %q: %w", d.cfg.ContainerName, err)
	}
	d.client = c

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.doneCh = make(chan struct{})

	containerID, err := d.resolveContainerID(ctx)
	if err != nil {
		cancel()
		return err
	}

	since := ""
	if !d.lastLogTime.IsZero() {
		since = d.lastLogTime.Format(time.RFC3339Nano)
	}
	stream, err := d.client.Client().ContainerLogs(ctx, containerID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Since:      since,
		Timestamps: true,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("docker source %q: opening log stream: %w", d.cfg.ContainerName, err)
	}

	go d.run(stream)
	return nil
}

// run demultiplexes the stdout/stderr-combined stream through
// stdcopy.StdCopy into a single pipe, then scans it line by line so
// each line becomes one Message, the same one-frame-per-line discipline
// FileDriver applies to a text-framed file.
func (d *DockerDriver) run(stream io.ReadCloser) {
	defer close(d.doneCh)
	defer stream.Close()

	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, stream)
		pw.CloseWithError(err)
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		d.handleLine(scanner.Bytes())
	}
}

func (d *DockerDriver) handleLine(raw []byte) {
	recvTime := time.Now()
	logTime := recvTime
	// Timestamps: true prefixes every line with an RFC3339Nano stamp
	// followed by a space; split it off before parsing the payload.
	line := raw
	if idx := indexByte(raw, ' '); idx > 0 {
		if ts, err := time.Parse(time.RFC3339Nano, string(raw[:idx])); err == nil {
			logTime = ts
			line = raw[idx+1:]
		}
	}

	msg := syslogformat.Parse(line, d.cfg.ParseOptions, recvTime)
	msg.SetValue(message.KeyProgram, []byte(d.cfg.ContainerName))
	msg.AddTag("docker")
	if d.cfg.SourceAddr != "" {
		msg.SourceAddr = d.cfg.SourceAddr
	}

	d.mu.Lock()
	d.lastLogTime = logTime
	d.mu.Unlock()

	d.emit(msg, &pipeline.PathOptions{})
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Stop cancels the log stream context and waits for the read goroutine
// to exit.
func (d *DockerDriver) Stop() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.doneCh != nil {
		<-d.doneCh
	}
	return nil
}

// SaveState returns the timestamp of the last line read, encoded as
// RFC3339Nano, for pkg/positions to persist and later feed back as
// DockerDriverConfig.Since.
func (d *DockerDriver) SaveState() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastLogTime.IsZero() {
		return nil
	}
	return []byte(d.lastLogTime.Format(time.RFC3339Nano))
}
