package app

import (
	"fmt"
	"strings"
	"time"

	"logroute/internal/sources"
	"logroute/pkg/destdriver"
	"logroute/pkg/logproto"
	"logroute/pkg/logqueue"
	"logroute/pkg/message"
	"logroute/pkg/pipeline"
	"logroute/pkg/secrets"
	"logroute/pkg/security"
	"logroute/pkg/sinks"
	"logroute/pkg/stats"
	"logroute/pkg/syslogformat"
	"logroute/pkg/types"
)

// pathDriver pairs a built destdriver.Driver with the queue it pops
// from, so Stop can shut the driver down without walking the path's
// node list again.
type pathDriver struct {
	driver *destdriver.Driver
}

// registryCounters adapts a stats.Registry pair of counters to
// logqueue.Counters, the same (stored, dropped) coupling the teacher's
// dispatcher kept against its own metrics.
type registryCounters struct {
	stored  *stats.Counter
	dropped *stats.Counter
}

func (c *registryCounters) IncStored()  { c.stored.Inc() }
func (c *registryCounters) IncDropped() { c.dropped.Inc() }

func (a *App) newQueueCounters(component, id string) *registryCounters {
	return &registryCounters{
		stored:  a.registry.Register(stats.CounterKey{Component: component, ID: id, Type: stats.Stored}),
		dropped: a.registry.Register(stats.CounterKey{Component: component, ID: id, Type: stats.Dropped}),
	}
}

// counterSetter is implemented by every logqueue.Queue variant; it is
// not part of the Queue interface itself since a caller that never
// wants counters shouldn't have to provide a no-op.
type counterSetter interface {
	SetCounters(logqueue.Counters)
}

func (a *App) buildPaths() ([]*runningPath, error) {
	var out []*runningPath
	for _, pc := range a.config.PathGraph.Paths {
		rp, err := a.buildPath(pc)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", pc.Name, err)
		}
		out = append(out, rp)
	}
	return out, nil
}

func (a *App) buildPath(pc types.PathConfig) (*runningPath, error) {
	destNodes := make([]pipeline.Node, 0, len(pc.Destinations))
	var drivers []*pathDriver

	for _, destRef := range pc.Destinations {
		queue, err := a.buildQueue(pc.Queue, pc.Name)
		if err != nil {
			return nil, fmt.Errorf("destination %s/%s: %w", destRef.Kind, destRef.Ref, err)
		}
		counters := a.newQueueCounters(destRef.Kind, destRef.Ref)
		if cs, ok := queue.(counterSetter); ok {
			cs.SetCounters(counters)
		}

		worker, err := a.buildWorker(destRef)
		if err != nil {
			return nil, fmt.Errorf("destination %s/%s: %w", destRef.Kind, destRef.Ref, err)
		}
		if a.config.Tracing.Enabled {
			worker = destdriver.NewTracedWorker(worker, destRef.Kind+"/"+destRef.Ref, a.tracing.GetTracer())
		}

		driver, err := destdriver.New(destdriver.Config{
			Name:   destRef.Kind + "/" + destRef.Ref,
			Queue:  queue,
			Worker: worker,
			Logger: a.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("destination %s/%s: %w", destRef.Kind, destRef.Ref, err)
		}
		drivers = append(drivers, &pathDriver{driver: driver})
		destNodes = append(destNodes, pipeline.NewDestinationNode(queue))
	}

	var tail pipeline.Node
	switch len(destNodes) {
	case 0:
		return nil, fmt.Errorf("at least one destination is required")
	case 1:
		tail = destNodes[0]
	default:
		tail = pipeline.NewFanOutNode(destNodes...)
	}

	nodes := []pipeline.Node{}
	for i := len(pc.Rewrites) - 1; i >= 0; i-- {
		node, err := a.buildRewriteNode(pc.Rewrites[i])
		if err != nil {
			return nil, err
		}
		nodes = append([]pipeline.Node{node}, nodes...)
	}
	for i := len(pc.Filters) - 1; i >= 0; i-- {
		node, err := a.buildFilterNode(pc.Filters[i])
		if err != nil {
			return nil, err
		}
		nodes = append([]pipeline.Node{node}, nodes...)
	}
	if pc.Parser.Kind != "" {
		opts, err := a.parseOptionsFor(pc.Source)
		if err != nil {
			return nil, err
		}
		nodes = append([]pipeline.Node{pipeline.NewParserNode(opts)}, nodes...)
	}
	nodes = append(nodes, tail)

	source, err := a.buildSourceNode(pc.Source)
	if err != nil {
		return nil, fmt.Errorf("source %s/%s: %w", pc.Source.Kind, pc.Source.Ref, err)
	}
	nodes = append([]pipeline.Node{source}, nodes...)

	return &runningPath{name: pc.Name, path: pipeline.NewPath(nodes...), drivers: drivers}, nil
}

func (a *App) buildQueue(qc types.QueueClassConfig, pathName string) (logqueue.Queue, error) {
	capacity := qc.Capacity
	if capacity <= 0 {
		capacity = 1000
	}
	switch qc.Class {
	case "", "memory":
		discipline := logqueue.ParallelPush
		if qc.Discipline == "flow_control" {
			discipline = logqueue.FlowControl
		}
		return logqueue.NewMemQueue(capacity, discipline), nil
	case "disk":
		if qc.SpoolDirectory == "" {
			return nil, fmt.Errorf("disk queue requires a spool directory")
		}
		return logqueue.NewDiskQueue(logqueue.DiskQueueConfig{
			Directory:   qc.SpoolDirectory,
			MemCapacity: capacity,
		}, a.logger)
	case "external":
		connTimeout := parseDurationSafe(qc.ConnTimeout, 10*time.Second)
		password, err := a.resolveSecret(qc.Password)
		if err != nil {
			return nil, err
		}
		backlogDir := qc.Backlog
		if backlogDir == "" {
			backlogDir = fmt.Sprintf("/var/lib/logroute/backlog/%s", pathName)
		}
		return logqueue.NewExternalQueue(logqueue.ExternalQueueConfig{
			Brokers:       qc.Brokers,
			Topic:         qc.Topic,
			ConnTimeout:   connTimeout,
			Username:      qc.Username,
			Password:      password,
			SASLMechanism: qc.SASLMechanism,
			Backlog: logqueue.DiskQueueConfig{
				Directory:   backlogDir,
				MemCapacity: capacity,
			},
		}, a.logger)
	default:
		return nil, fmt.Errorf("unknown queue class %q", qc.Class)
	}
}

func (a *App) resolveSecret(value string) (string, error) {
	if value == "" || a.secrets == nil || !secrets.IsReference(value) {
		return value, nil
	}
	return a.secrets.Resolve(value)
}

func (a *App) buildWorker(destRef types.PathNodeConfig) (destdriver.Worker, error) {
	switch destRef.Kind {
	case "kafka":
		cfg, ok := a.config.Sinks.Kafka[destRef.Ref]
		if !ok {
			return nil, fmt.Errorf("no kafka sink named %q configured", destRef.Ref)
		}
		password, err := a.resolveSecret(cfg.Password)
		if err != nil {
			return nil, err
		}
		return sinks.NewKafkaWorker(sinks.KafkaConfig{
			Brokers:       cfg.Brokers,
			Topic:         cfg.Topic,
			Compression:   cfg.Compression,
			ConnTimeout:   parseDurationSafe(cfg.ConnTimeout, 10*time.Second),
			Username:      cfg.Username,
			Password:      password,
			SASLMechanism: cfg.SASLMechanism,
		}, a.logger)
	case "local_file":
		cfg, ok := a.config.Sinks.LocalFile[destRef.Ref]
		if !ok {
			return nil, fmt.Errorf("no local_file sink named %q configured", destRef.Ref)
		}
		return sinks.NewLocalFileWorker(sinks.LocalFileConfig{
			Path:         cfg.Path,
			Format:       cfg.Format,
			MaxSizeBytes: cfg.MaxSizeBytes,
			Compress:     cfg.Compress,
		}, a.logger)
	case "loki":
		cfg, ok := a.config.Sinks.Loki[destRef.Ref]
		if !ok {
			return nil, fmt.Errorf("no loki sink named %q configured", destRef.Ref)
		}
		password, err := a.resolveSecret(cfg.Password)
		if err != nil {
			return nil, err
		}
		token, err := a.resolveSecret(cfg.Token)
		if err != nil {
			return nil, err
		}
		return sinks.NewLokiWorker(sinks.LokiConfig{
			URL:          cfg.URL,
			PushEndpoint: cfg.PushEndpoint,
			TenantID:     cfg.TenantID,
			Labels:       cfg.Labels,
			Headers:      cfg.Headers,
			Auth: sinks.LokiAuthConfig{
				Type:     cfg.AuthType,
				Username: cfg.Username,
				Password: password,
				Token:    token,
			},
			Timeout: parseDurationSafe(cfg.Timeout, 10*time.Second),
		}, a.logger)
	case "elasticsearch":
		cfg, ok := a.config.Sinks.Elasticsearch[destRef.Ref]
		if !ok {
			return nil, fmt.Errorf("no elasticsearch sink named %q configured", destRef.Ref)
		}
		password, err := a.resolveSecret(cfg.Password)
		if err != nil {
			return nil, err
		}
		apiKey, err := a.resolveSecret(cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return sinks.NewElasticsearchWorker(sinks.ElasticsearchConfig{
			URLs:         cfg.URLs,
			IndexPattern: cfg.IndexPattern,
			Username:     cfg.Username,
			Password:     password,
			APIKey:       apiKey,
			Timeout:      parseDurationSafe(cfg.Timeout, 10*time.Second),
		}, a.logger)
	case "splunk":
		cfg, ok := a.config.Sinks.Splunk[destRef.Ref]
		if !ok {
			return nil, fmt.Errorf("no splunk sink named %q configured", destRef.Ref)
		}
		token, err := a.resolveSecret(cfg.Token)
		if err != nil {
			return nil, err
		}
		return sinks.NewSplunkWorker(sinks.SplunkConfig{
			URL:        cfg.URL,
			Token:      token,
			Index:      cfg.Index,
			Source:     cfg.Source,
			SourceType: cfg.SourceType,
			Timeout:    parseDurationSafe(cfg.Timeout, 10*time.Second),
		}, a.logger)
	default:
		return nil, fmt.Errorf("unknown destination kind %q", destRef.Kind)
	}
}

func (a *App) buildSourceNode(srcRef types.PathNodeConfig) (*pipeline.SourceNode, error) {
	switch srcRef.Kind {
	case "file":
		cfg, ok := a.config.Sources.File[srcRef.Ref]
		if !ok {
			return nil, fmt.Errorf("no file source named %q configured", srcRef.Ref)
		}
		var node *pipeline.SourceNode
		var resume []byte
		if a.positions != nil && cfg.Resume {
			resume = a.positions.Resume(cfg.Path)
		}
		driver, err := sources.NewFileDriver(sources.FileDriverConfig{
			Path:            cfg.Path,
			SeekStrategy:    cfg.SeekStrategy,
			SeekRecentBytes: cfg.SeekRecentBytes,
			PollInterval:    parseDurationSafe(cfg.PollInterval, 250*time.Millisecond),
			NewFramer:       framerFor(cfg.Framer),
			Resume:          resume,
			ParseOptions:    cfg.Parse,
			SourceAddr:      cfg.SourceAddr,
			Logger:          a.logger,
		}, func(msg *message.Message, opts *pipeline.PathOptions) {
			node.Queue(msg, opts)
		})
		if err != nil {
			return nil, err
		}
		node = pipeline.NewSourceNode(driver)
		node.OnNotify = func(code pipeline.NotifyCode) { driver.HandleNotify(code) }
		if a.positions != nil && cfg.Resume {
			a.reactor.ArmTimer(10*time.Second, func() {
				a.positions.Save(cfg.Path, driver.SaveState())
			})
		}
		return node, nil
	case "datagram":
		cfg, ok := a.config.Sources.Datagram[srcRef.Ref]
		if !ok {
			return nil, fmt.Errorf("no datagram source named %q configured", srcRef.Ref)
		}
		var node *pipeline.SourceNode
		driver := sources.NewDatagramDriver(sources.DatagramDriverConfig{
			Network:         cfg.Network,
			Address:         cfg.Address,
			MaxDatagramSize: cfg.MaxDatagramSize,
			ParseOptions:    cfg.Parse,
			Logger:          a.logger,
		}, func(msg *message.Message, opts *pipeline.PathOptions) {
			node.Queue(msg, opts)
		})
		node = pipeline.NewSourceNode(driver)
		return node, nil
	case "docker":
		cfg, ok := a.config.Sources.Docker[srcRef.Ref]
		if !ok {
			return nil, fmt.Errorf("no docker source named %q configured", srcRef.Ref)
		}
		var node *pipeline.SourceNode
		var since time.Time
		positionKey := "docker:" + cfg.ContainerName
		if a.positions != nil {
			if state := a.positions.Resume(positionKey); len(state) > 0 {
				if ts, err := time.Parse(time.RFC3339Nano, string(state)); err == nil {
					since = ts
				}
			}
		}
		driver := sources.NewDockerDriver(sources.DockerDriverConfig{
			SocketPath:    cfg.SocketPath,
			ContainerName: cfg.ContainerName,
			Since:         since,
			ParseOptions:  cfg.Parse,
			SourceAddr:    cfg.SourceAddr,
			Logger:        a.logger,
		}, func(msg *message.Message, opts *pipeline.PathOptions) {
			node.Queue(msg, opts)
		})
		node = pipeline.NewSourceNode(driver)
		if a.positions != nil {
			a.reactor.ArmTimer(10*time.Second, func() {
				a.positions.Save(positionKey, driver.SaveState())
			})
		}
		return node, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", srcRef.Kind)
	}
}

func (a *App) parseOptionsFor(srcRef types.PathNodeConfig) (syslogformat.Options, error) {
	switch srcRef.Kind {
	case "file":
		cfg, ok := a.config.Sources.File[srcRef.Ref]
		if !ok {
			return syslogformat.Options{}, fmt.Errorf("no file source named %q configured", srcRef.Ref)
		}
		return cfg.Parse, nil
	case "datagram":
		cfg, ok := a.config.Sources.Datagram[srcRef.Ref]
		if !ok {
			return syslogformat.Options{}, fmt.Errorf("no datagram source named %q configured", srcRef.Ref)
		}
		return cfg.Parse, nil
	case "docker":
		cfg, ok := a.config.Sources.Docker[srcRef.Ref]
		if !ok {
			return syslogformat.Options{}, fmt.Errorf("no docker source named %q configured", srcRef.Ref)
		}
		return cfg.Parse, nil
	default:
		return syslogformat.Options{}, fmt.Errorf("unknown source kind %q", srcRef.Kind)
	}
}

func framerFor(kind string) func() logproto.Framer {
	switch kind {
	case "", "text":
		return func() logproto.Framer { return logproto.NewTextFramer() }
	case "indented_multiline":
		return func() logproto.Framer { return logproto.NewIndentedMultilineFramer() }
	case "linux_proc_kmsg":
		return func() logproto.Framer { return logproto.NewLinuxProcKmsgFramer() }
	case "dev_kmsg":
		return func() logproto.Framer { return logproto.NewDevKmsgFramer() }
	default:
		return func() logproto.Framer { return logproto.NewTextFramer() }
	}
}

// buildFilterNode supports the small set of predicates the configs in
// practice need: matching or excluding messages by PROGRAM value. A
// filter whose Kind isn't recognized passes every message through
// unchanged rather than failing path construction, since filters are an
// additive refinement, not a required stage.
func (a *App) buildFilterNode(fc types.PathNodeConfig) (*pipeline.FilterNode, error) {
	program, _ := fc.Settings["program"].(string)
	switch fc.Kind {
	case "program_equals":
		return pipeline.NewFilterNode(func(msg *message.Message) bool {
			v, _ := msg.GetValue(message.KeyProgram)
			return v == program
		}), nil
	case "program_contains":
		return pipeline.NewFilterNode(func(msg *message.Message) bool {
			v, _ := msg.GetValue(message.KeyProgram)
			return strings.Contains(v, program)
		}), nil
	default:
		return pipeline.NewFilterNode(func(*message.Message) bool { return true }), nil
	}
}

// buildRewriteNode wires pkg/security.Sanitizer into a redaction stage:
// a "redact" rewrite runs every message's MESSAGE field through the
// sanitizer's built-in secret/PII patterns before it reaches a
// destination, the same opt-in scrubbing point the teacher's security
// manager applied at the HTTP ingestion handler rather than in the pipe
// graph.
func (a *App) buildRewriteNode(rc types.PathNodeConfig) (*pipeline.RewriteNode, error) {
	switch rc.Kind {
	case "redact":
		sanitizer := security.NewSanitizer(a.config.Security.Sanitizer)
		return pipeline.NewRewriteNode(func(msg *message.Message) {
			v, _ := msg.GetValue(message.KeyMessage)
			msg.SetValue(message.KeyMessage, []byte(sanitizer.Sanitize(v)))
		}), nil
	case "add_tag":
		tag, _ := rc.Settings["tag"].(string)
		return pipeline.NewRewriteNode(func(msg *message.Message) {
			if tag != "" {
				msg.AddTag(tag)
			}
		}), nil
	default:
		return pipeline.NewRewriteNode(func(*message.Message) {}), nil
	}
}

func parseDurationSafe(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return fallback
}
