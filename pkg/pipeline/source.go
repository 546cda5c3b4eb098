package pipeline

import "logroute/pkg/message"

// Driver is the minimal lifecycle contract a concrete source driver
// (file tail, UDP listener, container log reader — internal/sources)
// must satisfy to sit behind a SourceNode.
type Driver interface {
	Start() error
	Stop() error
}

// SourceNode is the head of a path. It owns no framing or parsing logic
// itself (that lives in internal/sources and pkg/logproto/
// pkg/syslogformat); it only starts/stops the driver and forwards
// whatever messages the driver hands it via Queue, and routes Notify
// calls the rest of the path raises back to the driver.
type SourceNode struct {
	base

	Driver   Driver
	OnNotify func(NotifyCode)
}

func NewSourceNode(driver Driver) *SourceNode {
	return &SourceNode{Driver: driver}
}

func (s *SourceNode) Init(cfg NodeConfig) error {
	if err := s.markInit(); err != nil {
		return err
	}
	if s.Driver != nil {
		return s.Driver.Start()
	}
	return nil
}

func (s *SourceNode) Deinit() error {
	if err := s.markDeinit(); err != nil {
		return err
	}
	if s.Driver != nil {
		return s.Driver.Stop()
	}
	return nil
}

// Queue is called by the driver itself (not by an upstream node) once
// it has produced a Message; it simply forwards down the path.
func (s *SourceNode) Queue(msg *message.Message, opts *PathOptions) {
	s.forwardQueue(msg, opts)
}

func (s *SourceNode) Notify(code NotifyCode) {
	if s.OnNotify != nil {
		s.OnNotify(code)
	}
}

func (s *SourceNode) Free() {}
