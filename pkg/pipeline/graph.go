package pipeline

// forwardSetter and notifyUpSetter are satisfied by any node embedding
// base (every built-in node kind); Path.wire uses them to link a linear
// chain of nodes without each node needing to know about its neighbors
// at construction time.
type forwardSetter interface{ SetForward(Node) }
type notifyUpSetter interface{ SetNotifyUp(Node) }

// Path is a linear chain of nodes from a source to a destination. A
// branch introduced by FanOutNode is its own Path (or bare Node chain)
// wired separately and attached via FanOutNode.AddBranch; Path itself
// only models the single-line case.
type Path struct {
	nodes []Node
}

// NewPath wires nodes[i] to forward into nodes[i+1], and nodes[i+1] to
// notify-up into nodes[i], in declaration order (source first,
// destination last).
func NewPath(nodes ...Node) *Path {
	p := &Path{nodes: nodes}
	for i := 0; i < len(p.nodes)-1; i++ {
		if fs, ok := p.nodes[i].(forwardSetter); ok {
			fs.SetForward(p.nodes[i+1])
		}
		if ns, ok := p.nodes[i+1].(notifyUpSetter); ok {
			ns.SetNotifyUp(p.nodes[i])
		}
	}
	return p
}

// Nodes returns the path's nodes in source-to-destination order.
func (p *Path) Nodes() []Node { return p.nodes }

// InitAll initializes every node leaves-first — destination, then
// transforms, then source — so that by the time the source driver
// starts (and may immediately start calling Queue), everything
// downstream is already able to receive. cfg, if non-nil, supplies each
// node's NodeConfig; a nil cfg func inits every node with a zero
// NodeConfig. On failure, already-initialized nodes are unwound via
// Deinit before the error is returned.
func (p *Path) InitAll(cfg func(Node) NodeConfig) error {
	for i := len(p.nodes) - 1; i >= 0; i-- {
		n := p.nodes[i]
		var c NodeConfig
		if cfg != nil {
			c = cfg(n)
		}
		if err := n.Init(c); err != nil {
			for j := i + 1; j < len(p.nodes); j++ {
				p.nodes[j].Deinit()
			}
			return err
		}
	}
	return nil
}

// DeinitAll tears down every node source-first — the mirror image of
// InitAll — so the source stops producing before its downstream stages
// disappear out from under it. It continues past the first error and
// returns the first one encountered.
func (p *Path) DeinitAll() error {
	var firstErr error
	for _, n := range p.nodes {
		if err := n.Deinit(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// FreeAll releases every node's static resources. Call only after
// DeinitAll; a node removed from a live graph should never be Freed
// while still initialized.
func (p *Path) FreeAll() {
	for _, n := range p.nodes {
		n.Free()
	}
}
