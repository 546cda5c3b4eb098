// Package stats implements the reference-counted counter registry
// (component, id, instance, type) that every source/destination driver
// and queue registers its dropped/processed/stored/suppressed/stamp
// counters against, and that the control interface renders as CSV or a
// single log line.
package stats

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// CounterType is one of the five tracked counter kinds.
type CounterType int

const (
	Dropped CounterType = iota
	Processed
	Stored
	Suppressed
	Stamp
)

func (t CounterType) String() string {
	switch t {
	case Dropped:
		return "dropped"
	case Processed:
		return "processed"
	case Stored:
		return "stored"
	case Suppressed:
		return "suppressed"
	case Stamp:
		return "stamp"
	default:
		return "unknown"
	}
}

// CounterKey identifies a single counter within a cluster of counters
// that share the same (component, id, instance).
type CounterKey struct {
	Component string
	ID        string
	Instance  string
	Type      CounterType
}

type clusterKey struct {
	Component string
	ID        string
	Instance  string
}

// Counter is a single named counter. A counter registered via
// RegisterExternal is read-only through this API: Inc/Add/Set are
// no-ops, and Get reads the caller-owned atomic int64 directly.
type Counter struct {
	value    int64
	external bool
	ref      *int64
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(n int64) {
	if c.external {
		return
	}
	atomic.AddInt64(&c.value, n)
}

func (c *Counter) Set(v int64) {
	if c.external {
		return
	}
	atomic.StoreInt64(&c.value, v)
}

func (c *Counter) Get() int64 {
	if c.external {
		return atomic.LoadInt64(c.ref)
	}
	return atomic.LoadInt64(&c.value)
}

// cluster groups every CounterType registered under one
// (component, id, instance), mirroring the original StatsCluster: a
// single reference count and dynamic flag shared across all its
// counters, plus a live mask recording which types were ever
// registered.
type cluster struct {
	component string
	id        string
	instance  string
	counters  map[CounterType]*Counter
	live      map[CounterType]bool
	dynamic   bool
	refCount  int32
}

func (c *cluster) state() string {
	switch {
	case c.dynamic:
		return "d"
	case c.refCount > 0:
		return "a"
	default:
		return "o"
	}
}

// Registry is the process-wide counter table. All mutating operations
// run under a single lock (spec.md §5's "registry: guarded by a single
// registry lock"); Lock/Unlock are exposed so a caller registering many
// counters in one pass can batch them under one acquisition, mirroring
// the original stats_lock/stats_unlock pairing.
type Registry struct {
	mu       sync.Mutex
	clusters map[clusterKey]*cluster
	gauge    *prometheus.GaugeVec
}

// NewRegistry returns an empty registry with its own Prometheus mirror
// gauge (ambient observability, carried forward per the teacher's
// internal/metrics package; call SyncPrometheus periodically to push
// current counter values into it).
func NewRegistry() *Registry {
	return &Registry{
		clusters: make(map[clusterKey]*cluster),
		gauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "log_capturer_stats_counter",
			Help: "Mirrored value of a stats registry counter.",
		}, []string{"component", "id", "instance", "type"}),
	}
}

// Collector exposes the Prometheus mirror for registration with a
// metrics server's registerer.
func (r *Registry) Collector() prometheus.Collector { return r.gauge }

// Lock/Unlock let a caller batch several Register/Unregister calls
// under one critical section.
func (r *Registry) Lock()   { r.mu.Lock() }
func (r *Registry) Unlock() { r.mu.Unlock() }

func (r *Registry) clusterKeyOf(key CounterKey) clusterKey {
	return clusterKey{Component: key.Component, ID: key.ID, Instance: key.Instance}
}

func (r *Registry) getOrCreateCluster(key CounterKey) *cluster {
	ck := r.clusterKeyOf(key)
	c, ok := r.clusters[ck]
	if !ok {
		c = &cluster{
			component: key.Component,
			id:        key.ID,
			instance:  key.Instance,
			counters:  make(map[CounterType]*Counter),
			live:      make(map[CounterType]bool),
		}
		r.clusters[ck] = c
	}
	return c
}

func (c *cluster) counterFor(t CounterType) *Counter {
	counter, ok := c.counters[t]
	if !ok {
		counter = &Counter{}
		c.counters[t] = counter
	}
	return counter
}

// Register returns the counter for key, creating its cluster if
// necessary and incrementing the cluster's reference count. Multiple
// callers registering the same key share the same underlying counter.
func (r *Registry) Register(key CounterKey) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.getOrCreateCluster(key)
	c.refCount++
	c.live[key.Type] = true
	return c.counterFor(key.Type)
}

// RegisterDynamic is like Register but marks the cluster dynamic: it
// survives CleanupOrphans regardless of reference count (spec.md §4.7 /
// I-dynamic). The second return reports whether the cluster was
// previously unreferenced (freshly created, or resurrected from an
// orphaned entry).
func (r *Registry) RegisterDynamic(key CounterKey) (*Counter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ck := r.clusterKeyOf(key)
	existing, found := r.clusters[ck]
	isNew := !found || existing.refCount == 0

	c := r.getOrCreateCluster(key)
	c.dynamic = true
	c.refCount++
	c.live[key.Type] = true
	return c.counterFor(key.Type), isNew
}

// RegisterExternal wires a counter whose value lives in a caller-owned
// atomic int64 (e.g. a counter another subsystem already maintains).
// Writes through the returned Counter are no-ops; only Get reflects the
// live value.
func (r *Registry) RegisterExternal(key CounterKey, ref *int64) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.getOrCreateCluster(key)
	c.refCount++
	c.live[key.Type] = true
	counter := &Counter{external: true, ref: ref}
	c.counters[key.Type] = counter
	return counter
}

// Unregister decrements the reference count of key's cluster. For a
// non-dynamic cluster it also clears key.Type's live-mask bit (the
// resolved live-mask Open Question: this registry clears on unregister
// rather than leaving a stale live entry visible through a
// fully-dereferenced cluster). Dynamic clusters keep their live-mask
// bits across Unregister, since a dynamic counter is typically
// registered and unregistered around every single increment
// (mirroring stats_instant_inc_dynamic_counter) — clearing live there
// would make it invisible between increments. At zero references the
// cluster itself is not removed — it persists orphaned until
// CleanupOrphans, and its counter values are untouched, so a counter
// re-registered under the same key before the next cleanup resumes its
// prior value (I-7's "restart of the same name sees prior value").
func (r *Registry) Unregister(key CounterKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ck := r.clusterKeyOf(key)
	c, ok := r.clusters[ck]
	if !ok {
		return
	}
	if c.refCount > 0 {
		c.refCount--
	}
	if !c.dynamic {
		delete(c.live, key.Type)
	}
}

// CleanupOrphans removes every cluster with zero references that is
// not dynamic.
func (r *Registry) CleanupOrphans() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ck, c := range r.clusters {
		if c.refCount == 0 && !c.dynamic {
			delete(r.clusters, ck)
			for t := range c.live {
				r.gauge.DeleteLabelValues(c.component, c.id, c.instance, t.String())
			}
		}
	}
}

// Foreach invokes fn once per live (key, counter) pair. fn must not
// call back into the registry.
func (r *Registry) Foreach(fn func(CounterKey, *Counter)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ck, c := range r.clusters {
		for t := range c.live {
			fn(CounterKey{Component: ck.Component, ID: ck.ID, Instance: ck.Instance, Type: t}, c.counters[t])
		}
	}
}

// SyncPrometheus pushes every counter's current value into the
// registry's Prometheus mirror. Intended to be called periodically
// rather than on every increment, keeping the hot counter path free of
// label-lookup overhead.
func (r *Registry) SyncPrometheus() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ck, c := range r.clusters {
		for t := range c.live {
			counter := c.counters[t]
			if counter == nil {
				continue
			}
			r.gauge.WithLabelValues(ck.Component, ck.ID, ck.Instance, t.String()).Set(float64(counter.Get()))
		}
	}
}

type csvRow struct {
	component, id, instance, state, typ string
	value                                int64
}

// FormatCSV writes the semicolon-delimited counter dump specified by
// spec.md §6: a single header row, then one row per live counter,
// sorted for reproducible output.
func (r *Registry) FormatCSV(w io.Writer) error {
	r.mu.Lock()
	rows := r.snapshotRows()
	r.mu.Unlock()

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("SourceName;SourceId;SourceInstance;State;Type;Number\n"); err != nil {
		return err
	}
	for _, row := range rows {
		line := fmt.Sprintf("%s;%s;%s;%s;%s;%d\n",
			escapeCSVField(row.component), escapeCSVField(row.id), escapeCSVField(row.instance),
			row.state, row.typ, row.value)
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (r *Registry) snapshotRows() []csvRow {
	rows := make([]csvRow, 0, len(r.clusters))
	for ck, c := range r.clusters {
		for t := range c.live {
			rows = append(rows, csvRow{
				component: ck.Component,
				id:        ck.ID,
				instance:  ck.Instance,
				state:     c.state(),
				typ:       t.String(),
				value:     c.counters[t].Get(),
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].component != rows[j].component {
			return rows[i].component < rows[j].component
		}
		if rows[i].id != rows[j].id {
			return rows[i].id < rows[j].id
		}
		if rows[i].instance != rows[j].instance {
			return rows[i].instance < rows[j].instance
		}
		return rows[i].typ < rows[j].typ
	})
	return rows
}

func hasCSVSpecialChar(s string) bool {
	for _, r := range s {
		if r == ';' || r == '\n' {
			return true
		}
	}
	return len(s) > 0 && s[0] == '"'
}

func escapeCSVField(s string) string {
	if !hasCSVSpecialChar(s) {
		return s
	}
	escaped := make([]byte, 0, len(s)+2)
	escaped = append(escaped, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			escaped = append(escaped, '\\', '"')
		} else {
			escaped = append(escaped, s[i])
		}
	}
	escaped = append(escaped, '"')
	return string(escaped)
}

// FormatLogLine writes a single "Log statistics" line with every live
// counter appended as "; type='component(id,instance)=value'",
// mirroring stats_generate_log's single-event summary.
func (r *Registry) FormatLogLine(w io.Writer) error {
	r.mu.Lock()
	rows := r.snapshotRows()
	r.mu.Unlock()

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("Log statistics"); err != nil {
		return err
	}
	for _, row := range rows {
		sep := ""
		if row.id != "" && row.instance != "" {
			sep = ","
		}
		line := fmt.Sprintf("; %s='%s(%s%s%s)=%d'", row.typ, row.component, row.id, sep, row.instance, row.value)
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\n"); err != nil {
		return err
	}
	return bw.Flush()
}
