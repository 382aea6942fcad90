// Package metrics is a small dependency-free collector exposing ingestion
// counters in Prometheus text format.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates named counters and gauges.
type Collector struct {
	mu       sync.Mutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	start    time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		start:    time.Now(),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// Set sets the gauge.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Counter returns or creates the named counter.
func (c *Collector) Counter(name, help string) *Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok := c.counters[name]; ok {
		return ctr
	}
	ctr := &Counter{name: name, help: help}
	c.counters[name] = ctr
	return ctr
}

// Gauge returns or creates the named gauge.
func (c *Collector) Gauge(name, help string) *Gauge {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	c.gauges[name] = g
	return g
}

// Render writes all metrics in Prometheus exposition format.
func (c *Collector) Render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "# HELP scribe_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE scribe_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "scribe_uptime_seconds %d\n", int64(time.Since(c.start).Seconds()))

	for _, name := range sortedKeys(c.counters) {
		ctr := c.counters[name]
		fmt.Fprintf(&sb, "# HELP %s %s\n", ctr.name, ctr.help)
		fmt.Fprintf(&sb, "# TYPE %s counter\n", ctr.name)
		fmt.Fprintf(&sb, "%s %d\n", ctr.name, ctr.Value())
	}
	for _, name := range sortedKeys(c.gauges) {
		g := c.gauges[name]
		fmt.Fprintf(&sb, "# HELP %s %s\n", g.name, g.help)
		fmt.Fprintf(&sb, "# TYPE %s gauge\n", g.name)
		fmt.Fprintf(&sb, "%s %d\n", g.name, g.Value())
	}
	return sb.String()
}

// Handler serves the collector over HTTP.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, c.Render())
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ingest counters shared across the live ingestor and the sweep engines.
type Ingest struct {
	MessagesStored     *Counter
	DuplicatesIgnored  *Counter
	AttachmentsStored  *Counter
	EventsDropped      *Counter
	StoreFailures      *Counter
	ChannelsBackfilled *Counter
	ChannelsArchived   *Counter
}

// NewIngest registers the ingestion metrics on the collector.
func NewIngest(c *Collector) *Ingest {
	return &Ingest{
		MessagesStored:     c.Counter("scribe_messages_stored_total", "Messages newly written to the store"),
		DuplicatesIgnored:  c.Counter("scribe_duplicates_ignored_total", "Message writes skipped as already present"),
		AttachmentsStored:  c.Counter("scribe_attachments_stored_total", "Attachments newly written to the store"),
		EventsDropped:      c.Counter("scribe_events_dropped_total", "Live events dropped (own messages, DMs)"),
		StoreFailures:      c.Counter("scribe_store_failures_total", "Entity writes that failed"),
		ChannelsBackfilled: c.Counter("scribe_channels_backfilled_total", "Channels completed by backfill sweeps"),
		ChannelsArchived:   c.Counter("scribe_channels_archived_total", "Channels moved into the archive category"),
	}
}
