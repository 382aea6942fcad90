package metrics

import (
	"strings"
	"testing"
)

func TestCounterRegistrationIsIdempotent(t *testing.T) {
	c := NewCollector()
	a := c.Counter("scribe_test_total", "help")
	b := c.Counter("scribe_test_total", "help")
	if a != b {
		t.Error("same name should return the same counter")
	}
	a.Inc()
	b.Add(2)
	if a.Value() != 3 {
		t.Errorf("expected 3, got %d", a.Value())
	}
}

func TestRenderExpositionFormat(t *testing.T) {
	c := NewCollector()
	c.Counter("scribe_messages_stored_total", "Messages newly written").Add(42)
	c.Gauge("scribe_sweep_active", "Sweep in progress").Set(1)

	out := c.Render()
	for _, want := range []string{
		"# TYPE scribe_messages_stored_total counter",
		"scribe_messages_stored_total 42",
		"# TYPE scribe_sweep_active gauge",
		"scribe_sweep_active 1",
		"scribe_uptime_seconds",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
}
