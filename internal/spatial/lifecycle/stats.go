package lifecycle

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// latencyWindow is how many recent conversion durations feed the summary.
const latencyWindow = 256

// Stats is a telemetry snapshot of a Manager.
type Stats struct {
	Kind               string  `json:"kind"`
	Live               int     `json:"live"`
	Pending            int     `json:"pending"`
	Adds               uint64  `json:"adds"`
	Updates            uint64  `json:"updates"`
	Removes            uint64  `json:"removes"`
	IgnoredUpdates     uint64  `json:"ignored_updates"`
	IgnoredRemoves     uint64  `json:"ignored_removes"`
	ConversionFailures uint64  `json:"conversion_failures"`
	CreateFailures     uint64  `json:"create_failures"`
	Collisions         uint64  `json:"collisions"`
	CollisionFailures  uint64  `json:"collision_failures"`
	StaleCollisions    uint64  `json:"stale_collisions"`
	ConvertMeanMicros  float64 `json:"convert_mean_us"`
	ConvertP95Micros   float64 `json:"convert_p95_us"`
}

type counters struct {
	adds, updates, removes             uint64
	ignoredUpdates, ignoredRemoves     uint64
	conversionFailures, createFailures uint64
	collisions, collisionFailures      uint64
	staleCollisions                    uint64

	latencies []float64 // microseconds, ring buffer
	next      int
}

func newCounters() counters {
	return counters{latencies: make([]float64, 0, latencyWindow)}
}

func (c *counters) observeConversion(d time.Duration) {
	us := float64(d) / float64(time.Microsecond)
	if len(c.latencies) < latencyWindow {
		c.latencies = append(c.latencies, us)
		return
	}
	c.latencies[c.next] = us
	c.next = (c.next + 1) % latencyWindow
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	s := Stats{
		Kind:               m.kind.String(),
		Live:               len(m.entries),
		Pending:            len(m.pending),
		Adds:               m.stats.adds,
		Updates:            m.stats.updates,
		Removes:            m.stats.removes,
		IgnoredUpdates:     m.stats.ignoredUpdates,
		IgnoredRemoves:     m.stats.ignoredRemoves,
		ConversionFailures: m.stats.conversionFailures,
		CreateFailures:     m.stats.createFailures,
		Collisions:         m.stats.collisions,
		CollisionFailures:  m.stats.collisionFailures,
		StaleCollisions:    m.stats.staleCollisions,
	}
	if len(m.stats.latencies) > 0 {
		sorted := append([]float64(nil), m.stats.latencies...)
		sort.Float64s(sorted)
		s.ConvertMeanMicros = stat.Mean(sorted, nil)
		s.ConvertP95Micros = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}
	return s
}
