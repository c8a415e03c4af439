package clientdriver

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"go.dedis.ch/locsim/log"
)

// latencies accumulates round-trip millisecond samples per operation
// name. There is nothing remote to report these to, so they only ever
// surface through DebugMode logging.
var (
	latMu      sync.Mutex
	latencies  = map[string][]float64{}
	latEnabled bool
)

// EnableLatencyStats turns on per-operation latency recording; it is wired
// to the scenario DebugMode command.
func EnableLatencyStats(on bool) {
	latMu.Lock()
	defer latMu.Unlock()
	latEnabled = on
	if on {
		return
	}
	latencies = map[string][]float64{}
}

// recordLatency starts a timer for op and returns a func to stop it and
// record the sample; called unconditionally, it is a no-op unless
// EnableLatencyStats(true) was called.
func recordLatency(op string) func() {
	start := time.Now()
	return func() {
		latMu.Lock()
		enabled := latEnabled
		latMu.Unlock()
		if !enabled {
			return
		}
		ms := float64(time.Since(start).Milliseconds())
		latMu.Lock()
		latencies[op] = append(latencies[op], ms)
		latMu.Unlock()
	}
}

// LatencySummary computes the mean and 95th-percentile latency (ms) for op
// across every recorded sample.
func LatencySummary(op string) (mean, p95 float64, n int) {
	latMu.Lock()
	samples := append([]float64(nil), latencies[op]...)
	latMu.Unlock()
	if len(samples) == 0 {
		return 0, 0, 0
	}
	mean, err := stats.Mean(samples)
	if err != nil {
		log.Warnf("clientdriver: computing mean latency for %s: %v", op, err)
	}
	p, err := stats.Percentile(samples, 95)
	if err != nil {
		log.Warnf("clientdriver: computing p95 latency for %s: %v", op, err)
	}
	return mean, p, len(samples)
}

// LogLatencySummaries writes every recorded operation's latency summary to
// the debug log, called by the orchestrator when DebugMode is on.
func LogLatencySummaries() {
	latMu.Lock()
	ops := make([]string, 0, len(latencies))
	for op := range latencies {
		ops = append(ops, op)
	}
	latMu.Unlock()
	for _, op := range ops {
		mean, p95, n := LatencySummary(op)
		log.Lvl2("clientdriver: ", op, " n=", n, " mean=", mean, "ms p95=", p95, "ms")
	}
}
