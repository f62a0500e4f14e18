package processor

import (
	"io"

	vmetrics "github.com/VictoriaMetrics/metrics"
)

// process wide counters, summed over all processors
var (
	sweepsTotal   = vmetrics.GetOrCreateCounter(`dref_processor_sweeps_total`)
	removedTotal  = vmetrics.GetOrCreateCounter(`dref_processor_removed_total`)
	failuresTotal = vmetrics.GetOrCreateCounter(`dref_processor_failures_total`)
	expiredTotal  = vmetrics.GetOrCreateCounter(`dref_processor_expired_total`)
	relaxedTotal  = vmetrics.GetOrCreateCounter(`dref_processor_relaxed_total`)
)

// WritePrometheus writes the process wide processor counters in the prometheus text format
func WritePrometheus(w io.Writer) {
	vmetrics.WritePrometheus(w, false)
}

func record(res Result) {
	sweepsTotal.Inc()
	removedTotal.Add(res.Removed)
	failuresTotal.Add(res.Failures)
	expiredTotal.Add(res.Expired)
	relaxedTotal.Add(res.Relaxed)
}
