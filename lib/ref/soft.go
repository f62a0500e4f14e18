package ref

import (
	"runtime/metrics"
	"time"
)

const (
	heapGoalMetric    = "/gc/heap/goal:bytes"
	heapObjectsMetric = "/memory/classes/heap/objects:bytes"
)

// SoftIdle returns how long a soft cell may stay idle before it is relaxed:
// msPerMiB milliseconds for every MiB of heap that is free until the next
// collection cycle. A full heap relaxes every cell on the next sweep.
func SoftIdle(msPerMiB int64) time.Duration {
	if msPerMiB <= 0 {
		return 0
	}
	return time.Duration(msPerMiB*int64(freeHeap()>>20)) * time.Millisecond
}

// freeHeap estimates the free heap as the distance of the live heap to the heap goal
func freeHeap() uint64 {
	samples := []metrics.Sample{
		{Name: heapGoalMetric},
		{Name: heapObjectsMetric},
	}
	metrics.Read(samples)

	for _, s := range samples {
		if s.Value.Kind() != metrics.KindUint64 {
			return 0
		}
	}
	goal, live := samples[0].Value.Uint64(), samples[1].Value.Uint64()
	if goal <= live {
		return 0
	}
	return goal - live
}
