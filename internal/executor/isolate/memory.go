package isolate

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

// heapObjectsMetric counts bytes held by heap objects, including garbage the
// collector has not swept yet. It moves with every allocation, unlike
// MemStats snapshots taken at GC time.
const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// MemoryMeter reports current heap usage in bytes.
//
// goja runs on the Go heap and has no per-VM allocation limit, so the memory
// cap is enforced by watching heap growth while a script runs and
// interrupting the VM once growth passes the limit.
type MemoryMeter interface {
	HeapBytes() uint64
}

// metricsMeter samples runtime/metrics.
type metricsMeter struct{}

func (metricsMeter) HeapBytes() uint64 {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}

// memStatsMeter is the fallback for toolchains that do not export the metric.
type memStatsMeter struct{}

func (memStatsMeter) HeapBytes() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

// defaultMeter picks the cheapest accurate meter the running toolchain supports.
func defaultMeter() MemoryMeter {
	for _, d := range metrics.All() {
		if d.Name == heapObjectsMetric && d.Kind == metrics.KindUint64 {
			return metricsMeter{}
		}
	}
	return memStatsMeter{}
}

// heapLedger tracks how many runs of one Runtime share the process heap.
//
// A run is charged for process heap growth since it started, which includes
// what concurrent runs allocated. Its allowance therefore scales with the
// largest number of runs that were live alongside it, and an apparent
// overrun is confirmed after a forced collection before the run is aborted,
// so garbage left by finished neighbours is not billed to it.
type heapLedger struct {
	mu   sync.Mutex
	live int

	gcMu   sync.Mutex
	lastGC time.Time
}

// enter registers a live run and returns the function that ends it.
func (l *heapLedger) enter() (leave func()) {
	l.mu.Lock()
	l.live++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.live--
			l.mu.Unlock()
		})
	}
}

func (l *heapLedger) liveRuns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}

// collect forces a full collection unless one finished within minInterval,
// so several watchdogs crossing their limit together share one GC.
func (l *heapLedger) collect(minInterval time.Duration) {
	l.gcMu.Lock()
	defer l.gcMu.Unlock()
	if time.Since(l.lastGC) < minInterval {
		return
	}
	runtime.GC()
	l.lastGC = time.Now()
}

// allowance is the heap growth a run may observe before it is over its cap.
func allowance(limit int64, peakLive int) uint64 {
	if peakLive < 1 {
		peakLive = 1
	}
	return uint64(limit) * uint64(peakLive)
}
