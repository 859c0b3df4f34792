package isolate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/executor"
)

func TestHeapLedger_EnterLeave(t *testing.T) {
	var l heapLedger

	leaveA := l.enter()
	leaveB := l.enter()
	assert.Equal(t, 2, l.liveRuns())

	leaveA()
	leaveA() // idempotent
	assert.Equal(t, 1, l.liveRuns())

	leaveB()
	assert.Equal(t, 0, l.liveRuns())
}

func TestAllowance_ScalesWithLiveRuns(t *testing.T) {
	assert.Equal(t, uint64(128), allowance(128, 0))
	assert.Equal(t, uint64(128), allowance(128, 1))
	assert.Equal(t, uint64(512), allowance(128, 4))
}

// fixedMeter reports a baseline, then a constant level.
type fixedMeter struct {
	mu    sync.Mutex
	calls int
	base  uint64
	level uint64
}

func (m *fixedMeter) HeapBytes() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls == 1 {
		return m.base
	}
	return m.level
}

func TestRun_GrowthWithinSharedAllowance(t *testing.T) {
	// 3 MiB of growth against a 2 MiB cap is fine while two runs share the heap.
	meter := &fixedMeter{base: 10 << 20, level: 13 << 20}
	r := newTestRuntime(t, WithMemoryMeter(meter))
	limits := executor.Limits{MemoryLimitBytes: 2 << 20, Timeout: 2 * time.Second}

	leave := r.ledger.enter()
	defer leave()

	out := r.Run(context.Background(), "const end = Date.now() + 50; while (Date.now() < end) {} 'done'", limits)
	require.True(t, out.OK(), "got %v", out.Err)
	assert.Equal(t, `"done"`, string(out.Value))
}

func TestRun_ConcurrentRunsUnderTheirCapAllSucceed(t *testing.T) {
	r := newTestRuntime(t)
	limits := executor.Limits{
		MemoryLimitBytes: 64 << 20,
		Timeout:          10 * time.Second,
	}

	// each run holds ~25 MiB, about 40% of its cap, long enough to overlap
	js := `
const hoard = [];
for (let i = 0; i < 25; i++) hoard.push(String.fromCharCode(97 + i).repeat(1 << 20));
const end = Date.now() + 400;
while (Date.now() < end) {}
hoard.length`

	const n = 4
	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		outcomes = make([]executor.Outcome, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			outcomes[i] = r.Run(context.Background(), js, limits)
		}(i)
	}
	close(start)
	wg.Wait()

	for i, out := range outcomes {
		require.True(t, out.OK(), "run %d: %v", i, out.Err)
		assert.Equal(t, "25", string(out.Value))
	}
}
