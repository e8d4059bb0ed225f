package governor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/image-pipeline/internal/log"
	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

func newTestGovernor(t *testing.T, opts ...Option) *Governor {
	t.Helper()
	g, err := New(append([]Option{WithLogger(log.Discard())}, opts...)...)
	require.NoError(t, err)
	return g
}

func TestSetConcurrency(t *testing.T) {
	g := newTestGovernor(t)

	n, err := g.SetConcurrency(3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, g.Concurrency())

	n, err = g.SetConcurrency(0)
	require.NoError(t, err)
	assert.Equal(t, clampConcurrency(runtime.NumCPU()), n)

	n, err = g.SetConcurrency(MaxConcurrency + 10)
	require.NoError(t, err)
	assert.Equal(t, MaxConcurrency, n)

	_, err = g.SetConcurrency(-1)
	assert.True(t, errors.Is(err, imgerr.ErrConfiguration))
}

func TestPixelLimit(t *testing.T) {
	g := newTestGovernor(t)
	assert.Equal(t, model.DefaultPixelLimit, g.PixelLimit())

	n, err := g.SetPixelLimit(0)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = g.SetPixelLimit(-5)
	assert.Error(t, err)
	assert.Zero(t, g.PixelLimit())

	_, err = New(WithPixelLimit(-1))
	assert.Error(t, err)
}

func TestSetSIMD(t *testing.T) {
	g := newTestGovernor(t)
	assert.False(t, g.SetSIMD(false))
	assert.False(t, g.SIMD())
	assert.Equal(t, simdCapable, g.SetSIMD(true))
}

func TestAdmitParity(t *testing.T) {
	g := newTestGovernor(t, WithConcurrency(2))

	var ups, downs int64
	var mu sync.Mutex
	negative := false
	cancel := g.Subscribe(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		if c.Counters.Queue < 0 || c.Counters.Process < 0 {
			negative = true
		}
		if c.Delta > 0 {
			atomic.AddInt64(&ups, 1)
		} else {
			atomic.AddInt64(&downs, 1)
		}
	})
	defer cancel()

	const jobs = 20
	var grp errgroup.Group
	for i := 0; i < jobs; i++ {
		grp.Go(func() error {
			ticket, err := g.Admit(context.Background())
			if err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
			ticket.Done()
			ticket.Done()
			return nil
		})
	}
	require.NoError(t, grp.Wait())

	assert.EqualValues(t, jobs, atomic.LoadInt64(&ups))
	assert.EqualValues(t, jobs, atomic.LoadInt64(&downs))
	assert.False(t, negative)
	assert.Equal(t, Counters{}, g.Counters())
}

func TestChangesDeliveredInOrder(t *testing.T) {
	g := newTestGovernor(t, WithConcurrency(4))

	var mu sync.Mutex
	var totals []int
	cancel := g.Subscribe(func(c Change) {
		mu.Lock()
		totals = append(totals, c.Total())
		mu.Unlock()
	})
	defer cancel()

	const jobs = 64
	var grp errgroup.Group
	for i := 0; i < jobs; i++ {
		grp.Go(func() error {
			ticket, err := g.Admit(context.Background())
			if err != nil {
				return err
			}
			runtime.Gosched()
			ticket.Done()
			return nil
		})
	}
	require.NoError(t, grp.Wait())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, totals, 2*jobs)
	prev := 0
	for i, total := range totals {
		step := total - prev
		require.True(t, step == 1 || step == -1, "change %d moved the total from %d to %d", i, prev, total)
		require.GreaterOrEqual(t, total, 0)
		prev = total
	}
	assert.Zero(t, prev)
}

func TestAdmitHonoursConcurrency(t *testing.T) {
	g := newTestGovernor(t, WithConcurrency(1))

	first, err := g.Admit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counters{Process: 1}, g.Counters())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Admit(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Counters{Process: 1}, g.Counters(), "abandoned admission leaves the queue")

	first.Done()
	assert.Equal(t, Counters{}, g.Counters())
}

func TestSubscribeCancel(t *testing.T) {
	g := newTestGovernor(t)
	calls := 0
	cancel := g.Subscribe(func(Change) { calls++ })

	ticket, err := g.Admit(context.Background())
	require.NoError(t, err)
	cancel()
	ticket.Done()

	assert.Equal(t, 1, calls)
}

type fakeCache struct {
	limits CacheLimits
}

func (f *fakeCache) SetLimits(l CacheLimits) { f.limits = l }

func (f *fakeCache) Stats() CacheStats {
	return CacheStats{
		Memory: Usage{Max: f.limits.Memory},
		Files:  Usage{Max: f.limits.Files},
		Items:  Usage{Max: f.limits.Items},
	}
}

func TestCacheControls(t *testing.T) {
	backend := &fakeCache{}
	g := newTestGovernor(t, WithCache(backend))
	assert.Equal(t, DefaultCacheLimits(), backend.limits)

	stats, err := g.SetCache(CacheLimits{Memory: 10, Files: 2, Items: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Items.Max)

	stats = g.SetCacheEnabled(false)
	assert.Equal(t, CacheLimits{}, backend.limits)
	assert.Zero(t, stats.Memory.Max)

	stats = g.SetCacheEnabled(true)
	assert.Equal(t, DefaultCacheLimits(), backend.limits)
	assert.Equal(t, 100, stats.Items.Max)

	_, err = g.SetCache(CacheLimits{Items: -1})
	assert.True(t, errors.Is(err, imgerr.ErrConfiguration))
}

func TestCacheWithoutBackend(t *testing.T) {
	g := newTestGovernor(t)
	stats := g.Cache()
	assert.Equal(t, 50, stats.Memory.Max)
	assert.Equal(t, 20, stats.Files.Max)
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
