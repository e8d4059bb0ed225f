package governor

import (
	"context"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/cpu"

	"github.com/ironsheep/image-pipeline/internal/log"
	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// MaxConcurrency is the largest accepted engine concurrency.
const MaxConcurrency = 1024

// simdCapable reports whether the host offers the vector extensions the
// engine would use.
var simdCapable = cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD

// Governor coordinates concurrent pipeline executions.
type Governor struct {
	mu sync.Mutex
	// notifyMu orders subscriber delivery; it is taken before mu.
	notifyMu sync.Mutex

	concurrency int
	sem         *semaphore.Weighted
	pixelLimit  int64
	simd        bool

	cacheLimits  CacheLimits
	cacheEnabled bool
	cache        CacheBackend

	queued     int
	processing int
	subs       map[int]func(Change)
	nextSub    int

	log *logrus.Logger
}

// Option configures a Governor.
type Option func(*Governor) error

// WithConcurrency sets the initial concurrency, see SetConcurrency.
func WithConcurrency(n int) Option {
	return func(g *Governor) error {
		_, err := g.SetConcurrency(n)
		return err
	}
}

// WithPixelLimit sets the initial default input pixel ceiling.
func WithPixelLimit(n int64) Option {
	return func(g *Governor) error {
		_, err := g.SetPixelLimit(n)
		return err
	}
}

// WithCache attaches a cache backend at construction time.
func WithCache(b CacheBackend) Option {
	return func(g *Governor) error {
		g.UseCache(b)
		return nil
	}
}

// WithLogger replaces the default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(g *Governor) error {
		g.log = l
		return nil
	}
}

// New returns a governor with engine defaults.
func New(opts ...Option) (*Governor, error) {
	n := defaultConcurrency()
	g := &Governor{
		concurrency:  n,
		sem:          semaphore.NewWeighted(int64(n)),
		pixelLimit:   model.DefaultPixelLimit,
		simd:         simdCapable,
		cacheLimits:  DefaultCacheLimits(),
		cacheEnabled: true,
		subs:         make(map[int]func(Change)),
		log:          log.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, errors.Wrap(err, "governor")
		}
	}
	return g, nil
}

var (
	defaultOnce sync.Once
	defaultGov  *Governor
)

// Default returns the process-wide governor.
func Default() *Governor {
	defaultOnce.Do(func() {
		g, err := New()
		if err != nil {
			panic(err)
		}
		defaultGov = g
	})
	return defaultGov
}

func defaultConcurrency() int {
	return clampConcurrency(runtime.NumCPU())
}

func clampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// Concurrency returns the number of executions allowed to run at once.
func (g *Governor) Concurrency() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.concurrency
}

// SetConcurrency changes the concurrency and returns the effective value. Zero
// resets to the number of CPUs; larger values are clamped to MaxConcurrency.
// Executions already holding a slot keep it; new admissions use the new limit.
func (g *Governor) SetConcurrency(n int) (int, error) {
	if n < 0 {
		return 0, imgerr.Invalid("concurrency", "integer greater than or equal to 0", n)
	}
	eff := defaultConcurrency()
	if n > 0 {
		eff = clampConcurrency(n)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if eff != g.concurrency {
		g.concurrency = eff
		g.sem = semaphore.NewWeighted(int64(eff))
		g.log.WithField("concurrency", eff).Debug("governor concurrency changed")
	}
	return eff, nil
}

// PixelLimit returns the default input pixel ceiling, 0 when disabled.
func (g *Governor) PixelLimit() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pixelLimit
}

// SetPixelLimit changes the default input pixel ceiling. Zero disables it.
func (g *Governor) SetPixelLimit(n int64) (int64, error) {
	if err := model.ValidatePixelLimit(n); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pixelLimit = n
	return n, nil
}

// SIMD reports whether vector acceleration is in effect.
func (g *Governor) SIMD() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.simd
}

// SetSIMD records the preference and returns whether acceleration is actually
// in effect, which also depends on the host.
func (g *Governor) SetSIMD(on bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.simd = on && simdCapable
	return g.simd
}

// Admit counts a job as queued and blocks until a concurrency slot is free or
// ctx is done. On success the job counts as processing until Ticket.Done.
func (g *Governor) Admit(ctx context.Context) (*Ticket, error) {
	var sem *semaphore.Weighted
	g.update(+1, func() {
		sem = g.sem
		g.queued++
	})

	if err := sem.Acquire(ctx, 1); err != nil {
		g.update(-1, func() { g.queued-- })
		return nil, err
	}

	g.mu.Lock()
	g.queued--
	g.processing++
	g.mu.Unlock()
	return &Ticket{g: g, sem: sem}, nil
}

// Ticket is a held concurrency slot.
type Ticket struct {
	g    *Governor
	sem  *semaphore.Weighted
	once sync.Once
}

// Done releases the slot. Calling it more than once has no effect.
func (t *Ticket) Done() {
	t.once.Do(func() {
		t.sem.Release(1)
		g := t.g
		g.update(-1, func() { g.processing-- })
	})
}
