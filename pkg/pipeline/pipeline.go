package pipeline

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/ironsheep/image-pipeline/internal/engine"
	"github.com/ironsheep/image-pipeline/internal/log"
	"github.com/ironsheep/image-pipeline/pkg/governor"
	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// Pipeline accumulates operations for one input and executes them when a
// terminal method is called.
type Pipeline struct {
	id     xid.ID
	opts   *model.Options
	err    error
	gov    *governor.Governor
	engine Engine
	logger *logrus.Logger
	log    *logrus.Entry

	obsMu     sync.Mutex
	observers []func(imgerr.Warning)

	// input collects stream bytes; nil unless the pipeline takes a stream.
	input *collector
	// origin owns the stream and may write to it.
	origin bool

	// runSlot serializes engine invocations for this pipeline.
	runSlot *semaphore.Weighted

	rawDepth string
}

// Option configures a pipeline at construction.
type Option func(*Pipeline) error

// WithGovernor uses g instead of governor.Default().
func WithGovernor(g *governor.Governor) Option {
	return func(p *Pipeline) error {
		p.gov = g
		return nil
	}
}

// WithEngine uses e instead of the shared pure Go engine.
func WithEngine(e Engine) Option {
	return func(p *Pipeline) error {
		p.engine = e
		return nil
	}
}

// WithLogger replaces the default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = l
		return nil
	}
}

// WithDensity sets the DPI reported for vector and metadata-less input.
func WithDensity(dpi float64) Option {
	return func(p *Pipeline) error {
		if err := model.ValidateDensity(dpi); err != nil {
			return err
		}
		p.opts.Input.Density = dpi
		return nil
	}
}

// WithRaw describes the input as uncompressed pixels.
func WithRaw(raw model.RawInput) Option {
	return func(p *Pipeline) error {
		if err := raw.Validate(); err != nil {
			return err
		}
		p.opts.Input.Raw = &raw
		return nil
	}
}

// WithPages selects the number of pages or frames to read, -1 for all.
func WithPages(n int) Option {
	return func(p *Pipeline) error {
		if err := model.ValidatePages(n); err != nil {
			return err
		}
		p.opts.Input.Pages = n
		return nil
	}
}

// WithPage selects the first page or frame to read.
func WithPage(n int) Option {
	return func(p *Pipeline) error {
		if err := model.ValidatePage(n); err != nil {
			return err
		}
		p.opts.Input.Page = n
		return nil
	}
}

// WithAnimated reads all frames when on.
func WithAnimated(on bool) Option {
	return func(p *Pipeline) error {
		if on {
			p.opts.Input.Pages = -1
		} else {
			p.opts.Input.Pages = 1
		}
		return nil
	}
}

// WithLimitInputPixels sets the input pixel ceiling; 0 disables the check.
func WithLimitInputPixels(n int64) Option {
	return func(p *Pipeline) error {
		if err := model.ValidatePixelLimit(n); err != nil {
			return err
		}
		p.opts.Input.LimitInputPixels = n
		p.opts.Input.LimitSet = true
		return nil
	}
}

// WithUnlimited removes the per-side dimension safety ceiling and the
// pixel ceiling.
func WithUnlimited(on bool) Option {
	return func(p *Pipeline) error {
		p.opts.Input.Unlimited = on
		return nil
	}
}

// WithFailOnError controls whether recoverable decode problems fail the run.
func WithFailOnError(on bool) Option {
	return func(p *Pipeline) error {
		p.opts.Input.FailOnError = on
		return nil
	}
}

// WithIgnoreICC drops embedded ICC profiles.
func WithIgnoreICC(on bool) Option {
	return func(p *Pipeline) error {
		p.opts.Input.IgnoreICC = on
		return nil
	}
}

// WithSequentialRead is accepted for compatibility; the engine always
// decodes the whole input.
func WithSequentialRead(on bool) Option {
	return func(p *Pipeline) error {
		p.opts.Input.SequentialRead = on
		return nil
	}
}

// New creates a pipeline.
//
// Parameters:
//   - input: nil for a stream written to the pipeline, []byte for encoded
//     image data (or raw pixels with WithRaw), a string file path, or
//     []uint16 / []float32 raw samples which require WithRaw.
//   - opts: input hints and dependencies.
//
// Returns:
//   - a ConfigurationError for an unsupported input type or bad option,
//     an InputError for an empty buffer or path.
func New(input interface{}, opts ...Option) (*Pipeline, error) {
	in, depth, err := inputFor(input)
	if err != nil {
		return nil, err
	}
	p := newPipeline(in)
	p.rawDepth = depth
	if err := p.configure(opts); err != nil {
		return nil, err
	}
	return p, nil
}

// Create starts a pipeline from a blank canvas.
func Create(c model.CreateInput, opts ...Option) (*Pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	in := model.NewInput(model.InputCreate)
	in.Create = &c
	p := newPipeline(in)
	if err := p.configure(opts); err != nil {
		return nil, err
	}
	return p, nil
}

func inputFor(input interface{}) (model.Input, string, error) {
	switch v := input.(type) {
	case nil:
		return model.NewInput(model.InputStream), "", nil
	case []byte:
		if len(v) == 0 {
			return model.Input{}, "", imgerr.Inputf(imgerr.EmptyInput, "Input buffer is empty")
		}
		in := model.NewInput(model.InputBuffer)
		in.Buffer = v
		return in, "", nil
	case string:
		if v == "" {
			return model.Input{}, "", imgerr.Inputf(imgerr.EmptyInput, "Input file path is empty")
		}
		in := model.NewInput(model.InputFile)
		in.Path = v
		return in, "", nil
	case []uint16:
		in := model.NewInput(model.InputRaw)
		in.Buffer = make([]byte, len(v)*2)
		for i, s := range v {
			binary.LittleEndian.PutUint16(in.Buffer[i*2:], s)
		}
		return in, model.DepthUshort, nil
	case []float32:
		in := model.NewInput(model.InputRaw)
		in.Buffer = make([]byte, len(v)*4)
		for i, s := range v {
			binary.LittleEndian.PutUint32(in.Buffer[i*4:], math.Float32bits(s))
		}
		return in, model.DepthFloat, nil
	default:
		return model.Input{}, "", imgerr.Invalid("input", "[]byte, file path, []uint16, []float32 or nil for a stream", input)
	}
}

func newPipeline(in model.Input) *Pipeline {
	return &Pipeline{id: xid.New(), opts: model.New(in), runSlot: semaphore.NewWeighted(1)}
}

func (p *Pipeline) configure(opts []Option) error {
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return err
		}
	}
	in := &p.opts.Input
	if in.Raw != nil {
		if p.rawDepth != "" {
			in.Raw.Depth = p.rawDepth
		}
		if in.Kind == model.InputBuffer {
			in.Kind = model.InputRaw
		}
	}
	if in.Kind == model.InputRaw && in.Raw == nil {
		return imgerr.Configf("raw", "Expected width, height and channels for raw pixel input")
	}
	if in.Kind == model.InputStream {
		p.input = newCollector()
		p.origin = true
	}
	if p.gov == nil {
		p.gov = governor.Default()
	}
	if p.engine == nil {
		p.engine = defaultEngine()
	}
	if p.logger == nil {
		p.logger = log.GetLogger()
	}
	p.log = p.logger.WithField("pipeline", p.id.String())
	p.log.WithField("input", in.Kind).Debug("pipeline created")
	return nil
}

var (
	engineOnce   sync.Once
	sharedEngine *engine.Engine
)

// defaultEngine returns the process-wide engine, its cache governed by
// governor.Default().
func defaultEngine() Engine {
	engineOnce.Do(func() {
		sharedEngine = engine.New()
		governor.Default().UseCache(sharedEngine.Cache())
	})
	return sharedEngine
}

// ID identifies the pipeline in log output.
func (p *Pipeline) ID() string { return p.id.String() }

// Err returns the first error recorded by a chained call.
func (p *Pipeline) Err() error { return p.err }

// Options returns a copy of the recorded options.
func (p *Pipeline) Options() *model.Options { return p.opts.Clone() }

// OnWarning registers fn for non-fatal warnings.
func (p *Pipeline) OnWarning(fn func(imgerr.Warning)) *Pipeline {
	p.obsMu.Lock()
	p.observers = append(p.observers, fn)
	p.obsMu.Unlock()
	return p
}

func (p *Pipeline) warn(w imgerr.Warning) {
	p.log.WithField("op", w.Op).Warn(w.Message)
	p.obsMu.Lock()
	obs := append(([]func(imgerr.Warning))(nil), p.observers...)
	p.obsMu.Unlock()
	for _, fn := range obs {
		fn(w)
	}
}

// fail records the first chained error.
func (p *Pipeline) fail(err error) *Pipeline {
	if p.err == nil && err != nil {
		p.err = err
		p.log.WithError(err).Debug("chained call rejected")
	}
	return p
}

// Operation validates and records op. It is the generic form of the named
// chaining methods.
func (p *Pipeline) Operation(op model.Operation) *Pipeline {
	if p.err != nil {
		return p
	}
	w, err := p.opts.Apply(op)
	if err != nil {
		return p.fail(err)
	}
	if w != nil {
		p.warn(*w)
	}
	return p
}

// toggle records op when on and cancels an earlier op of the same name
// otherwise.
func (p *Pipeline) toggle(on bool, op model.Operation) *Pipeline {
	if on {
		return p.Operation(op)
	}
	if p.err == nil {
		p.opts.Remove(op.Name())
	}
	return p
}
