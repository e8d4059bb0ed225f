package pipeline

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// Result is the outcome of ToBufferAsync.
type Result struct {
	Data     []byte
	Info     model.Info
	Warnings []imgerr.Warning
	Err      error
}

// process runs the engine for a terminal call and reports engine warnings.
func (p *Pipeline) process(ctx context.Context, r *run) (*model.Result, error) {
	var res *model.Result
	err := p.dispatch(ctx, r, func(ctx context.Context, snap *model.Snapshot) error {
		var err error
		res, err = p.engine.Process(ctx, snap)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		p.warn(w)
	}
	return res, nil
}

func (p *Pipeline) newRun(op string, site imgerr.CallSite) *run {
	return &run{op: op, site: site, err: p.err, opts: p.opts.Clone()}
}

// ToBuffer executes the pipeline and returns the encoded output. Calling it
// again re-executes the recorded options.
func (p *Pipeline) ToBuffer(ctx context.Context) ([]byte, model.Info, error) {
	res, err := p.process(ctx, p.newRun("toBuffer", imgerr.Anchor(0)))
	if err != nil {
		return nil, model.Info{}, err
	}
	return res.Data, res.Info, nil
}

// ToFile executes the pipeline and writes the output to path. Without a
// forced format the format is inferred from the extension of path, falling
// back to the input format.
func (p *Pipeline) ToFile(ctx context.Context, path string) (model.Info, error) {
	r := p.newRun("toFile", imgerr.Anchor(0))
	if r.err != nil {
		return model.Info{}, r.err
	}
	if path == "" {
		return model.Info{}, imgerr.Inputf(imgerr.EmptyOutputPath, "Missing output file path")
	}
	r.outPath = path
	res, err := p.process(ctx, r)
	if err != nil {
		return model.Info{}, err
	}
	if err := os.WriteFile(path, res.Data, 0o644); err != nil {
		return model.Info{}, errors.Wrapf(err, "write %s", path)
	}
	p.log.WithField("path", path).Debug("output written")
	return res.Info, nil
}

// ToBufferAsync executes the pipeline in the background. The channel
// receives exactly one Result and is then closed.
func (p *Pipeline) ToBufferAsync(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	r := p.newRun("toBuffer", imgerr.Anchor(0))
	go func() {
		defer close(out)
		res, err := p.process(ctx, r)
		if err != nil {
			out <- Result{Err: err}
			return
		}
		out <- Result{Data: res.Data, Info: res.Info, Warnings: res.Warnings}
	}()
	return out
}

// Metadata describes the input without applying recorded operations.
func (p *Pipeline) Metadata(ctx context.Context) (*model.Metadata, error) {
	r := p.newRun("metadata", imgerr.Anchor(0))
	r.probe = true
	var md *model.Metadata
	err := p.dispatch(ctx, r, func(ctx context.Context, snap *model.Snapshot) error {
		var err error
		md, err = p.engine.Metadata(ctx, snap)
		return err
	})
	return md, err
}

// Stats reports pixel statistics of the input without applying recorded
// operations.
func (p *Pipeline) Stats(ctx context.Context) (*model.Stats, error) {
	r := p.newRun("stats", imgerr.Anchor(0))
	r.probe = true
	var st *model.Stats
	err := p.dispatch(ctx, r, func(ctx context.Context, snap *model.Snapshot) error {
		var err error
		st, err = p.engine.Stats(ctx, snap)
		return err
	})
	return st, err
}

// OutputStream delivers pipeline output as a byte stream.
//
// Output is produced in one piece once the engine settles. Closing the stream
// before the run is dispatched abandons the input wait and the engine is
// never invoked; closing it after dispatch lets the engine finish and
// discards the result.
type OutputStream struct {
	pr     *io.PipeReader
	pw     *io.PipeWriter
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	state   State
	info    *model.Info
	err     error
	closed  bool
	onInfo  []func(model.Info)
	onState []func(State)
}

// Stream starts a run whose output is read from the returned stream. The run
// waits for stream input if the pipeline has not been closed yet. The caller
// must read the stream to EOF or Close it.
func (p *Pipeline) Stream(ctx context.Context) *OutputStream {
	pr, pw := io.Pipe()
	waitCtx, cancel := context.WithCancel(ctx)
	s := &OutputStream{pr: pr, pw: pw, cancel: cancel, done: make(chan struct{})}

	r := p.newRun("stream", imgerr.Anchor(0))
	r.waitCtx = waitCtx
	r.track = s.setState
	go func() {
		defer close(s.done)
		defer cancel()
		res, err := p.process(ctx, r)
		if err == nil && s.isClosed() {
			err = io.ErrClosedPipe
			p.log.Debug("output stream closed during processing, result discarded")
		}
		if err != nil {
			s.settle(err)
			pw.CloseWithError(err)
			return
		}
		s.setInfo(res.Info)
		if _, err := pw.Write(res.Data); err != nil {
			s.settle(err)
			return
		}
		pw.Close()
	}()
	return s
}

// Read implements io.Reader. It returns the run's error, if any, once the
// run settles.
func (s *OutputStream) Read(b []byte) (int, error) { return s.pr.Read(b) }

// Close abandons the stream. Closing more than once is a no-op.
func (s *OutputStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	return s.pr.Close()
}

// Done is closed when the run has settled.
func (s *OutputStream) Done() <-chan struct{} { return s.done }

// Err returns the run's error after Done is closed.
func (s *OutputStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the current run state.
func (s *OutputStream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns the output description once it is known.
func (s *OutputStream) Info() (model.Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return model.Info{}, false
	}
	return *s.info, true
}

// OnInfo registers fn to receive the output description, before any bytes
// can be read. fn is called immediately if it is already known.
func (s *OutputStream) OnInfo(fn func(model.Info)) *OutputStream {
	s.mu.Lock()
	info := s.info
	if info == nil {
		s.onInfo = append(s.onInfo, fn)
	}
	s.mu.Unlock()
	if info != nil {
		fn(*info)
	}
	return s
}

// OnState registers fn for state transitions.
func (s *OutputStream) OnState(fn func(State)) *OutputStream {
	s.mu.Lock()
	s.onState = append(s.onState, fn)
	s.mu.Unlock()
	return s
}

func (s *OutputStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *OutputStream) setState(st State) {
	s.mu.Lock()
	s.state = st
	fns := append(([]func(State))(nil), s.onState...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func (s *OutputStream) setInfo(info model.Info) {
	s.mu.Lock()
	s.info = &info
	fns := s.onInfo
	s.onInfo = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn(info)
	}
}

func (s *OutputStream) settle(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
