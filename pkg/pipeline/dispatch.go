package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/imgutil"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// Engine performs the pixel work for finalized snapshots. internal/engine is
// the implementation used unless WithEngine supplies another.
//
// Implementations must return ctx.Err() (possibly wrapped) when ctx ends
// before completion.
type Engine interface {
	Process(ctx context.Context, snap *model.Snapshot) (*model.Result, error)
	Metadata(ctx context.Context, snap *model.Snapshot) (*model.Metadata, error)
	Stats(ctx context.Context, snap *model.Snapshot) (*model.Stats, error)
}

// run describes one terminal call.
type run struct {
	op   string
	site imgerr.CallSite
	// err is the builder error recorded when the terminal method was called.
	err error
	// opts is the options copy taken when the terminal method was called.
	opts *model.Options
	// outPath is the destination of ToFile.
	outPath string
	// probe skips output format resolution.
	probe bool
	// waitCtx bounds waiting for stream input, ctx when nil.
	waitCtx context.Context
	// track observes state transitions.
	track func(State)
}

func (r *run) set(s State) {
	if r.track != nil {
		r.track(s)
	}
}

// dispatch resolves the input, finalizes the options and calls invoke with
// the snapshot while holding a governor slot. Engine failures are classified;
// caller cancellation is returned as ctx.Err().
func (p *Pipeline) dispatch(ctx context.Context, r *run, invoke func(context.Context, *model.Snapshot) error) error {
	defer r.set(Settled)
	if r.err != nil {
		return r.err
	}

	var data []byte
	if p.input != nil {
		r.set(AwaitingInput)
		waitCtx := r.waitCtx
		if waitCtx == nil {
			waitCtx = ctx
		}
		var err error
		if data, err = p.input.wait(waitCtx); err != nil {
			return err
		}
	}
	r.set(InputReady)

	res, err := p.resolution(r, data)
	if err != nil {
		return err
	}
	var snap *model.Snapshot
	if r.probe {
		snap, err = r.opts.Probe(res)
	} else {
		snap, err = r.opts.Finalize(res)
	}
	if err != nil {
		return err
	}

	timeout := snap.Output.Timeout
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// admitCtx also ends when a stream consumer abandons the run.
	admitCtx := runCtx
	if r.waitCtx != nil {
		var cancel context.CancelFunc
		admitCtx, cancel = context.WithCancel(runCtx)
		defer cancel()
		defer context.AfterFunc(r.waitCtx, cancel)()
	}
	abandoned := func(err error) error {
		if r.waitCtx != nil && r.waitCtx.Err() != nil && runCtx.Err() == nil {
			return r.waitCtx.Err()
		}
		return p.classify(ctx, r, timeout, err)
	}

	if err := p.runSlot.Acquire(admitCtx, 1); err != nil {
		return abandoned(err)
	}
	defer p.runSlot.Release(1)

	ticket, err := p.gov.Admit(admitCtx)
	if err != nil {
		return abandoned(err)
	}
	if err := runCtx.Err(); err != nil {
		ticket.Done()
		return p.classify(ctx, r, timeout, err)
	}
	if r.waitCtx != nil && r.waitCtx.Err() != nil {
		ticket.Done()
		return r.waitCtx.Err()
	}
	r.set(Dispatched)
	entry := p.log.WithFields(logrus.Fields{"op": r.op, "format": snap.Output.Format})
	entry.Debug("dispatching to engine")
	err = invoke(runCtx, snap)
	ticket.Done()
	if err != nil {
		err = p.classify(ctx, r, timeout, err)
		entry.WithError(err).Debug("engine run failed")
		return err
	}
	entry.Debug("engine run settled")
	return nil
}

// classify maps context expiry to TimeoutError when the pipeline's own
// deadline fired, passes caller cancellation through, and wraps anything
// unclassified as an EngineError anchored at the terminal call.
func (p *Pipeline) classify(ctx context.Context, r *run, timeout time.Duration, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) && timeout > 0 {
		return &imgerr.TimeoutError{Timeout: timeout, Err: err}
	}
	return r.site.Engine(r.op, err)
}

// resolution gathers the facts Finalize needs: the sniffed input format, the
// collected stream bytes and the validated output path.
func (p *Pipeline) resolution(r *run, data []byte) (model.Resolution, error) {
	res := model.Resolution{Data: data, DefaultPixelLimit: p.gov.PixelLimit()}
	in := r.opts.Input
	switch in.Kind {
	case model.InputBuffer:
		res.InputFormat = imgutil.Detect(in.Buffer)
	case model.InputStream:
		if in.Raw == nil {
			res.InputFormat = imgutil.Detect(data)
		}
	case model.InputFile:
		f, err := imgutil.SniffFile(in.Path)
		if err != nil && !errors.Is(err, imgutil.ErrShortHeader) {
			return res, imgerr.WrapInput(imgerr.MissingFile, err, "Input file is missing: "+in.Path)
		}
		res.InputFormat = f
	}
	if r.outPath != "" {
		if in.Kind == model.InputFile && samePath(in.Path, r.outPath) {
			return res, imgerr.Inputf(imgerr.SameFile, "Cannot use same file for input and output")
		}
		res.OutputPath = r.outPath
	}
	return res, nil
}

// samePath compares absolute forms, and file identity when both exist.
func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	fa, errA := os.Stat(a)
	fb, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(fa, fb)
}
