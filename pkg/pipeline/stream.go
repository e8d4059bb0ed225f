package pipeline

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/ironsheep/image-pipeline/pkg/imgerr"
)

// State is the progress of one terminal run.
type State int

const (
	// AwaitingInput waits for a stream input to be closed.
	AwaitingInput State = iota
	// InputReady has complete input and is about to dispatch.
	InputReady
	// Dispatched has handed the snapshot to the engine.
	Dispatched
	// Settled has delivered a result or an error.
	Settled
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting-input"
	case InputReady:
		return "input-ready"
	case Dispatched:
		return "dispatched"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}

type collectorState int

const (
	collecting collectorState = iota
	complete
	released
)

// collector buffers stream input for a pipeline and its clones.
//
// Runs wait on it until the origin closes it. A run that gives up while input
// is still arriving leaves; once the last waiting run has left, the buffered
// bytes are dropped and later writes are discarded.
type collector struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	state   collectorState
	ready   chan struct{}
	waiting int
}

func newCollector() *collector {
	return &collector{ready: make(chan struct{})}
}

func (c *collector) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case complete:
		return 0, imgerr.Configf("input", "Cannot write to an input stream after it was closed")
	case released:
		return len(b), nil
	}
	return c.buf.Write(b)
}

// finish marks the input complete and returns its size. Closing twice is a
// no-op.
func (c *collector) finish() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == collecting {
		c.state = complete
		close(c.ready)
	}
	return c.buf.Len()
}

// wait blocks until the input is complete or ctx is done. The returned slice
// is shared and must not be modified.
func (c *collector) wait(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	c.waiting++
	c.mu.Unlock()

	select {
	case <-c.ready:
	case <-ctx.Done():
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiting--
	switch c.state {
	case complete:
		return c.buf.Bytes(), nil
	case released:
		return nil, imgerr.Inputf(imgerr.EmptyInput, "Input stream was released before it was closed")
	}
	if c.waiting == 0 {
		c.buf = bytes.Buffer{}
		c.state = released
		close(c.ready)
	}
	return nil, ctx.Err()
}

// Write appends to the stream input. Only the pipeline created with a nil
// input may write; clones share what it collects.
func (p *Pipeline) Write(b []byte) (int, error) {
	if err := p.writable(); err != nil {
		return 0, err
	}
	return p.input.Write(b)
}

// ReadFrom copies r into the stream input until EOF. It does not close the
// input.
func (p *Pipeline) ReadFrom(r io.Reader) (int64, error) {
	if err := p.writable(); err != nil {
		return 0, err
	}
	return io.Copy(p.input, r)
}

// Close completes the stream input, releasing runs waiting for it. Only the
// pipeline that took the stream may close it; closing again is a no-op.
func (p *Pipeline) Close() error {
	if err := p.writable(); err != nil {
		return err
	}
	n := p.input.finish()
	p.log.WithField("bytes", n).Debug("input stream closed")
	return nil
}

func (p *Pipeline) writable() error {
	if p.input == nil {
		return imgerr.Configf("input", "Pipeline was not created for stream input")
	}
	if !p.origin {
		return imgerr.Configf("input", "Cannot write to the input stream of a clone")
	}
	return nil
}
