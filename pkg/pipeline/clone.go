package pipeline

import (
	"github.com/rs/xid"
	"golang.org/x/sync/semaphore"
)

// Clone returns a pipeline with the same input and private copies of every
// recorded operation and output setting. Changes to either pipeline
// afterwards do not affect the other.
//
// Buffer and file inputs are shared as is. A stream input is shared by
// subscription: the clone sees the bytes written to the original and becomes
// ready when the original is closed, but cannot write itself. Warning
// observers registered so far are inherited.
func (p *Pipeline) Clone() *Pipeline {
	c := &Pipeline{
		id:       xid.New(),
		opts:     p.opts.Clone(),
		err:      p.err,
		gov:      p.gov,
		engine:   p.engine,
		logger:   p.logger,
		input:    p.input,
		rawDepth: p.rawDepth,
		runSlot:  semaphore.NewWeighted(1),
	}
	p.obsMu.Lock()
	c.observers = append(c.observers, p.observers...)
	p.obsMu.Unlock()
	c.log = c.logger.WithFields(map[string]interface{}{
		"pipeline": c.id.String(),
		"clone_of": p.id.String(),
	})
	c.log.Debug("pipeline cloned")
	return c
}
