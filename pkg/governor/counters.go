package governor

// Counters is a snapshot of the live execution counters.
type Counters struct {
	Queue   int `json:"queue"`
	Process int `json:"process"`
}

// Total is the number of jobs admitted and not yet settled.
func (c Counters) Total() int { return c.Queue + c.Process }

// Change is delivered to subscribers when a job is admitted (Delta +1) or
// settles (Delta -1).
type Change struct {
	Delta    int
	Counters Counters
}

// Total is the in-flight count after the change.
func (c Change) Total() int { return c.Counters.Total() }

// Counters returns the current queue and processing counts.
func (g *Governor) Counters() Counters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Counters{Queue: g.queued, Process: g.processing}
}

// Subscribe registers fn for counter changes and returns a function removing
// it. fn is called synchronously from the admitting or settling goroutine,
// one change at a time, and must not admit or settle jobs itself.
func (g *Governor) Subscribe(fn func(Change)) (cancel func()) {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		delete(g.subs, id)
		g.mu.Unlock()
	}
}

// update applies mutate under mu and delivers the resulting change to the
// subscribers. Deliveries happen in the order the changes were applied.
func (g *Governor) update(delta int, mutate func()) {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	mutate()
	change := Change{Delta: delta, Counters: Counters{Queue: g.queued, Process: g.processing}}
	subs := make([]func(Change), 0, len(g.subs))
	for _, fn := range g.subs {
		subs = append(subs, fn)
	}
	g.mu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}
