// Package governor holds the process-wide resource controls shared by every
// pipeline: engine concurrency, the default input pixel ceiling, the decoded
// input cache limits, the SIMD preference and the live queue counters.
//
// A Governor is safe for concurrent use. Most programs use Default; tests and
// embedders that need isolation create their own with New and hand it to
// pipelines explicitly.
//
// Every pipeline execution passes through Admit, which counts the job as
// queued, waits for a concurrency slot and returns a Ticket. Ticket.Done
// settles the job. Subscribers registered with Subscribe observe exactly one
// Change when a job enters and one when it settles:
//
//	cancel := governor.Default().Subscribe(func(c governor.Change) {
//	    log.Printf("in flight: %d", c.Total())
//	})
//	defer cancel()
package governor
