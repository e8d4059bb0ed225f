// Package pipeline is a fluent builder for image processing pipelines.
//
// A Pipeline wraps one input (an encoded buffer, a file path, raw pixels, a
// blank canvas or a byte stream written to the pipeline) and records chained
// operations into a model.Options value. Nothing is decoded until a terminal
// method asks for output; the recorded options are then finalized and handed
// to the processing engine in a single call.
//
// # Example Usage
//
//	p, err := pipeline.New("input.jpg")
//	if err != nil {
//	    return err
//	}
//	data, info, err := p.Resize(300, 200).Greyscale(true).ToFormat("png").ToBuffer(ctx)
//
// # Errors
//
// Malformed arguments to New and Create are returned immediately. Malformed
// arguments to chained methods are recorded: the first one is kept, later
// calls are ignored, Err reports it, and every terminal method returns it
// without running the engine. Error categories are described in package
// imgerr.
//
// # Warnings
//
// Overwriting a keyed operation, repeating resize, extract or rotate, or
// forcing a second output format is not an error. Such calls produce an
// imgerr.Warning delivered to OnWarning observers and logged at Warn level.
//
// # Streams
//
// A pipeline created with a nil input collects bytes written to it until
// Close. Terminal methods called before Close wait for the input. Clones of a
// stream pipeline share the collected bytes; only the original pipeline may
// write or close.
//
// # Concurrency
//
// Chained methods must not be called concurrently on one pipeline. Terminal
// methods may be: runs on one pipeline execute one at a time, runs on
// different pipelines (clones included) execute in parallel up to the
// governor's concurrency.
package pipeline
