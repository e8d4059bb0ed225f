package model

import (
	"encoding/json"

	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/imgutil"
)

// Options is the accumulated configuration for one pipeline.
//
// Geometry operations are kept in call order. Every other operation occupies
// one slot keyed by name; applying it again replaces the earlier parameters.
type Options struct {
	Input    Input
	Geometry []Operation
	Filters  map[Name]Operation
	Output   Output
}

// New returns options for the given input with default output settings.
func New(in Input) *Options {
	return &Options{
		Input:   in,
		Filters: make(map[Name]Operation),
		Output:  NewOutput(),
	}
}

// Apply validates op and records a private copy of it. A non-nil warning is
// returned when the call overwrites or repeats an earlier operation.
func (o *Options) Apply(op Operation) (*imgerr.Warning, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	stored := op.Clone()
	name := op.Name()
	if IsGeometry(name) {
		var warn *imgerr.Warning
		if n := len(o.Geometry); n > 0 && o.Geometry[n-1].Name() == name && repeatWarns(name) {
			w := imgerr.Warnf(string(name), "calling %s twice in a row; both operations are kept", name)
			warn = &w
		}
		o.Geometry = append(o.Geometry, stored)
		return warn, nil
	}
	var warn *imgerr.Warning
	if _, ok := o.Filters[name]; ok {
		w := imgerr.Warnf(string(name), "overwriting previous %s options", name)
		warn = &w
	}
	o.Filters[name] = stored
	return warn, nil
}

// Flip and flop twice in a row are legitimate no-ops and stay quiet.
func repeatWarns(n Name) bool {
	return n == OpResize || n == OpExtract || n == OpRotate
}

// Remove cancels a keyed operation, or the most recent geometry operation of
// that name. It reports whether anything was removed.
func (o *Options) Remove(name Name) bool {
	if !IsGeometry(name) {
		if _, ok := o.Filters[name]; !ok {
			return false
		}
		delete(o.Filters, name)
		return true
	}
	for i := len(o.Geometry) - 1; i >= 0; i-- {
		if o.Geometry[i].Name() == name {
			o.Geometry = append(o.Geometry[:i], o.Geometry[i+1:]...)
			return true
		}
	}
	return false
}

// Has reports whether an operation of that name is recorded.
func (o *Options) Has(name Name) bool {
	if !IsGeometry(name) {
		_, ok := o.Filters[name]
		return ok
	}
	for _, op := range o.Geometry {
		if op.Name() == name {
			return true
		}
	}
	return false
}

// SetFormat forces the output format. Forcing a different format a second
// time returns a warning.
func (o *Options) SetFormat(f imgutil.Format) *imgerr.Warning {
	var warn *imgerr.Warning
	if o.Output.Forced && o.Output.Format != f {
		w := imgerr.Warnf("format", "overwriting output format %s with %s", o.Output.Format, f)
		warn = &w
	}
	o.Output.Format = f
	o.Output.Forced = true
	return warn
}

// Clone deep-copies the options. Input bytes are shared, they are never
// mutated once collected.
func (o *Options) Clone() *Options {
	c := &Options{
		Input:    o.Input.clone(),
		Geometry: make([]Operation, len(o.Geometry)),
		Filters:  make(map[Name]Operation, len(o.Filters)),
		Output:   o.Output,
	}
	for i, op := range o.Geometry {
		c.Geometry[i] = op.Clone()
	}
	for n, op := range o.Filters {
		c.Filters[n] = op.Clone()
	}
	return c
}

// OrderedFilters returns the keyed operations in application order.
func (o *Options) OrderedFilters() []Operation {
	ops := make([]Operation, 0, len(o.Filters))
	for _, n := range FilterOrder {
		if op, ok := o.Filters[n]; ok {
			ops = append(ops, op.Clone())
		}
	}
	return ops
}

// Resolution carries the facts known only at execution time.
type Resolution struct {
	// InputFormat is the sniffed format of encoded input, Unknown for raw and
	// create inputs.
	InputFormat imgutil.Format
	// Data replaces the input buffer, used for collected stream input.
	Data []byte
	// OutputPath is the destination for file output, empty otherwise.
	OutputPath string
	// DefaultPixelLimit applies when the pipeline has no explicit limit.
	DefaultPixelLimit int64
}

// Snapshot is the immutable, fully resolved configuration handed to an engine.
type Snapshot struct {
	Input       Input
	InputFormat imgutil.Format
	AutoOrient  bool
	Geometry    []Operation
	Filters     []Operation
	Output      Output
	// PixelLimit is the effective input pixel ceiling, 0 when unlimited.
	PixelLimit int64
}

// Finalize resolves the output format and the effective limits. It does not
// revalidate operations, they were validated when applied.
func (o *Options) Finalize(r Resolution) (*Snapshot, error) {
	in, err := o.Input.resolve(r.Data)
	if err != nil {
		return nil, err
	}
	if in.Kind == InputRaw && in.Raw == nil {
		return nil, imgerr.Configf("raw", "Expected width, height and channels for raw pixel input")
	}

	snap := &Snapshot{
		Input:       in,
		InputFormat: r.InputFormat,
		Output:      o.Output,
	}
	_, snap.AutoOrient = o.Filters[OpAutoOrient]
	snap.Geometry = make([]Operation, len(o.Geometry))
	for i, op := range o.Geometry {
		snap.Geometry[i] = op.Clone()
	}
	for _, op := range o.OrderedFilters() {
		if op.Name() != OpAutoOrient {
			snap.Filters = append(snap.Filters, op)
		}
	}

	format, err := resolveFormat(o.Output, r)
	if err != nil {
		return nil, err
	}
	snap.Output.Format = format

	switch {
	case in.Unlimited:
		snap.PixelLimit = 0
	case in.LimitSet:
		snap.PixelLimit = in.LimitInputPixels
	default:
		snap.PixelLimit = r.DefaultPixelLimit
	}
	return snap, nil
}

// Probe resolves the input only, for metadata and statistics requests that
// produce no encoded output.
func (o *Options) Probe(r Resolution) (*Snapshot, error) {
	in, err := o.Input.resolve(r.Data)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Input: in, InputFormat: r.InputFormat, Output: o.Output, PixelLimit: r.DefaultPixelLimit}
	switch {
	case in.Unlimited:
		snap.PixelLimit = 0
	case in.LimitSet:
		snap.PixelLimit = in.LimitInputPixels
	}
	return snap, nil
}

// resolve copies the input, replacing a pending stream with its collected
// bytes. Streamed pixels described by Raw become raw input.
func (in Input) resolve(data []byte) (Input, error) {
	c := in.clone()
	if c.Kind != InputStream {
		return c, nil
	}
	if len(data) == 0 {
		return c, imgerr.Inputf(imgerr.EmptyInput, "Input stream is empty")
	}
	c.Kind = InputBuffer
	if c.Raw != nil {
		c.Kind = InputRaw
	}
	c.Buffer = data
	return c, nil
}

// resolveFormat applies the precedence forced format, then output file
// extension, then input format. Created canvases default to png.
func resolveFormat(out Output, r Resolution) (imgutil.Format, error) {
	format := imgutil.Unknown
	switch {
	case out.Forced:
		format = out.Format
	case r.OutputPath != "":
		if f, ok := imgutil.FromExtension(r.OutputPath); ok {
			format = f
		} else {
			format = r.InputFormat
		}
	default:
		format = r.InputFormat
	}
	if format == imgutil.Unknown {
		format = imgutil.PNG
	}
	if !format.Writable() {
		return imgutil.Unknown, imgerr.Inputf(imgerr.UnsupportedOutput, "Unsupported output format %s", format)
	}
	return format, nil
}

type namedOp struct {
	Name   Name      `json:"name"`
	Params Operation `json:"params"`
}

func named(ops []Operation) []namedOp {
	out := make([]namedOp, len(ops))
	for i, op := range ops {
		out[i] = namedOp{Name: op.Name(), Params: op}
	}
	return out
}

// MarshalJSON renders the options as a debugging aid.
func (o *Options) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Input    Input     `json:"input"`
		Geometry []namedOp `json:"geometry"`
		Filters  []namedOp `json:"filters"`
		Output   Output    `json:"output"`
	}{o.Input, named(o.Geometry), named(o.OrderedFilters()), o.Output})
}
