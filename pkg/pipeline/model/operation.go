package model

import (
	"encoding/json"
	"strings"

	"github.com/ironsheep/image-pipeline/pkg/imgerr"
)

// Name identifies an operation.
type Name string

// Geometry operations, recorded as an ordered sequence.
const (
	OpResize  Name = "resize"
	OpExtract Name = "extract"
	OpRotate  Name = "rotate"
	OpFlip    Name = "flip"
	OpFlop    Name = "flop"
	OpAffine  Name = "affine"
	OpExtend  Name = "extend"
	OpTrim    Name = "trim"
)

// Keyed operations, one slot per name.
const (
	OpAutoOrient     Name = "autoOrient"
	OpBlur           Name = "blur"
	OpSharpen        Name = "sharpen"
	OpMedian         Name = "median"
	OpGamma          Name = "gamma"
	OpNegate         Name = "negate"
	OpNormalise      Name = "normalise"
	OpThreshold      Name = "threshold"
	OpLinear         Name = "linear"
	OpConvolve       Name = "convolve"
	OpModulate       Name = "modulate"
	OpFlatten        Name = "flatten"
	OpTint           Name = "tint"
	OpGreyscale      Name = "greyscale"
	OpColourspace    Name = "colourspace"
	OpRemoveAlpha    Name = "removeAlpha"
	OpEnsureAlpha    Name = "ensureAlpha"
	OpExtractChannel Name = "extractChannel"
)

// Operation is one validated set of parameters.
//
// Validate checks ranges and enums, fills defaults and normalises alternate
// spellings in place. Clone returns a deep copy so stored parameters never
// alias caller-owned slices.
type Operation interface {
	Name() Name
	Validate() error
	Clone() Operation
}

var geometry = map[Name]bool{
	OpResize: true, OpExtract: true, OpRotate: true, OpFlip: true,
	OpFlop: true, OpAffine: true, OpExtend: true, OpTrim: true,
}

// IsGeometry reports whether the operation is order-sensitive.
func IsGeometry(n Name) bool { return geometry[n] }

// FilterOrder is the order in which keyed operations are applied after the
// geometry sequence. autoOrient runs before the geometry sequence.
var FilterOrder = []Name{
	OpFlatten, OpGamma, OpNegate, OpEnsureAlpha, OpBlur, OpMedian, OpSharpen,
	OpConvolve, OpThreshold, OpLinear, OpNormalise, OpModulate, OpTint,
	OpGreyscale, OpExtractChannel, OpRemoveAlpha, OpColourspace,
}

var aliases = map[string]Name{
	"normalize":      OpNormalise,
	"grayscale":      OpGreyscale,
	"colorspace":     OpColourspace,
	"tocolorspace":   OpColourspace,
	"tocolourspace":  OpColourspace,
	"autoorient":     OpAutoOrient,
	"removealpha":    OpRemoveAlpha,
	"ensurealpha":    OpEnsureAlpha,
	"extractchannel": OpExtractChannel,
}

var constructors = map[Name]func() Operation{
	OpResize:         func() Operation { return &Resize{} },
	OpExtract:        func() Operation { return &Extract{} },
	OpRotate:         func() Operation { return &Rotate{} },
	OpFlip:           func() Operation { return &Flip{} },
	OpFlop:           func() Operation { return &Flop{} },
	OpAffine:         func() Operation { return &Affine{} },
	OpExtend:         func() Operation { return &Extend{} },
	OpTrim:           func() Operation { return &Trim{Threshold: DefaultTrimThreshold} },
	OpAutoOrient:     func() Operation { return &AutoOrient{} },
	OpBlur:           func() Operation { return &Blur{} },
	OpSharpen:        func() Operation { return &Sharpen{} },
	OpMedian:         func() Operation { return &Median{Size: 3} },
	OpGamma:          func() Operation { return &Gamma{Gamma: DefaultGamma} },
	OpNegate:         func() Operation { return &Negate{} },
	OpNormalise:      func() Operation { return &Normalise{} },
	OpThreshold:      func() Operation { return &Threshold{Level: DefaultThreshold} },
	OpLinear:         func() Operation { return &Linear{} },
	OpConvolve:       func() Operation { return &Convolve{} },
	OpModulate:       func() Operation { return &Modulate{} },
	OpFlatten:        func() Operation { return &Flatten{} },
	OpTint:           func() Operation { return &Tint{} },
	OpGreyscale:      func() Operation { return &Greyscale{} },
	OpColourspace:    func() Operation { return &Colourspace{} },
	OpRemoveAlpha:    func() Operation { return &RemoveAlpha{} },
	OpEnsureAlpha:    func() Operation { return &EnsureAlpha{Alpha: 1} },
	OpExtractChannel: func() Operation { return &ExtractChannel{} },
}

// Canonical maps an operation name, including alternate spellings, to its
// canonical form.
func Canonical(name string) (Name, bool) {
	if _, ok := constructors[Name(name)]; ok {
		return Name(name), true
	}
	if n, ok := aliases[strings.ToLower(name)]; ok {
		return n, true
	}
	for n := range constructors {
		if strings.EqualFold(string(n), name) {
			return n, true
		}
	}
	return "", false
}

// NewOperation returns default parameters for a named operation, ready to be
// populated (for example by json.Unmarshal) and applied.
func NewOperation(name string) (Operation, bool) {
	n, ok := Canonical(name)
	if !ok {
		return nil, false
	}
	return constructors[n](), true
}

// DecodeOperation builds a named operation and decodes JSON params onto its
// defaults. The result is not validated; Options.Apply does that.
func DecodeOperation(name string, params []byte) (Operation, error) {
	op, ok := NewOperation(name)
	if !ok {
		return nil, imgerr.Configf("operation", "unknown operation: %s", name)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, op); err != nil {
			return nil, imgerr.Configf(string(op.Name()), "invalid params for %s: %v", name, err)
		}
	}
	return op, nil
}
