package model

import (
	"math"
	"strings"

	"github.com/ironsheep/image-pipeline/pkg/imgerr"
)

// Fit controls how Resize maps the input onto the target box.
type Fit string

const (
	FitCover   Fit = "cover"
	FitContain Fit = "contain"
	FitFill    Fit = "fill"
	FitInside  Fit = "inside"
	FitOutside Fit = "outside"
)

// Position is a gravity used by cover cropping and contain letterboxing.
type Position string

const (
	PositionCentre    Position = "centre"
	PositionNorth     Position = "north"
	PositionNorthEast Position = "northeast"
	PositionEast      Position = "east"
	PositionSouthEast Position = "southeast"
	PositionSouth     Position = "south"
	PositionSouthWest Position = "southwest"
	PositionWest      Position = "west"
	PositionNorthWest Position = "northwest"
)

var positionAliases = map[string]Position{
	"centre": PositionCentre, "center": PositionCentre,
	"north": PositionNorth, "top": PositionNorth,
	"northeast": PositionNorthEast, "right top": PositionNorthEast,
	"east": PositionEast, "right": PositionEast,
	"southeast": PositionSouthEast, "right bottom": PositionSouthEast,
	"south": PositionSouth, "bottom": PositionSouth,
	"southwest": PositionSouthWest, "left bottom": PositionSouthWest,
	"west": PositionWest, "left": PositionWest,
	"northwest": PositionNorthWest, "left top": PositionNorthWest,
}

// Kernel selects the resampling filter.
type Kernel string

const (
	KernelNearest  Kernel = "nearest"
	KernelLinear   Kernel = "linear"
	KernelCubic    Kernel = "cubic"
	KernelMitchell Kernel = "mitchell"
	KernelLanczos2 Kernel = "lanczos2"
	KernelLanczos3 Kernel = "lanczos3"
)

// Resize scales the image to Width x Height. A zero dimension is derived from
// the other one and the input aspect ratio.
type Resize struct {
	Width              int      `json:"width,omitempty"`
	Height             int      `json:"height,omitempty"`
	Fit                Fit      `json:"fit,omitempty"`
	Position           Position `json:"position,omitempty"`
	Kernel             Kernel   `json:"kernel,omitempty"`
	Background         string   `json:"background,omitempty"`
	WithoutEnlargement bool     `json:"withoutEnlargement,omitempty"`
	WithoutReduction   bool     `json:"withoutReduction,omitempty"`
	bg                 Colour
}

func (r *Resize) Name() Name { return OpResize }

func (r *Resize) Validate() error {
	if err := dimension("width", r.Width); err != nil {
		return err
	}
	if err := dimension("height", r.Height); err != nil {
		return err
	}
	if r.Width == 0 && r.Height == 0 {
		return imgerr.Configf("resize", "Expected width or height for resize")
	}
	if r.Fit == "" {
		r.Fit = FitCover
	}
	if err := oneOf("fit", string(r.Fit), []string{"cover", "contain", "fill", "inside", "outside"}); err != nil {
		return err
	}
	pos, err := parsePosition(r.Position)
	if err != nil {
		return err
	}
	r.Position = pos
	if r.Kernel == "" {
		r.Kernel = KernelLanczos3
	}
	if err := oneOf("kernel", string(r.Kernel), []string{"nearest", "linear", "cubic", "mitchell", "lanczos2", "lanczos3"}); err != nil {
		return err
	}
	bg, err := ParseColour("background", r.Background, Black)
	if err != nil {
		return err
	}
	r.bg = bg
	return nil
}

func (r *Resize) Clone() Operation { c := *r; return &c }

// BackgroundColour is the letterbox colour used by FitContain.
func (r *Resize) BackgroundColour() Colour { return r.bg }

func dimension(param string, v int) error {
	if v < 0 || v > MaxDimension {
		return imgerr.Invalid(param, "positive integer no greater than 16383", v)
	}
	return nil
}

func parsePosition(p Position) (Position, error) {
	if p == "" {
		return PositionCentre, nil
	}
	canonical, ok := positionAliases[strings.ToLower(string(p))]
	if !ok {
		return "", imgerr.Invalid("position", "valid position/gravity", string(p))
	}
	return canonical, nil
}

// Extract crops a region.
type Extract struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (e *Extract) Name() Name { return OpExtract }

func (e *Extract) Validate() error {
	if err := nonNegative("left", e.Left); err != nil {
		return err
	}
	if err := nonNegative("top", e.Top); err != nil {
		return err
	}
	if err := positive("width", e.Width); err != nil {
		return err
	}
	return positive("height", e.Height)
}

func (e *Extract) Clone() Operation { c := *e; return &c }

// Rotate rotates by an arbitrary angle in degrees. Angles that are not a
// multiple of 90 enlarge the canvas and fill it with Background.
type Rotate struct {
	Angle      float64 `json:"angle"`
	Background string  `json:"background,omitempty"`
	bg         Colour
}

func (r *Rotate) Name() Name { return OpRotate }

func (r *Rotate) Validate() error {
	if err := finiteNumber("angle", r.Angle); err != nil {
		return err
	}
	r.Angle = math.Mod(r.Angle, 360)
	if r.Angle < 0 {
		r.Angle += 360
	}
	bg, err := ParseColour("background", r.Background, Black)
	if err != nil {
		return err
	}
	r.bg = bg
	return nil
}

func (r *Rotate) Clone() Operation { c := *r; return &c }

// BackgroundColour fills corners exposed by non-orthogonal rotation.
func (r *Rotate) BackgroundColour() Colour { return r.bg }

// AutoOrient rotates and mirrors according to the EXIF orientation tag.
type AutoOrient struct{}

func (a *AutoOrient) Name() Name       { return OpAutoOrient }
func (a *AutoOrient) Validate() error  { return nil }
func (a *AutoOrient) Clone() Operation { return &AutoOrient{} }

// Flip mirrors vertically.
type Flip struct{}

func (f *Flip) Name() Name       { return OpFlip }
func (f *Flip) Validate() error  { return nil }
func (f *Flip) Clone() Operation { return &Flip{} }

// Flop mirrors horizontally.
type Flop struct{}

func (f *Flop) Name() Name       { return OpFlop }
func (f *Flop) Validate() error  { return nil }
func (f *Flop) Clone() Operation { return &Flop{} }

// Interpolators for Affine.
const (
	InterpolatorNearest  = "nearest"
	InterpolatorBilinear = "bilinear"
	InterpolatorBicubic  = "bicubic"
)

// Affine applies the 2x2 matrix [a b; c d] with optional input and output offsets.
type Affine struct {
	Matrix       [4]float64 `json:"matrix"`
	Background   string     `json:"background,omitempty"`
	IDX          float64    `json:"idx,omitempty"`
	IDY          float64    `json:"idy,omitempty"`
	ODX          float64    `json:"odx,omitempty"`
	ODY          float64    `json:"ody,omitempty"`
	Interpolator string     `json:"interpolator,omitempty"`
	bg           Colour
}

func (a *Affine) Name() Name { return OpAffine }

func (a *Affine) Validate() error {
	for _, v := range a.Matrix {
		if !finite(v) {
			return imgerr.Invalid("matrix", "1x4 or 2x2 array of finite numbers", a.Matrix)
		}
	}
	if a.Matrix[0]*a.Matrix[3]-a.Matrix[1]*a.Matrix[2] == 0 {
		return imgerr.Invalid("matrix", "invertible 2x2 matrix", a.Matrix)
	}
	for name, v := range map[string]float64{"idx": a.IDX, "idy": a.IDY, "odx": a.ODX, "ody": a.ODY} {
		if err := finiteNumber(name, v); err != nil {
			return err
		}
	}
	if a.Interpolator == "" {
		a.Interpolator = InterpolatorBicubic
	}
	if err := oneOf("interpolator", a.Interpolator, []string{InterpolatorNearest, InterpolatorBilinear, InterpolatorBicubic}); err != nil {
		return err
	}
	bg, err := ParseColour("background", a.Background, Black)
	if err != nil {
		return err
	}
	a.bg = bg
	return nil
}

func (a *Affine) Clone() Operation { c := *a; return &c }

// BackgroundColour fills pixels outside the transformed source.
func (a *Affine) BackgroundColour() Colour { return a.bg }

// Extend pads edges with a background colour.
type Extend struct {
	Top        int    `json:"top"`
	Bottom     int    `json:"bottom"`
	Left       int    `json:"left"`
	Right      int    `json:"right"`
	Background string `json:"background,omitempty"`
	bg         Colour
}

func (e *Extend) Name() Name { return OpExtend }

func (e *Extend) Validate() error {
	for _, edge := range []struct {
		name string
		v    int
	}{{"top", e.Top}, {"bottom", e.Bottom}, {"left", e.Left}, {"right", e.Right}} {
		if err := nonNegative(edge.name, edge.v); err != nil {
			return err
		}
	}
	bg, err := ParseColour("background", e.Background, Black)
	if err != nil {
		return err
	}
	e.bg = bg
	return nil
}

func (e *Extend) Clone() Operation { c := *e; return &c }

// BackgroundColour fills the added edges.
func (e *Extend) BackgroundColour() Colour { return e.bg }

// Trim removes edges similar to Background (top-left pixel when empty).
type Trim struct {
	Threshold  float64 `json:"threshold"`
	Background string  `json:"background,omitempty"`
	bg         *Colour
}

// DefaultTrimThreshold is the colour distance used when none is given.
const DefaultTrimThreshold = 10

func (t *Trim) Name() Name { return OpTrim }

func (t *Trim) Validate() error {
	if err := floatInRange("threshold", t.Threshold, 0, 255); err != nil {
		return err
	}
	if t.Background != "" {
		c, err := ParseColour("background", t.Background, Black)
		if err != nil {
			return err
		}
		t.bg = &c
	}
	return nil
}

func (t *Trim) Clone() Operation {
	c := *t
	if t.bg != nil {
		bg := *t.bg
		c.bg = &bg
	}
	return &c
}

// BackgroundColour returns the explicit trim colour, if any.
func (t *Trim) BackgroundColour() (Colour, bool) {
	if t.bg == nil {
		return Colour{}, false
	}
	return *t.bg, true
}
