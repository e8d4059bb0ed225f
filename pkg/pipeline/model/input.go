package model

import (
	"github.com/ironsheep/image-pipeline/pkg/imgerr"
)

// InputKind discriminates the input descriptor.
type InputKind int

const (
	InputStream InputKind = iota
	InputBuffer
	InputFile
	InputRaw
	InputCreate
)

func (k InputKind) String() string {
	switch k {
	case InputStream:
		return "stream"
	case InputBuffer:
		return "buffer"
	case InputFile:
		return "file"
	case InputRaw:
		return "raw"
	case InputCreate:
		return "create"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k InputKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// DefaultPixelLimit is the input pixel ceiling applied when none is configured.
const DefaultPixelLimit int64 = 0x3FFF * 0x3FFF

// Sample depths for raw pixel input.
const (
	DepthUchar  = "uchar"
	DepthUshort = "ushort"
	DepthFloat  = "float"
)

// RawInput describes uncompressed interleaved pixel data.
type RawInput struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Channels      int    `json:"channels"`
	Depth         string `json:"depth"`
	Premultiplied bool   `json:"premultiplied,omitempty"`
	PageHeight    int    `json:"pageHeight,omitempty"`
}

// Validate requires width, height and channels together.
func (r *RawInput) Validate() error {
	if r.Width == 0 || r.Height == 0 || r.Channels == 0 {
		return imgerr.Configf("raw", "Expected width, height and channels for raw pixel input")
	}
	if err := positive("raw.width", r.Width); err != nil {
		return err
	}
	if err := positive("raw.height", r.Height); err != nil {
		return err
	}
	if err := intInRange("raw.channels", r.Channels, 1, 4); err != nil {
		return err
	}
	if r.Depth == "" {
		r.Depth = DepthUchar
	}
	if err := oneOf("raw.depth", r.Depth, []string{DepthUchar, DepthUshort, DepthFloat}); err != nil {
		return err
	}
	if r.PageHeight != 0 {
		if err := intInRange("raw.pageHeight", r.PageHeight, 1, r.Height); err != nil {
			return err
		}
		if r.Height%r.PageHeight != 0 {
			return imgerr.Invalid("raw.pageHeight", "factor of raw.height", r.PageHeight)
		}
	}
	return nil
}

// BytesPerSample returns the storage size of one channel sample.
func (r *RawInput) BytesPerSample() int {
	switch r.Depth {
	case DepthUshort:
		return 2
	case DepthFloat:
		return 4
	default:
		return 1
	}
}

// CreateInput describes a blank canvas.
type CreateInput struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Channels   int    `json:"channels"`
	Background string `json:"background"`
	bg         Colour
}

// Validate checks the canvas geometry and colour.
func (c *CreateInput) Validate() error {
	if err := intInRange("create.width", c.Width, 1, MaxDimension); err != nil {
		return err
	}
	if err := intInRange("create.height", c.Height, 1, MaxDimension); err != nil {
		return err
	}
	if c.Channels == 0 {
		c.Channels = 4
	}
	if c.Channels != 3 && c.Channels != 4 {
		return imgerr.Invalid("create.channels", "3 or 4", c.Channels)
	}
	bg, err := ParseColour("create.background", c.Background, Black)
	if err != nil {
		return err
	}
	c.bg = bg
	return nil
}

// BackgroundColour is the canvas fill.
func (c *CreateInput) BackgroundColour() Colour { return c.bg }

// Input is the input descriptor plus decode hints.
type Input struct {
	Kind             InputKind    `json:"kind"`
	Buffer           []byte       `json:"-"`
	Path             string       `json:"path,omitempty"`
	Raw              *RawInput    `json:"raw,omitempty"`
	Create           *CreateInput `json:"create,omitempty"`
	Density          float64      `json:"density"`
	Pages            int          `json:"pages"`
	Page             int          `json:"page"`
	LimitInputPixels int64        `json:"limitInputPixels"`
	LimitSet         bool         `json:"-"`
	Unlimited        bool         `json:"unlimited,omitempty"`
	FailOnError      bool         `json:"failOnError"`
	IgnoreICC        bool         `json:"ignoreIcc,omitempty"`
	SequentialRead   bool         `json:"sequentialRead,omitempty"`
}

// NewInput returns an input descriptor with decode defaults.
func NewInput(kind InputKind) Input {
	return Input{Kind: kind, Density: 72, Pages: 1, FailOnError: true}
}

func (in Input) clone() Input {
	c := in
	if in.Raw != nil {
		raw := *in.Raw
		c.Raw = &raw
	}
	if in.Create != nil {
		create := *in.Create
		c.Create = &create
	}
	return c
}

// ValidateDensity checks a DPI value.
func ValidateDensity(d float64) error {
	return floatInRange("density", d, 1, 100000)
}

// ValidatePages checks a frame count; -1 selects every frame.
func ValidatePages(n int) error {
	if n == 0 || n < -1 || n > 100000 {
		return imgerr.Invalid("pages", "integer between 1 and 100000 or -1 for all", n)
	}
	return nil
}

// ValidatePage checks a zero-based first frame index.
func ValidatePage(n int) error {
	return intInRange("page", n, 0, 100000)
}

// ValidatePixelLimit checks an input pixel ceiling; 0 disables the ceiling.
func ValidatePixelLimit(n int64) error {
	if n < 0 {
		return imgerr.Invalid("limitInputPixels", "integer greater than or equal to 0", n)
	}
	return nil
}
