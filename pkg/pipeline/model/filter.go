package model

import (
	"fmt"

	"github.com/ironsheep/image-pipeline/pkg/imgerr"
)

// Blur applies a gaussian blur of Sigma, or a fast 3x3 box blur when Sigma is 0.
type Blur struct {
	Sigma float64 `json:"sigma,omitempty"`
}

func (b *Blur) Name() Name { return OpBlur }

func (b *Blur) Validate() error {
	if b.Sigma == 0 {
		return nil
	}
	return floatInRange("sigma", b.Sigma, 0.3, 1000)
}

func (b *Blur) Clone() Operation { c := *b; return &c }

// Sharpen applies an unsharp mask of Sigma, or a mild fixed sharpen when 0.
type Sharpen struct {
	Sigma float64 `json:"sigma,omitempty"`
}

func (s *Sharpen) Name() Name { return OpSharpen }

func (s *Sharpen) Validate() error {
	if s.Sigma == 0 {
		return nil
	}
	return floatInRange("sigma", s.Sigma, 0.000001, 10)
}

func (s *Sharpen) Clone() Operation { c := *s; return &c }

// Median applies a median filter over a Size x Size window.
type Median struct {
	Size int `json:"size"`
}

func (m *Median) Name() Name { return OpMedian }

func (m *Median) Validate() error {
	return intInRange("size", m.Size, 1, 1000)
}

func (m *Median) Clone() Operation { c := *m; return &c }

// Gamma applies gamma correction. GammaOut defaults to Gamma.
type Gamma struct {
	Gamma    float64 `json:"gamma"`
	GammaOut float64 `json:"gammaOut,omitempty"`
}

// DefaultGamma is used when gamma is requested without a value.
const DefaultGamma = 2.2

func (g *Gamma) Name() Name { return OpGamma }

func (g *Gamma) Validate() error {
	if err := floatInRange("gamma", g.Gamma, 1, 3); err != nil {
		return err
	}
	if g.GammaOut == 0 {
		g.GammaOut = g.Gamma
	}
	return floatInRange("gammaOut", g.GammaOut, 1, 3)
}

func (g *Gamma) Clone() Operation { c := *g; return &c }

// Negate inverts colour channels, and alpha when Alpha is set.
type Negate struct {
	Alpha bool `json:"alpha,omitempty"`
}

func (n *Negate) Name() Name       { return OpNegate }
func (n *Negate) Validate() error  { return nil }
func (n *Negate) Clone() Operation { c := *n; return &c }

// Normalise stretches luminance so the Lower and Upper percentiles map to the
// full range.
type Normalise struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

func (n *Normalise) Name() Name { return OpNormalise }

func (n *Normalise) Validate() error {
	if n.Lower == 0 && n.Upper == 0 {
		n.Lower, n.Upper = 1, 99
	}
	if err := floatInRange("lower", n.Lower, 0, 99); err != nil {
		return err
	}
	if err := floatInRange("upper", n.Upper, 1, 100); err != nil {
		return err
	}
	if n.Lower >= n.Upper {
		return imgerr.Invalid("lower", fmt.Sprintf("number less than upper (%g)", n.Upper), n.Lower)
	}
	return nil
}

func (n *Normalise) Clone() Operation { c := *n; return &c }

// Threshold maps pixels above Level to white and others to black. The image
// is converted to greyscale first unless PerChannel is set.
type Threshold struct {
	Level      int  `json:"threshold"`
	PerChannel bool `json:"perChannel,omitempty"`
}

// DefaultThreshold is used when threshold is requested without a level.
const DefaultThreshold = 128

func (t *Threshold) Name() Name { return OpThreshold }

func (t *Threshold) Validate() error {
	return intInRange("threshold", t.Level, 0, 255)
}

func (t *Threshold) Clone() Operation { c := *t; return &c }

// Linear applies a*x + b per channel. Single values apply to every channel.
type Linear struct {
	A []float64 `json:"a"`
	B []float64 `json:"b"`
}

func (l *Linear) Name() Name { return OpLinear }

func (l *Linear) Validate() error {
	if len(l.A) == 0 {
		l.A = []float64{1}
	}
	if len(l.B) == 0 {
		l.B = []float64{0}
	}
	if len(l.A) > 4 {
		return imgerr.Invalid("a", "number or array of up to 4 numbers", l.A)
	}
	if len(l.B) > 4 {
		return imgerr.Invalid("b", "number or array of up to 4 numbers", l.B)
	}
	if len(l.A) != 1 && len(l.B) != 1 && len(l.A) != len(l.B) {
		return imgerr.Configf("linear", "Expected a and b to be arrays of the same length")
	}
	for _, v := range l.A {
		if err := finiteNumber("a", v); err != nil {
			return err
		}
	}
	for _, v := range l.B {
		if err := finiteNumber("b", v); err != nil {
			return err
		}
	}
	return nil
}

func (l *Linear) Clone() Operation {
	return &Linear{A: append([]float64(nil), l.A...), B: append([]float64(nil), l.B...)}
}

// Coefficients returns a and b for channel i.
func (l *Linear) Coefficients(i int) (float64, float64) {
	a, b := l.A[0], l.B[0]
	if len(l.A) > i {
		a = l.A[i]
	}
	if len(l.B) > i {
		b = l.B[i]
	}
	return a, b
}

// Convolve applies a Width x Height kernel. Scale defaults to the kernel sum
// (or 1 when the sum is zero).
type Convolve struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Kernel []float64 `json:"kernel"`
	Scale  float64   `json:"scale,omitempty"`
	Offset float64   `json:"offset,omitempty"`
}

func (c *Convolve) Name() Name { return OpConvolve }

func (c *Convolve) Validate() error {
	if err := intInRange("width", c.Width, 3, 1001); err != nil {
		return err
	}
	if err := intInRange("height", c.Height, 3, 1001); err != nil {
		return err
	}
	if len(c.Kernel) != c.Width*c.Height {
		return imgerr.Invalid("kernel", fmt.Sprintf("%d kernel values", c.Width*c.Height), len(c.Kernel))
	}
	var sum float64
	for _, v := range c.Kernel {
		if err := finiteNumber("kernel", v); err != nil {
			return err
		}
		sum += v
	}
	if c.Scale == 0 {
		c.Scale = sum
		if c.Scale == 0 {
			c.Scale = 1
		}
	}
	if err := finiteNumber("scale", c.Scale); err != nil {
		return err
	}
	return finiteNumber("offset", c.Offset)
}

func (c *Convolve) Clone() Operation {
	cp := *c
	cp.Kernel = append([]float64(nil), c.Kernel...)
	return &cp
}

// Modulate adjusts brightness and saturation multiplicatively, rotates hue by
// Hue degrees and adds Lightness. Zero Brightness or Saturation leave the
// channel unchanged.
type Modulate struct {
	Brightness float64 `json:"brightness,omitempty"`
	Saturation float64 `json:"saturation,omitempty"`
	Hue        int     `json:"hue,omitempty"`
	Lightness  float64 `json:"lightness,omitempty"`
}

func (m *Modulate) Name() Name { return OpModulate }

func (m *Modulate) Validate() error {
	if m.Brightness < 0 || !finite(m.Brightness) {
		return imgerr.Invalid("brightness", "number above zero", m.Brightness)
	}
	if m.Saturation < 0 || !finite(m.Saturation) {
		return imgerr.Invalid("saturation", "number above zero", m.Saturation)
	}
	if m.Brightness == 0 {
		m.Brightness = 1
	}
	if m.Saturation == 0 {
		m.Saturation = 1
	}
	return finiteNumber("lightness", m.Lightness)
}

func (m *Modulate) Clone() Operation { c := *m; return &c }

// Flatten composites transparent pixels onto Background and drops alpha.
type Flatten struct {
	Background string `json:"background,omitempty"`
	bg         Colour
}

func (f *Flatten) Name() Name { return OpFlatten }

func (f *Flatten) Validate() error {
	bg, err := ParseColour("background", f.Background, Black)
	if err != nil {
		return err
	}
	f.bg = bg
	return nil
}

func (f *Flatten) Clone() Operation { c := *f; return &c }

// BackgroundColour is the colour transparent pixels are composited onto.
func (f *Flatten) BackgroundColour() Colour { return f.bg }
