package engine

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// mapPixels returns a copy of img with fn applied to every non-premultiplied
// pixel. bild's adjust.Apply works on premultiplied RGBA, which skews per
// channel arithmetic on translucent pixels.
func mapPixels(img *image.NRGBA, fn func(c color.NRGBA) color.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Rect)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		c := fn(color.NRGBA{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2], A: img.Pix[i+3]})
		out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return out
}

func applyFilter(f *frame, op model.Operation) (*frame, error) {
	switch o := op.(type) {
	case *model.Flatten:
		return flatten(f, o.BackgroundColour()), nil
	case *model.Gamma:
		// the darkening half runs before geometry, see Engine.Process
		return f.with(toNRGBA(adjust.Gamma(f.img, o.GammaOut))), nil
	case *model.Negate:
		return negate(f, o.Alpha), nil
	case *model.EnsureAlpha:
		return ensureAlpha(f, o.Alpha), nil
	case *model.Blur:
		if o.Sigma == 0 {
			return f.with(toNRGBA(blur.Box(f.img, 1))), nil
		}
		return f.with(imaging.Blur(f.img, o.Sigma)), nil
	case *model.Median:
		if o.Size <= 1 {
			return f, nil
		}
		return f.with(toNRGBA(effect.Median(f.img, float64(o.Size)/2))), nil
	case *model.Sharpen:
		if o.Sigma == 0 {
			return f.with(toNRGBA(effect.Sharpen(f.img))), nil
		}
		return f.with(imaging.Sharpen(f.img, o.Sigma)), nil
	case *model.Convolve:
		return convolve(f, o), nil
	case *model.Threshold:
		return threshold(f, o), nil
	case *model.Linear:
		return linear(f, o), nil
	case *model.Normalise:
		return normalise(f, o), nil
	case *model.Modulate:
		return modulate(f, o), nil
	case *model.Tint:
		return tint(f, o.TintColour()), nil
	case *model.Greyscale:
		return greyscale(f), nil
	case *model.ExtractChannel:
		return extractChannel(f, o.Channel)
	case *model.RemoveAlpha:
		nf := f.with(mapPixels(f.img, func(c color.NRGBA) color.NRGBA { c.A = 255; return c }))
		nf.alpha = false
		return nf, nil
	case *model.Colourspace:
		if o.Space == model.SpaceBW {
			return greyscale(f), nil
		}
		nf := *f
		nf.grey = false
		return &nf, nil
	}
	return nil, fmt.Errorf("unsupported operation %s", op.Name())
}

// preGamma darkens by 1/gamma ahead of resampling.
func preGamma(f *frame, g *model.Gamma) *frame {
	return f.with(toNRGBA(adjust.Gamma(f.img, 1/g.Gamma)))
}

func flatten(f *frame, bg model.Colour) *frame {
	if !f.alpha {
		return f
	}
	nf := f.with(mapPixels(f.img, func(c color.NRGBA) color.NRGBA {
		a := float64(c.A) / 255
		return color.NRGBA{
			R: clampUint8(float64(c.R)*a + float64(bg.R)*(1-a)),
			G: clampUint8(float64(c.G)*a + float64(bg.G)*(1-a)),
			B: clampUint8(float64(c.B)*a + float64(bg.B)*(1-a)),
			A: 255,
		}
	}))
	nf.alpha = false
	return nf
}

func negate(f *frame, withAlpha bool) *frame {
	inv := imaging.Invert(f.img)
	if withAlpha && f.alpha {
		for i := 3; i < len(inv.Pix); i += 4 {
			inv.Pix[i] = 255 - inv.Pix[i]
		}
	}
	return f.with(inv)
}

func ensureAlpha(f *frame, alpha float64) *frame {
	if f.alpha {
		return f
	}
	a := clampUint8(alpha * 255)
	nf := f.with(mapPixels(f.img, func(c color.NRGBA) color.NRGBA { c.A = a; return c }))
	nf.alpha = true
	return nf
}

func convolve(f *frame, c *model.Convolve) *frame {
	k := convolution.NewKernel(c.Width, c.Height)
	for i, v := range c.Kernel {
		k.Matrix[i] = v / c.Scale
	}
	out := convolution.Convolve(f.img, k, &convolution.Options{Bias: c.Offset, Wrap: false, KeepAlpha: true})
	return f.with(toNRGBA(out))
}

func threshold(f *frame, t *model.Threshold) *frame {
	level := uint8(t.Level)
	if t.PerChannel {
		cut := func(v uint8) uint8 {
			if v >= level {
				return 255
			}
			return 0
		}
		return f.with(mapPixels(f.img, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{R: cut(c.R), G: cut(c.G), B: cut(c.B), A: c.A}
		}))
	}
	grey := segment.Threshold(f.img, level)
	out := image.NewNRGBA(f.img.Rect)
	for i := 0; i < len(grey.Pix); i++ {
		v := grey.Pix[i]
		out.Pix[i*4], out.Pix[i*4+1], out.Pix[i*4+2], out.Pix[i*4+3] = v, v, v, f.img.Pix[i*4+3]
	}
	nf := f.with(out)
	nf.grey = true
	return nf
}

func linear(f *frame, l *model.Linear) *frame {
	// grey frames address the luminance as channel 0 and alpha as channel 1
	alphaIdx := 3
	if f.grey {
		alphaIdx = 1
	}
	ch := func(v uint8, i int) uint8 {
		a, b := l.Coefficients(i)
		return clampUint8(a*float64(v) + b)
	}
	touchAlpha := len(l.A) > alphaIdx || len(l.B) > alphaIdx
	return f.with(mapPixels(f.img, func(c color.NRGBA) color.NRGBA {
		out := c
		if f.grey {
			v := ch(c.R, 0)
			out.R, out.G, out.B = v, v, v
		} else {
			out.R, out.G, out.B = ch(c.R, 0), ch(c.G, 1), ch(c.B, 2)
		}
		if f.alpha && touchAlpha {
			out.A = ch(c.A, alphaIdx)
		}
		return out
	}))
}

// normalise stretches luminance so the lower and upper percentiles span 0..255.
func normalise(f *frame, n *model.Normalise) *frame {
	var hist [256]int
	total := 0
	for i := 0; i+3 < len(f.img.Pix); i += 4 {
		hist[luma(f.img.Pix[i], f.img.Pix[i+1], f.img.Pix[i+2])]++
		total++
	}
	if total == 0 {
		return f
	}
	percentile := func(p float64) int {
		target := int(math.Ceil(p / 100 * float64(total)))
		sum := 0
		for v, cnt := range hist {
			sum += cnt
			if sum >= target && sum > 0 {
				return v
			}
		}
		return 255
	}
	lo, hi := percentile(n.Lower), percentile(n.Upper)
	if hi <= lo {
		return f
	}
	scale := 255 / float64(hi-lo)
	stretch := func(v uint8) uint8 { return clampUint8((float64(v) - float64(lo)) * scale) }
	return f.with(mapPixels(f.img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: stretch(c.R), G: stretch(c.G), B: stretch(c.B), A: c.A}
	}))
}

func luma(r, g, b uint8) uint8 {
	return clampUint8(0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b))
}

func modulate(f *frame, m *model.Modulate) *frame {
	var img image.Image = f.img
	if m.Brightness != 1 {
		img = adjust.Brightness(img, m.Brightness-1)
	}
	if m.Saturation != 1 {
		img = adjust.Saturation(img, m.Saturation-1)
	}
	if m.Hue%360 != 0 {
		img = adjust.Hue(img, m.Hue%360)
	}
	out := toNRGBA(img)
	if m.Lightness != 0 {
		out = mapPixels(out, func(c color.NRGBA) color.NRGBA {
			l, a, b := toColorful(c).Lab()
			r := colorful.Lab(math.Min(1, math.Max(0, l+m.Lightness/100)), a, b).Clamped()
			return fromColorful(r, c.A)
		})
	}
	return f.with(out)
}

// tint keeps each pixel's Lab lightness and takes chroma from the tint colour.
func tint(f *frame, t model.Colour) *frame {
	_, ta, tb := toColorful(t.NRGBA()).Lab()
	nf := f.with(mapPixels(f.img, func(c color.NRGBA) color.NRGBA {
		l, _, _ := toColorful(c).Lab()
		return fromColorful(colorful.Lab(l, ta, tb).Clamped(), c.A)
	}))
	nf.grey = false
	return nf
}

func greyscale(f *frame) *frame {
	nf := f.with(imaging.Grayscale(f.img))
	nf.grey = true
	return nf
}

func extractChannel(f *frame, channel int) (*frame, error) {
	if channel >= f.channels() {
		return nil, fmt.Errorf("cannot extract channel %d from image with channels 0-%d", channel, f.channels()-1)
	}
	idx := channel
	if f.grey && channel == 1 {
		idx = 3
	}
	nf := f.with(mapPixels(f.img, func(c color.NRGBA) color.NRGBA {
		v := [4]uint8{c.R, c.G, c.B, c.A}[idx]
		return color.NRGBA{R: v, G: v, B: v, A: 255}
	}))
	nf.grey, nf.alpha = true, false
	return nf, nil
}

func toColorful(c color.NRGBA) colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

func fromColorful(c colorful.Color, a uint8) color.NRGBA {
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: a}
}
