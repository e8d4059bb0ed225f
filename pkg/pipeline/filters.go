package pipeline

import "github.com/ironsheep/image-pipeline/pkg/pipeline/model"

// Keyed operations occupy one slot each: calling one again replaces its
// parameters and emits a warning. They run after the geometry sequence in
// model.FilterOrder.

// Blur applies a gaussian blur; sigma 0 selects a fast box blur.
func (p *Pipeline) Blur(sigma float64) *Pipeline {
	return p.Operation(&model.Blur{Sigma: sigma})
}

// Sharpen applies an unsharp mask; sigma 0 selects a mild fixed sharpen.
func (p *Pipeline) Sharpen(sigma float64) *Pipeline {
	return p.Operation(&model.Sharpen{Sigma: sigma})
}

func (p *Pipeline) Median(size int) *Pipeline {
	return p.Operation(&model.Median{Size: size})
}

// Gamma applies gamma correction; gammaOut 0 reuses gamma.
func (p *Pipeline) Gamma(gamma, gammaOut float64) *Pipeline {
	return p.Operation(&model.Gamma{Gamma: gamma, GammaOut: gammaOut})
}

func (p *Pipeline) Negate(on bool) *Pipeline {
	return p.toggle(on, &model.Negate{})
}

// NegateWith controls whether alpha is negated too.
func (p *Pipeline) NegateWith(n model.Negate) *Pipeline {
	return p.Operation(&n)
}

// Normalise stretches luminance to the full range using the 1st and 99th
// percentiles.
func (p *Pipeline) Normalise(on bool) *Pipeline {
	return p.toggle(on, &model.Normalise{})
}

// Normalize is an alias of Normalise.
func (p *Pipeline) Normalize(on bool) *Pipeline { return p.Normalise(on) }

func (p *Pipeline) NormaliseWith(n model.Normalise) *Pipeline {
	return p.Operation(&n)
}

// Threshold converts to black and white around level.
func (p *Pipeline) Threshold(level int) *Pipeline {
	return p.Operation(&model.Threshold{Level: level})
}

func (p *Pipeline) ThresholdWith(t model.Threshold) *Pipeline {
	return p.Operation(&t)
}

// Linear applies a*x + b per channel. The slices are copied.
func (p *Pipeline) Linear(a, b []float64) *Pipeline {
	return p.Operation(&model.Linear{A: a, B: b})
}

func (p *Pipeline) Convolve(c model.Convolve) *Pipeline {
	return p.Operation(&c)
}

func (p *Pipeline) Modulate(m model.Modulate) *Pipeline {
	return p.Operation(&m)
}

// Flatten composites transparency onto black.
func (p *Pipeline) Flatten(on bool) *Pipeline {
	return p.toggle(on, &model.Flatten{})
}

// FlattenWith composites transparency onto an explicit background.
func (p *Pipeline) FlattenWith(f model.Flatten) *Pipeline {
	return p.Operation(&f)
}

func (p *Pipeline) Tint(colour string) *Pipeline {
	return p.Operation(&model.Tint{Colour: colour})
}

func (p *Pipeline) Greyscale(on bool) *Pipeline {
	return p.toggle(on, &model.Greyscale{})
}

// Grayscale is an alias of Greyscale.
func (p *Pipeline) Grayscale(on bool) *Pipeline { return p.Greyscale(on) }

// Colourspace selects the output colour space, srgb or b-w.
func (p *Pipeline) Colourspace(space string) *Pipeline {
	return p.Operation(&model.Colourspace{Space: space})
}

// Colorspace is an alias of Colourspace.
func (p *Pipeline) Colorspace(space string) *Pipeline { return p.Colourspace(space) }

func (p *Pipeline) RemoveAlpha(on bool) *Pipeline {
	return p.toggle(on, &model.RemoveAlpha{})
}

// EnsureAlpha adds a fully opaque alpha channel when missing.
func (p *Pipeline) EnsureAlpha(on bool) *Pipeline {
	return p.toggle(on, &model.EnsureAlpha{Alpha: 1})
}

// EnsureAlphaWith adds an alpha channel of the given opacity.
func (p *Pipeline) EnsureAlphaWith(e model.EnsureAlpha) *Pipeline {
	return p.Operation(&e)
}

// ExtractChannel keeps one channel, by index or by name (red, green, blue,
// alpha).
func (p *Pipeline) ExtractChannel(channel interface{}) *Pipeline {
	if p.err != nil {
		return p
	}
	op, err := model.NewExtractChannel(channel)
	if err != nil {
		return p.fail(err)
	}
	return p.Operation(op)
}
