package pipeline

import "github.com/ironsheep/image-pipeline/pkg/pipeline/model"

// Geometry operations are applied in the order they are chained.

// Resize scales to width x height with the default cover fit. Zero for either
// dimension derives it from the aspect ratio.
func (p *Pipeline) Resize(width, height int) *Pipeline {
	return p.Operation(&model.Resize{Width: width, Height: height})
}

// ResizeWith resizes with explicit fit, position, kernel and enlargement
// settings.
func (p *Pipeline) ResizeWith(r model.Resize) *Pipeline {
	return p.Operation(&r)
}

// Extract crops the region at left, top of size width x height.
func (p *Pipeline) Extract(left, top, width, height int) *Pipeline {
	return p.Operation(&model.Extract{Left: left, Top: top, Width: width, Height: height})
}

// Rotate rotates clockwise by angle degrees, filling exposed corners black.
func (p *Pipeline) Rotate(angle float64) *Pipeline {
	return p.Operation(&model.Rotate{Angle: angle})
}

// RotateWith rotates with an explicit background colour.
func (p *Pipeline) RotateWith(r model.Rotate) *Pipeline {
	return p.Operation(&r)
}

// AutoOrient applies the EXIF orientation before any other geometry.
func (p *Pipeline) AutoOrient(on bool) *Pipeline {
	return p.toggle(on, &model.AutoOrient{})
}

// Flip mirrors top to bottom.
func (p *Pipeline) Flip(on bool) *Pipeline {
	return p.toggle(on, &model.Flip{})
}

// Flop mirrors left to right.
func (p *Pipeline) Flop(on bool) *Pipeline {
	return p.toggle(on, &model.Flop{})
}

func (p *Pipeline) Affine(a model.Affine) *Pipeline {
	return p.Operation(&a)
}

// Extend pads the edges.
func (p *Pipeline) Extend(e model.Extend) *Pipeline {
	return p.Operation(&e)
}

// Trim removes edges within threshold of the top-left pixel colour.
func (p *Pipeline) Trim(threshold float64) *Pipeline {
	return p.Operation(&model.Trim{Threshold: threshold})
}

// TrimWith trims against an explicit background colour.
func (p *Pipeline) TrimWith(t model.Trim) *Pipeline {
	return p.Operation(&t)
}
