package engine

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

var anchors = map[model.Position]imaging.Anchor{
	model.PositionCentre:    imaging.Center,
	model.PositionNorth:     imaging.Top,
	model.PositionNorthEast: imaging.TopRight,
	model.PositionEast:      imaging.Right,
	model.PositionSouthEast: imaging.BottomRight,
	model.PositionSouth:     imaging.Bottom,
	model.PositionSouthWest: imaging.BottomLeft,
	model.PositionWest:      imaging.Left,
	model.PositionNorthWest: imaging.TopLeft,
}

func lanczos2(x float64) float64 {
	x = math.Abs(x)
	if x == 0 {
		return 1
	}
	if x < 2 {
		return math.Sin(math.Pi*x) * math.Sin(math.Pi*x/2) / (math.Pi * math.Pi * x * x / 2)
	}
	return 0
}

func resampleFilter(k model.Kernel) imaging.ResampleFilter {
	switch k {
	case model.KernelNearest:
		return imaging.NearestNeighbor
	case model.KernelLinear:
		return imaging.Linear
	case model.KernelCubic:
		return imaging.CatmullRom
	case model.KernelMitchell:
		return imaging.MitchellNetravali
	case model.KernelLanczos2:
		return imaging.ResampleFilter{Support: 2, Kernel: lanczos2}
	default:
		return imaging.Lanczos
	}
}

func applyGeometry(f *frame, op model.Operation) (*frame, error) {
	switch o := op.(type) {
	case *model.Resize:
		return resize(f, o), nil
	case *model.Extract:
		return extract(f, o)
	case *model.Rotate:
		return rotate(f, o), nil
	case *model.Flip:
		return f.with(imaging.FlipV(f.img)), nil
	case *model.Flop:
		return f.with(imaging.FlipH(f.img)), nil
	case *model.Affine:
		return affine(f, o), nil
	case *model.Extend:
		return extend(f, o), nil
	case *model.Trim:
		return trim(f, o), nil
	}
	return nil, fmt.Errorf("unsupported geometry operation %s", op.Name())
}

// targetSize resolves missing dimensions from the input aspect ratio.
func targetSize(w, h int, r *model.Resize) (int, int) {
	tw, th := r.Width, r.Height
	switch {
	case tw == 0:
		tw = int(math.Max(1, math.Round(float64(w)*float64(th)/float64(h))))
	case th == 0:
		th = int(math.Max(1, math.Round(float64(h)*float64(tw)/float64(w))))
	}
	return tw, th
}

// scaledSize returns the size the image is resampled to before any crop or
// letterbox, for the given fit.
func scaledSize(w, h, tw, th int, fit model.Fit) (int, int) {
	sx, sy := float64(tw)/float64(w), float64(th)/float64(h)
	var s float64
	switch fit {
	case model.FitFill:
		return tw, th
	case model.FitContain, model.FitInside:
		s = math.Min(sx, sy)
	default:
		s = math.Max(sx, sy)
	}
	return int(math.Max(1, math.Round(float64(w)*s))), int(math.Max(1, math.Round(float64(h)*s)))
}

func resize(f *frame, r *model.Resize) *frame {
	w, h := f.width(), f.height()
	tw, th := targetSize(w, h, r)
	sw, sh := scaledSize(w, h, tw, th, r.Fit)
	if r.WithoutEnlargement && sw >= w && sh >= h && (sw > w || sh > h) {
		return f
	}
	if r.WithoutReduction && sw <= w && sh <= h && (sw < w || sh < h) {
		return f
	}
	filter := resampleFilter(r.Kernel)

	switch r.Fit {
	case model.FitFill, model.FitInside, model.FitOutside:
		return f.with(imaging.Resize(f.img, sw, sh, filter))
	case model.FitContain:
		scaled := imaging.Resize(f.img, sw, sh, filter)
		bg := r.BackgroundColour()
		out := canvas(tw, th, bg.NRGBA())
		out = imaging.Paste(out, scaled, anchorPoint(tw, th, sw, sh, r.Position))
		nf := f.with(out)
		if !bg.Opaque() {
			nf.alpha = true
		}
		return nf
	default:
		return f.with(imaging.Fill(f.img, tw, th, anchors[r.Position], filter))
	}
}

// anchorPoint places an inner w x h box inside an outer box by gravity.
func anchorPoint(outerW, outerH, w, h int, p model.Position) image.Point {
	dx, dy := outerW-w, outerH-h
	x, y := dx/2, dy/2
	switch p {
	case model.PositionNorth, model.PositionNorthEast, model.PositionNorthWest:
		y = 0
	case model.PositionSouth, model.PositionSouthEast, model.PositionSouthWest:
		y = dy
	}
	switch p {
	case model.PositionWest, model.PositionNorthWest, model.PositionSouthWest:
		x = 0
	case model.PositionEast, model.PositionNorthEast, model.PositionSouthEast:
		x = dx
	}
	return image.Pt(x, y)
}

func extract(f *frame, e *model.Extract) (*frame, error) {
	w, h := f.width(), f.height()
	if e.Left+e.Width > w || e.Top+e.Height > h {
		return nil, fmt.Errorf("extract_area: bad extract area %dx%d+%d+%d for %dx%d image",
			e.Width, e.Height, e.Left, e.Top, w, h)
	}
	return f.with(imaging.Crop(f.img, image.Rect(e.Left, e.Top, e.Left+e.Width, e.Top+e.Height))), nil
}

// rotate turns clockwise. imaging rotates counter-clockwise.
func rotate(f *frame, r *model.Rotate) *frame {
	switch r.Angle {
	case 0:
		return f
	case 90:
		return f.with(imaging.Rotate270(f.img))
	case 180:
		return f.with(imaging.Rotate180(f.img))
	case 270:
		return f.with(imaging.Rotate90(f.img))
	}
	bg := r.BackgroundColour()
	nf := f.with(imaging.Rotate(f.img, 360-r.Angle, bg.NRGBA()))
	if !bg.Opaque() {
		nf.alpha = true
	}
	return nf
}

// orient applies an EXIF orientation value.
func orient(f *frame, orientation int) *frame {
	switch orientation {
	case 2:
		return f.with(imaging.FlipH(f.img))
	case 3:
		return f.with(imaging.Rotate180(f.img))
	case 4:
		return f.with(imaging.FlipV(f.img))
	case 5:
		return f.with(imaging.Transpose(f.img))
	case 6:
		return f.with(imaging.Rotate270(f.img))
	case 7:
		return f.with(imaging.Transverse(f.img))
	case 8:
		return f.with(imaging.Rotate90(f.img))
	}
	return f
}

var interpolators = map[string]draw.Interpolator{
	model.InterpolatorNearest:  draw.NearestNeighbor,
	model.InterpolatorBilinear: draw.BiLinear,
	model.InterpolatorBicubic:  draw.CatmullRom,
}

// affine maps input (x, y) to a*(x+idx) + b*(y+idy) + odx, c*(x+idx) + d*(y+idy) + ody,
// sizing the output to the transformed bounds.
func affine(f *frame, a *model.Affine) *frame {
	m := a.Matrix
	w, h := float64(f.width()), float64(f.height())
	tx := m[0]*a.IDX + m[1]*a.IDY + a.ODX
	ty := m[2]*a.IDX + m[3]*a.IDY + a.ODY

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range [][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x := m[0]*p[0] + m[1]*p[1] + tx
		y := m[2]*p[0] + m[3]*p[1] + ty
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	ow := int(math.Max(1, math.Ceil(maxX-minX)))
	oh := int(math.Max(1, math.Ceil(maxY-minY)))
	if ow > model.MaxDimension*4 {
		ow = model.MaxDimension * 4
	}
	if oh > model.MaxDimension*4 {
		oh = model.MaxDimension * 4
	}

	bg := a.BackgroundColour()
	out := canvas(ow, oh, bg.NRGBA())
	s2d := f64.Aff3{m[0], m[1], tx - minX, m[2], m[3], ty - minY}
	interp, ok := interpolators[a.Interpolator]
	if !ok {
		interp = draw.CatmullRom
	}
	interp.Transform(out, s2d, f.img, f.img.Bounds(), draw.Src, nil)
	nf := f.with(out)
	if !bg.Opaque() {
		nf.alpha = true
	}
	return nf
}

func extend(f *frame, e *model.Extend) *frame {
	if e.Top == 0 && e.Bottom == 0 && e.Left == 0 && e.Right == 0 {
		return f
	}
	bg := e.BackgroundColour()
	out := canvas(f.width()+e.Left+e.Right, f.height()+e.Top+e.Bottom, bg.NRGBA())
	out = imaging.Paste(out, f.img, image.Pt(e.Left, e.Top))
	nf := f.with(out)
	if !bg.Opaque() {
		nf.alpha = true
	}
	return nf
}

// trim crops away edges whose pixels differ from the background by no more
// than the threshold in every channel.
func trim(f *frame, t *model.Trim) *frame {
	img := f.img
	ref := img.NRGBAAt(0, 0)
	if bg, ok := t.BackgroundColour(); ok {
		ref = bg.NRGBA()
	}
	w, h := f.width(), f.height()
	minX, minY, maxX, maxY := w, h, -1, -1
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if similar(img.NRGBAAt(x, y), ref, t.Threshold) {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < 0 {
		return f
	}
	nf := f.with(imaging.Crop(img, image.Rect(minX, minY, maxX+1, maxY+1)))
	nf.trimmed = true
	nf.trimLeft, nf.trimTop = -minX, -minY
	return nf
}

func similar(c, ref color.NRGBA, threshold float64) bool {
	d := func(a, b uint8) float64 { return math.Abs(float64(a) - float64(b)) }
	return d(c.R, ref.R) <= threshold && d(c.G, ref.G) <= threshold &&
		d(c.B, ref.B) <= threshold && d(c.A, ref.A) <= threshold
}
