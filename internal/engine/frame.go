package engine

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

// frame is the working image plus the channel layout it represents. Pixels
// are always held as non-premultiplied 8-bit RGBA; grey frames keep R=G=B.
type frame struct {
	img   *image.NRGBA
	grey  bool
	alpha bool

	pages      int
	pageHeight int
	delays     []int
	loop       int

	trimmed  bool
	trimLeft int
	trimTop  int
}

func (f *frame) channels() int {
	n := 3
	if f.grey {
		n = 1
	}
	if f.alpha {
		n++
	}
	return n
}

func (f *frame) width() int  { return f.img.Bounds().Dx() }
func (f *frame) height() int { return f.img.Bounds().Dy() }

// with returns a copy of f holding img. Multi-page layout is dropped when the
// height no longer divides into pages.
func (f *frame) with(img *image.NRGBA) *frame {
	c := *f
	c.img = img
	if c.pages > 1 && (c.pageHeight == 0 || img.Bounds().Dy() != c.pageHeight*c.pages) {
		c.pages, c.pageHeight, c.delays = 1, 0, nil
	}
	return &c
}

// toNRGBA converts any decoded or filtered image to a zero-origin NRGBA.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}

// describe derives the channel layout of a decoded image. Decoders return
// NRGBA only for sources that carry an alpha channel.
func describe(img image.Image) (grey, alpha bool) {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16:
		return true, false
	case *image.NRGBA, *image.NRGBA64:
		return false, true
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return false, true
			}
		}
		return false, false
	case *image.YCbCr, *image.CMYK:
		return false, false
	}
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return false, !o.Opaque()
	}
	return false, false
}

// canvas returns a w x h image filled with c.
func canvas(w, h int, c color.NRGBA) *image.NRGBA {
	return imaging.New(w, h, c)
}

// stackPages draws frames one under another into one tall image.
func stackPages(pages []*image.NRGBA) *image.NRGBA {
	if len(pages) == 1 {
		return pages[0]
	}
	w, h := pages[0].Bounds().Dx(), pages[0].Bounds().Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h*len(pages)))
	for i, p := range pages {
		draw.Draw(out, image.Rect(0, i*h, w, (i+1)*h), p, p.Bounds().Min, draw.Src)
	}
	return out
}

// splitPages cuts a stacked image back into frames.
func splitPages(img *image.NRGBA, pageHeight int) []*image.NRGBA {
	h := img.Bounds().Dy()
	if pageHeight <= 0 || h%pageHeight != 0 {
		return []*image.NRGBA{img}
	}
	out := make([]*image.NRGBA, 0, h/pageHeight)
	for y := 0; y < h; y += pageHeight {
		out = append(out, imaging.Crop(img, image.Rect(0, y, img.Bounds().Dx(), y+pageHeight)))
	}
	return out
}
