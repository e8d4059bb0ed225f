package engine

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/png"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/imgutil"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// Largest width or height each container can record.
var formatCeilings = map[imgutil.Format]int{
	imgutil.JPEG: 65535,
	imgutil.GIF:  65535,
	imgutil.PNG:  1<<31 - 1,
	imgutil.TIFF: 1<<31 - 1,
	imgutil.BMP:  1<<31 - 1,
}

func pngLevel(level int) png.CompressionLevel {
	switch {
	case level == 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// encode writes the frame in the snapshot's output format.
func encode(f *frame, out model.Output) ([]byte, error) {
	if limit, ok := formatCeilings[out.Format]; ok && (f.width() > limit || f.height() > limit) {
		return nil, imgerr.Inputf(imgerr.DimensionLimit,
			"Processed image is too large for the %s format (%dx%d)", out.Format, f.width(), f.height())
	}

	var buf bytes.Buffer
	var err error
	switch out.Format {
	case imgutil.JPEG:
		err = imaging.Encode(&buf, layout(flatten(f, model.Black)), imaging.JPEG, imaging.JPEGQuality(out.JPEG.Quality))
	case imgutil.PNG:
		err = imaging.Encode(&buf, layout(f), imaging.PNG, imaging.PNGCompressionLevel(pngLevel(out.PNG.CompressionLevel)))
	case imgutil.GIF:
		err = encodeGIF(&buf, f, out.GIF)
	case imgutil.TIFF:
		compression := tiff.Deflate
		if out.TIFF.Compression == model.TIFFNone {
			compression = tiff.Uncompressed
		}
		err = tiff.Encode(&buf, layout(f), &tiff.Options{Compression: compression, Predictor: out.TIFF.Predictor})
	case imgutil.BMP:
		err = bmp.Encode(&buf, layout(f))
	case imgutil.Raw:
		return rawBytes(f), nil
	default:
		return nil, imgerr.Inputf(imgerr.UnsupportedOutput, "Unsupported output format %s", out.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("%s encode: %w", out.Format, err)
	}
	return buf.Bytes(), nil
}

// layout returns the image type matching the frame's channels so encoders
// write grey or opaque images compactly.
func layout(f *frame) image.Image {
	switch {
	case f.grey && !f.alpha:
		g := image.NewGray(f.img.Rect)
		for i := 0; i < len(g.Pix); i++ {
			g.Pix[i] = f.img.Pix[i*4]
		}
		return g
	case !f.alpha:
		rgba := image.NewRGBA(f.img.Rect)
		copy(rgba.Pix, f.img.Pix)
		for i := 3; i < len(rgba.Pix); i += 4 {
			rgba.Pix[i] = 255
		}
		return rgba
	}
	return f.img
}

func gifDrawer(dither float64) draw.Drawer {
	if dither > 0 {
		return draw.FloydSteinberg
	}
	return draw.Src
}

func encodeGIF(buf *bytes.Buffer, f *frame, o model.GIFOptions) error {
	if f.pages <= 1 || f.pageHeight == 0 {
		return imaging.Encode(buf, f.img, imaging.GIF, imaging.GIFNumColors(o.Colours), imaging.GIFDrawer(gifDrawer(o.Dither)))
	}
	anim := &gif.GIF{LoopCount: f.loop}
	for i, page := range splitPages(f.img, f.pageHeight) {
		var one bytes.Buffer
		if err := gif.Encode(&one, page, &gif.Options{NumColors: o.Colours, Drawer: gifDrawer(o.Dither)}); err != nil {
			return err
		}
		decoded, err := gif.Decode(&one)
		if err != nil {
			return err
		}
		pal, ok := decoded.(*image.Paletted)
		if !ok {
			return fmt.Errorf("gif frame %d did not quantise", i)
		}
		delay := 0
		if i < len(f.delays) {
			delay = f.delays[i] / 10
		}
		anim.Image = append(anim.Image, pal)
		anim.Delay = append(anim.Delay, delay)
		anim.Disposal = append(anim.Disposal, gif.DisposalNone)
	}
	return gif.EncodeAll(buf, anim)
}

// outputChannels is the channel count the encoded output carries.
func outputChannels(f *frame, format imgutil.Format) int {
	switch format {
	case imgutil.JPEG:
		if f.grey {
			return 1
		}
		return 3
	case imgutil.GIF:
		if f.alpha {
			return 4
		}
		return 3
	}
	return f.channels()
}

// rawBytes returns interleaved 8-bit samples, one per channel.
func rawBytes(f *frame) []byte {
	ch := f.channels()
	n := f.width() * f.height()
	out := make([]byte, 0, n*ch)
	pix := f.img.Pix
	for i := 0; i < n; i++ {
		p := pix[i*4 : i*4+4]
		if f.grey {
			out = append(out, p[0])
		} else {
			out = append(out, p[0], p[1], p[2])
		}
		if f.alpha {
			out = append(out, p[3])
		}
	}
	return out
}
