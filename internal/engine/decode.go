package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/imgutil"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// MaxInputDimension is the largest input width or height decoded unless the
// input is marked unlimited.
const MaxInputDimension = 0xFFFF

// source is a decoded input. It is shared through the cache and read only.
type source struct {
	frame       frame
	format      imgutil.Format
	orientation int
	hasExif     bool
	// data keeps encoded JPEG bytes for metadata carry-over.
	data     []byte
	warnings []imgerr.Warning
}

func (s *source) size() int64 {
	return int64(len(s.frame.img.Pix)) + int64(len(s.data))
}

// load resolves and decodes the snapshot input, consulting the cache for
// encoded buffers and files.
func (e *Engine) load(ctx context.Context, snap *model.Snapshot) (*source, error) {
	in := snap.Input
	switch in.Kind {
	case model.InputCreate:
		return createSource(in.Create)
	case model.InputRaw:
		return rawSource(in, snap.PixelLimit)
	case model.InputFile:
		path, err := filepath.Abs(in.Path)
		if err != nil {
			path = in.Path
		}
		fi, err := os.Stat(path)
		if err != nil {
			return nil, imgerr.WrapInput(imgerr.MissingFile, err, "Input file is missing: "+in.Path)
		}
		key := fileKey(path, fi, in)
		if src, ok := e.cache.Get(key); ok {
			e.log.WithField("path", in.Path).Debug("decoded input served from cache")
			return src, checkPixels(src.frame.width(), src.frame.height(), snap.PixelLimit, in.Unlimited)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, imgerr.WrapInput(imgerr.MissingFile, err, "Input file could not be read: "+in.Path)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := decodeSource(data, snap.InputFormat, in, snap.PixelLimit)
		if err != nil {
			return nil, err
		}
		e.cache.Put(key, src, true)
		return src, nil
	default:
		key := bufferKey(in.Buffer, in)
		if src, ok := e.cache.Get(key); ok {
			e.log.Debug("decoded input served from cache")
			return src, checkPixels(src.frame.width(), src.frame.height(), snap.PixelLimit, in.Unlimited)
		}
		src, err := decodeSource(in.Buffer, snap.InputFormat, in, snap.PixelLimit)
		if err != nil {
			return nil, err
		}
		e.cache.Put(key, src, false)
		return src, nil
	}
}

func checkPixels(w, h int, limit int64, unlimited bool) error {
	if !unlimited && (w > MaxInputDimension || h > MaxInputDimension) {
		return imgerr.Inputf(imgerr.DimensionLimit, "Input image exceeds dimension limit (%dx%d)", w, h)
	}
	if limit > 0 && int64(w)*int64(h) > limit {
		return imgerr.Inputf(imgerr.PixelLimit, "Input image exceeds pixel limit")
	}
	return nil
}

// decodeWarning fails the decode when failOnError is set and records a
// warning otherwise.
func decodeWarning(src *source, failOnError bool, err error, msg string) error {
	if failOnError {
		return imgerr.WrapInput(imgerr.CorruptInput, err, msg)
	}
	src.warnings = append(src.warnings, imgerr.Warnf("input", "%s: %v", msg, err))
	return nil
}

func decodeSource(data []byte, format imgutil.Format, in model.Input, limit int64) (*source, error) {
	if len(data) == 0 {
		return nil, imgerr.Inputf(imgerr.EmptyInput, "Input buffer is empty")
	}
	if format == imgutil.Unknown {
		format = imgutil.Detect(data)
	}
	if format == imgutil.Unknown {
		return nil, imgerr.Inputf(imgerr.UnsupportedInput, "Input buffer contains unsupported image format")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, imgerr.WrapInput(imgerr.CorruptInput, err, "Input buffer has corrupt header")
	}
	if err := checkPixels(cfg.Width, cfg.Height, limit, in.Unlimited); err != nil {
		return nil, err
	}

	src := &source{format: format, orientation: 1}
	if format == imgutil.GIF && (in.Page > 0 || in.Pages != 1) {
		f, available, err := decodeGIFPages(data, in)
		if err != nil {
			return nil, err
		}
		if in.Pages != -1 && in.Page+in.Pages > available {
			short := fmt.Errorf("requested %d pages from page %d, input has %d", in.Pages, in.Page, available)
			if err := decodeWarning(src, in.FailOnError, short, "Input has fewer pages than requested"); err != nil {
				return nil, err
			}
		}
		if err := checkPixels(f.width(), f.height(), limit, true); err != nil {
			return nil, err
		}
		src.frame = *f
	} else {
		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, imgerr.WrapInput(imgerr.CorruptInput, err, "Input buffer has corrupt image data")
		}
		grey, alpha := describe(img)
		src.frame = frame{img: toNRGBA(img), grey: grey, alpha: alpha, pages: 1}
	}

	if format != imgutil.GIF && format != imgutil.BMP {
		orientation, found, err := exifOrientation(data)
		src.hasExif = found
		if err != nil {
			if err := decodeWarning(src, in.FailOnError, err, "Input has unreadable EXIF data"); err != nil {
				return nil, err
			}
		}
		src.orientation = orientation
	}
	if format == imgutil.JPEG {
		src.data = data
	}
	return src, nil
}

// decodeGIFPages composites the selected animation frames and stacks them
// vertically. It also returns the number of frames in the input.
func decodeGIFPages(data []byte, in model.Input) (*frame, int, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, 0, imgerr.WrapInput(imgerr.CorruptInput, err, "Input buffer has corrupt image data")
	}
	n := len(g.Image)
	if in.Page >= n {
		return nil, n, fmt.Errorf("page %d out of range, input has %d pages", in.Page, n)
	}
	count := in.Pages
	if count == -1 || in.Page+count > n {
		count = n - in.Page
	}

	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}
	bounds := image.Rect(0, 0, w, h)
	screen := image.NewNRGBA(bounds)
	var pages []*image.NRGBA
	var delays []int
	alpha := false
	for i := 0; i < in.Page+count; i++ {
		fr := g.Image[i]
		var previous *image.NRGBA
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			previous = imaging.Clone(screen)
		}
		draw.Draw(screen, fr.Bounds(), fr, fr.Bounds().Min, draw.Over)
		if i >= in.Page {
			pages = append(pages, imaging.Clone(screen))
			delay := 0
			if i < len(g.Delay) {
				delay = g.Delay[i] * 10
			}
			delays = append(delays, delay)
			if _, a := describe(fr); a {
				alpha = true
			}
		}
		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(screen, fr.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			screen = previous
		}
	}

	f := &frame{img: stackPages(pages), alpha: alpha, pages: count, delays: delays, loop: g.LoopCount}
	if count > 1 {
		f.pageHeight = h
	}
	return f, n, nil
}

func createSource(c *model.CreateInput) (*source, error) {
	bg := c.BackgroundColour()
	alpha := c.Channels == 4
	if !alpha {
		bg.A = 255
	}
	img := canvas(c.Width, c.Height, bg.NRGBA())
	return &source{frame: frame{img: img, alpha: alpha, pages: 1}, orientation: 1}, nil
}

func rawSource(in model.Input, limit int64) (*source, error) {
	r := in.Raw
	if err := checkPixels(r.Width, r.Height, limit, in.Unlimited); err != nil {
		return nil, err
	}
	bps := r.BytesPerSample()
	want := r.Width * r.Height * r.Channels * bps
	if len(in.Buffer) != want {
		return nil, imgerr.Inputf(imgerr.CorruptInput,
			"Raw input has %d bytes, expected %d for %dx%d with %d channels of %s",
			len(in.Buffer), want, r.Width, r.Height, r.Channels, r.Depth)
	}

	sample := func(i int) uint8 {
		switch r.Depth {
		case model.DepthUshort:
			return uint8(binary.LittleEndian.Uint16(in.Buffer[i*2:]) >> 8)
		case model.DepthFloat:
			v := math.Float32frombits(binary.LittleEndian.Uint32(in.Buffer[i*4:]))
			return clampUint8(float64(v) * 255)
		default:
			return in.Buffer[i]
		}
	}

	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	ch := r.Channels
	for p := 0; p < r.Width*r.Height; p++ {
		base := p * ch
		var c [4]uint8
		switch ch {
		case 1:
			v := sample(base)
			c = [4]uint8{v, v, v, 255}
		case 2:
			v := sample(base)
			c = [4]uint8{v, v, v, sample(base + 1)}
		case 3:
			c = [4]uint8{sample(base), sample(base + 1), sample(base + 2), 255}
		default:
			c = [4]uint8{sample(base), sample(base + 1), sample(base + 2), sample(base + 3)}
		}
		if r.Premultiplied && c[3] > 0 && c[3] < 255 {
			for k := 0; k < 3; k++ {
				c[k] = clampUint8(float64(c[k]) * 255 / float64(c[3]))
			}
		}
		copy(img.Pix[p*4:p*4+4], c[:])
	}

	f := frame{img: img, grey: ch <= 2, alpha: ch == 2 || ch == 4, pages: 1}
	if r.PageHeight > 0 && r.PageHeight < r.Height {
		f.pages = r.Height / r.PageHeight
		f.pageHeight = r.PageHeight
	}
	return &source{frame: f, orientation: 1}, nil
}

func clampUint8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
