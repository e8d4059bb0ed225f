package engine

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-pipeline/internal/log"
	"github.com/ironsheep/image-pipeline/pkg/governor"
	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/imgutil"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// Engine renders finalized pipeline snapshots. It is safe for concurrent use;
// concurrency limits are enforced by the governor, not by the engine.
type Engine struct {
	cache *Cache
	log   *logrus.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache shares a decoded input cache.
func WithCache(c *Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithLogger replaces the default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New returns an engine with its own cache sized to the governor defaults.
func New(opts ...Option) *Engine {
	e := &Engine{log: log.GetLogger()}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = NewCache(governor.DefaultCacheLimits())
	}
	return e
}

// Cache returns the decoded input cache, for attaching to a governor.
func (e *Engine) Cache() *Cache { return e.cache }

// Process decodes the input, applies auto-orientation, the geometry sequence
// and the keyed operations in order, and encodes the result. ctx is checked
// between operations; its error is returned as is.
func (e *Engine) Process(ctx context.Context, snap *model.Snapshot) (*model.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := e.load(ctx, snap)
	if err != nil {
		return nil, err
	}
	warnings := append([]imgerr.Warning(nil), src.warnings...)

	working := src.frame
	f := &working

	var gamma *model.Gamma
	for _, op := range snap.Filters {
		if g, ok := op.(*model.Gamma); ok {
			gamma = g
		}
	}
	if gamma != nil {
		f = preGamma(f, gamma)
	}

	reoriented := false
	if snap.AutoOrient && src.orientation > 1 {
		f = orient(f, src.orientation)
		reoriented = true
	}

	for _, op := range snap.Geometry {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f, err = applyGeometry(f, op); err != nil {
			return nil, err
		}
	}
	for _, op := range snap.Filters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f, err = applyFilter(f, op); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format := snap.Output.Format
	data, err := encode(f, snap.Output)
	if err != nil {
		return nil, err
	}
	if snap.Output.KeepMetadata {
		switch {
		case src.format == imgutil.JPEG && format == imgutil.JPEG:
			data = insertSegments(data, carriedSegments(src.data, snap.Input.IgnoreICC, reoriented))
		case src.hasExif:
			warnings = append(warnings, imgerr.Warnf("keepMetadata", "metadata is only carried from jpeg to jpeg, dropped for %s", format))
		}
	}

	info := model.Info{
		Format:   format,
		Size:     len(data),
		Width:    f.width(),
		Height:   f.height(),
		Channels: outputChannels(f, format),
	}
	if f.pages > 1 {
		info.Pages, info.PageHeight = f.pages, f.pageHeight
	}
	if f.trimmed {
		info.TrimOffsetLeft, info.TrimOffsetTop = f.trimLeft, f.trimTop
	}
	e.log.WithFields(logrus.Fields{
		"format": format,
		"width":  info.Width,
		"height": info.Height,
		"size":   info.Size,
	}).Debug("engine encoded output")
	return &model.Result{Data: data, Info: info, Warnings: warnings}, nil
}

// Stats decodes the input and reports pixel statistics. Operations recorded
// on the snapshot are not applied.
func (e *Engine) Stats(ctx context.Context, snap *model.Snapshot) (*model.Stats, error) {
	src, err := e.load(ctx, snap)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	working := src.frame
	return computeStats(&working), nil
}

// Metadata describes the input from its header. Only animated GIFs are fully
// decoded, to count frames.
func (e *Engine) Metadata(ctx context.Context, snap *model.Snapshot) (*model.Metadata, error) {
	in := snap.Input
	switch in.Kind {
	case model.InputCreate:
		c := in.Create
		return &model.Metadata{
			Width: c.Width, Height: c.Height, Channels: c.Channels, Space: model.SpaceSRGB,
			Depth: model.DepthUchar, Density: in.Density, HasAlpha: c.Channels == 4,
		}, nil
	case model.InputRaw:
		r := in.Raw
		space := model.SpaceSRGB
		if r.Channels <= 2 {
			space = model.SpaceBW
		}
		return &model.Metadata{
			Format: imgutil.Raw, Size: len(in.Buffer), Width: r.Width, Height: r.Height,
			Channels: r.Channels, Space: space, Depth: r.Depth, Density: in.Density,
			HasAlpha: r.Channels == 2 || r.Channels == 4, PageHeight: r.PageHeight,
		}, nil
	}

	data := in.Buffer
	if in.Kind == model.InputFile {
		var err error
		if data, err = os.ReadFile(in.Path); err != nil {
			return nil, imgerr.WrapInput(imgerr.MissingFile, err, "Input file is missing: "+in.Path)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	format := snap.InputFormat
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

	md := &model.Metadata{
		Format: format, Size: len(data), Width: cfg.Width, Height: cfg.Height,
		Space: model.SpaceSRGB, Depth: model.DepthUchar,
		HasProfile: hasProfile(format, data),
	}
	md.Channels, md.HasAlpha = modelChannels(cfg.ColorModel)
	switch cfg.ColorModel {
	case color.GrayModel, color.Gray16Model:
		md.Space = model.SpaceBW
	case color.CMYKModel:
		md.Space = "cmyk"
	}
	switch cfg.ColorModel {
	case color.Gray16Model, color.RGBA64Model, color.NRGBA64Model:
		md.Depth = model.DepthUshort
	}

	switch format {
	case imgutil.JPEG:
		segs, _ := jpegSegments(data)
		md.Density = jfifDensity(segs)
	case imgutil.PNG:
		if info, err := scanPNG(data); err == nil {
			md.Density = info.density
		}
	case imgutil.GIF:
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, imgerr.WrapInput(imgerr.CorruptInput, err, "Input buffer has corrupt image data")
		}
		md.Pages = len(g.Image)
		md.Loop = g.LoopCount
		if md.Pages > 1 {
			md.PageHeight = cfg.Height
			for _, d := range g.Delay {
				md.Delay = append(md.Delay, d*10)
			}
		}
	}
	if format != imgutil.GIF && format != imgutil.BMP {
		orientation, found, err := exifOrientation(data)
		if err == nil || !in.FailOnError {
			md.Exif = found
			if found && orientation > 1 {
				md.Orientation = orientation
			}
		} else {
			return nil, imgerr.WrapInput(imgerr.CorruptInput, err, "Input has unreadable EXIF data")
		}
	}
	return md, nil
}

func modelChannels(m color.Model) (int, bool) {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return 1, false
	case color.NRGBAModel, color.NRGBA64Model:
		return 4, true
	case color.CMYKModel:
		return 4, false
	case color.YCbCrModel, color.RGBAModel, color.RGBA64Model:
		return 3, false
	}
	if p, ok := m.(color.Palette); ok {
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return 4, true
			}
		}
	}
	return 3, false
}
