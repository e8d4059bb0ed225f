package pipeline

import (
	"time"

	"github.com/ironsheep/image-pipeline/pkg/imgutil"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// ToFormat forces the output format by name (jpeg, jpg, png, gif, tiff, tif,
// bmp, raw).
func (p *Pipeline) ToFormat(name string) *Pipeline {
	if p.err != nil {
		return p
	}
	f, err := model.ParseOutputFormat(name)
	if err != nil {
		return p.fail(err)
	}
	return p.force(f)
}

func (p *Pipeline) force(f imgutil.Format) *Pipeline {
	if w := p.opts.SetFormat(f); w != nil {
		p.warn(*w)
	}
	return p
}

// JPEG forces JPEG output with the given encoder options.
func (p *Pipeline) JPEG(o model.JPEGOptions) *Pipeline {
	if p.err != nil {
		return p
	}
	if err := o.Validate(); err != nil {
		return p.fail(err)
	}
	p.opts.Output.JPEG = o
	return p.force(imgutil.JPEG)
}

// PNG forces PNG output with the given encoder options.
func (p *Pipeline) PNG(o model.PNGOptions) *Pipeline {
	if p.err != nil {
		return p
	}
	if err := o.Validate(); err != nil {
		return p.fail(err)
	}
	p.opts.Output.PNG = o
	return p.force(imgutil.PNG)
}

// GIF forces GIF output with the given palette options.
func (p *Pipeline) GIF(o model.GIFOptions) *Pipeline {
	if p.err != nil {
		return p
	}
	if err := o.Validate(); err != nil {
		return p.fail(err)
	}
	p.opts.Output.GIF = o
	return p.force(imgutil.GIF)
}

// TIFF forces TIFF output with the given compression options.
func (p *Pipeline) TIFF(o model.TIFFOptions) *Pipeline {
	if p.err != nil {
		return p
	}
	if err := o.Validate(); err != nil {
		return p.fail(err)
	}
	p.opts.Output.TIFF = o
	return p.force(imgutil.TIFF)
}

func (p *Pipeline) BMP() *Pipeline {
	if p.err != nil {
		return p
	}
	return p.force(imgutil.BMP)
}

// Raw forces uncompressed interleaved 8-bit output.
func (p *Pipeline) Raw() *Pipeline {
	if p.err != nil {
		return p
	}
	return p.force(imgutil.Raw)
}

// KeepMetadata carries EXIF, XMP and ICC segments to the output where the
// formats allow it.
func (p *Pipeline) KeepMetadata(on bool) *Pipeline {
	if p.err == nil {
		p.opts.Output.KeepMetadata = on
	}
	return p
}

// Timeout bounds engine processing time; 0 disables the bound.
func (p *Pipeline) Timeout(seconds int) *Pipeline {
	if p.err != nil {
		return p
	}
	if err := model.ValidateTimeout(seconds); err != nil {
		return p.fail(err)
	}
	p.opts.Output.Timeout = time.Duration(seconds) * time.Second
	return p
}
