package model

import (
	"time"

	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/imgutil"
)

// MaxTimeout bounds the processing timeout.
const MaxTimeout = time.Hour

// JPEGOptions configures the JPEG encoder.
type JPEGOptions struct {
	Quality int `json:"quality"`
}

// DefaultJPEGOptions returns quality 80.
func DefaultJPEGOptions() JPEGOptions { return JPEGOptions{Quality: 80} }

func (o JPEGOptions) Validate() error {
	return intInRange("quality", o.Quality, 1, 100)
}

// PNGOptions configures the PNG encoder. CompressionLevel is a zlib level.
type PNGOptions struct {
	CompressionLevel int `json:"compressionLevel"`
}

// DefaultPNGOptions returns compression level 6.
func DefaultPNGOptions() PNGOptions { return PNGOptions{CompressionLevel: 6} }

func (o PNGOptions) Validate() error {
	return intInRange("compressionLevel", o.CompressionLevel, 0, 9)
}

// GIFOptions configures palette quantisation.
type GIFOptions struct {
	Colours int     `json:"colours"`
	Dither  float64 `json:"dither"`
}

// DefaultGIFOptions returns a full 256 colour palette with dithering.
func DefaultGIFOptions() GIFOptions { return GIFOptions{Colours: 256, Dither: 1} }

func (o GIFOptions) Validate() error {
	if err := intInRange("colours", o.Colours, 2, 256); err != nil {
		return err
	}
	return floatInRange("dither", o.Dither, 0, 1)
}

// TIFF compression schemes.
const (
	TIFFNone    = "none"
	TIFFDeflate = "deflate"
)

// TIFFOptions configures the TIFF encoder.
type TIFFOptions struct {
	Compression string `json:"compression"`
	Predictor   bool   `json:"predictor,omitempty"`
}

// DefaultTIFFOptions returns deflate compression.
func DefaultTIFFOptions() TIFFOptions { return TIFFOptions{Compression: TIFFDeflate} }

func (o *TIFFOptions) Validate() error {
	if o.Compression == "" {
		o.Compression = TIFFDeflate
	}
	return oneOf("compression", o.Compression, []string{TIFFNone, TIFFDeflate})
}

// Output is the output descriptor.
type Output struct {
	Format       imgutil.Format `json:"format,omitempty"`
	Forced       bool           `json:"forced,omitempty"`
	JPEG         JPEGOptions    `json:"jpeg"`
	PNG          PNGOptions     `json:"png"`
	GIF          GIFOptions     `json:"gif"`
	TIFF         TIFFOptions    `json:"tiff"`
	KeepMetadata bool           `json:"keepMetadata,omitempty"`
	Timeout      time.Duration  `json:"timeout,omitempty"`
}

// NewOutput returns encoder defaults with no forced format.
func NewOutput() Output {
	return Output{
		JPEG: DefaultJPEGOptions(),
		PNG:  DefaultPNGOptions(),
		GIF:  DefaultGIFOptions(),
		TIFF: DefaultTIFFOptions(),
	}
}

var writableNames = []string{"jpeg", "png", "gif", "tiff", "bmp", "raw"}

// ParseOutputFormat resolves a caller-supplied format name to a writable format.
func ParseOutputFormat(name string) (imgutil.Format, error) {
	f, ok := imgutil.Parse(name)
	if !ok || !f.Writable() {
		return imgutil.Unknown, imgerr.Invalid("format", "one of: jpeg, png, gif, tiff, bmp, raw", name)
	}
	return f, nil
}

// ValidateTimeout checks a timeout in whole seconds; 0 disables it.
func ValidateTimeout(seconds int) error {
	return intInRange("timeout.seconds", seconds, 0, int(MaxTimeout/time.Second))
}

// FormatNames lists the writable format names.
func FormatNames() []string {
	return append([]string(nil), writableNames...)
}
