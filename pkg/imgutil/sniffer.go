// Package imgutil identifies image formats from magic bytes and file names.
package imgutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies an image container format.
type Format string

const (
	Unknown Format = ""
	JPEG    Format = "jpeg"
	PNG     Format = "png"
	GIF     Format = "gif"
	WebP    Format = "webp"
	TIFF    Format = "tiff"
	BMP     Format = "bmp"
	Raw     Format = "raw"
)

// HeaderSize is the number of leading bytes Detect needs to recognise every format.
const HeaderSize = 12

func (f Format) String() string {
	if f == Unknown {
		return "unknown"
	}
	return string(f)
}

// Writable reports whether the engine can encode this format.
func (f Format) Writable() bool {
	switch f {
	case JPEG, PNG, GIF, TIFF, BMP, Raw:
		return true
	default:
		return false
	}
}

// Formats lists every known format in a stable order.
func Formats() []Format {
	return []Format{JPEG, PNG, GIF, WebP, TIFF, BMP, Raw}
}

var (
	pngSig    = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	jpegSig   = []byte{0xff, 0xd8, 0xff}
	tiffSigLE = []byte{0x49, 0x49, 0x2a, 0x00}
	tiffSigBE = []byte{0x4d, 0x4d, 0x00, 0x2a}
	gif87Sig  = []byte("GIF87a")
	gif89Sig  = []byte("GIF89a")
	riffSig   = []byte("RIFF")
	webpSig   = []byte("WEBP")
	bmpSig    = []byte("BM")
)

// ErrShortHeader is returned when fewer bytes than any signature are available.
var ErrShortHeader = errors.New("header too short")

// Detect inspects the leading bytes of an encoded image for known signatures.
func Detect(header []byte) Format {
	switch {
	case hasPrefix(header, jpegSig):
		return JPEG
	case hasPrefix(header, pngSig):
		return PNG
	case hasPrefix(header, gif87Sig), hasPrefix(header, gif89Sig):
		return GIF
	case hasPrefix(header, riffSig) && len(header) >= 12 && hasPrefix(header[8:], webpSig):
		return WebP
	case hasPrefix(header, tiffSigLE), hasPrefix(header, tiffSigBE):
		return TIFF
	case hasPrefix(header, bmpSig) && len(header) >= 6:
		return BMP
	}
	return Unknown
}

// SniffFile reads the first bytes of a file to determine its format.
func SniffFile(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Unknown, err
	}
	defer f.Close()

	return SniffReader(f)
}

// SniffReader reads up to HeaderSize bytes from r and determines the format.
func SniffReader(r io.Reader) (Format, error) {
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return Unknown, ErrShortHeader
		}
		return Unknown, err
	}

	return Detect(header[:n]), nil
}

// FromExtension infers the output format from a file name.
func FromExtension(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".jpe":
		return JPEG, true
	case ".png":
		return PNG, true
	case ".gif":
		return GIF, true
	case ".webp":
		return WebP, true
	case ".tif", ".tiff":
		return TIFF, true
	case ".bmp":
		return BMP, true
	case ".raw":
		return Raw, true
	}
	return Unknown, false
}

// Parse normalises a caller-supplied format name such as "jpg" or "TIF".
func Parse(name string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jpeg", "jpg", "jpe":
		return JPEG, true
	case "png":
		return PNG, true
	case "gif":
		return GIF, true
	case "webp":
		return WebP, true
	case "tiff", "tif":
		return TIFF, true
	case "bmp":
		return BMP, true
	case "raw":
		return Raw, true
	}
	return Unknown, false
}

// MimeType returns the media type for the format.
func (f Format) MimeType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	case GIF:
		return "image/gif"
	case WebP:
		return "image/webp"
	case TIFF:
		return "image/tiff"
	case BMP:
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}

func hasPrefix(buf, prefix []byte) bool {
	if len(buf) < len(prefix) {
		return false
	}
	for i := range prefix {
		if buf[i] != prefix[i] {
			return false
		}
	}
	return true
}
