package engine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"

	"github.com/ironsheep/image-pipeline/pkg/imgutil"
)

var (
	jpegExifHeader = []byte("Exif\x00\x00")
	jpegXmpHeader  = []byte("http://ns.adobe.com/xap/1.0/\x00")
	jpegICCHeader  = []byte("ICC_PROFILE\x00")
	jpegJFIFHeader = []byte("JFIF\x00")
	pngSignature   = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
)

// jpegSegment is one JPEG marker segment, marker plus payload without length.
type jpegSegment struct {
	marker  byte
	payload []byte
}

func (s jpegSegment) isExif() bool { return s.marker == 0xe1 && bytes.HasPrefix(s.payload, jpegExifHeader) }
func (s jpegSegment) isXMP() bool  { return s.marker == 0xe1 && bytes.HasPrefix(s.payload, jpegXmpHeader) }
func (s jpegSegment) isICC() bool  { return s.marker == 0xe2 && bytes.HasPrefix(s.payload, jpegICCHeader) }

// jpegSegments walks the header segments of a JPEG up to the first scan.
func jpegSegments(data []byte) ([]jpegSegment, error) {
	if len(data) < 2 || data[0] != 0xff || data[1] != 0xd8 {
		return nil, errors.New("invalid JPEG SOI")
	}
	var segs []jpegSegment
	i := 2
	for i < len(data) {
		if data[i] != 0xff {
			i++
			continue
		}
		for i < len(data) && data[i] == 0xff {
			i++
		}
		if i >= len(data) {
			break
		}
		marker := data[i]
		i++
		if marker == 0xd9 || marker == 0xda {
			break
		}
		if marker == 0x01 || (marker >= 0xd0 && marker <= 0xd7) {
			continue
		}
		if i+2 > len(data) {
			return segs, io.ErrUnexpectedEOF
		}
		segLen := int(binary.BigEndian.Uint16(data[i : i+2]))
		if segLen < 2 || i+segLen > len(data) {
			return segs, errors.New("invalid JPEG segment length")
		}
		segs = append(segs, jpegSegment{marker: marker, payload: data[i+2 : i+segLen]})
		i += segLen
	}
	return segs, nil
}

// insertSegments writes segs into an encoded JPEG straight after SOI and any
// JFIF segment.
func insertSegments(encoded []byte, segs []jpegSegment) []byte {
	if len(segs) == 0 || len(encoded) < 2 {
		return encoded
	}
	at := 2
	if own, err := jpegSegments(encoded); err == nil && len(own) > 0 && own[0].marker == 0xe0 {
		at += 4 + len(own[0].payload)
	}
	var buf bytes.Buffer
	buf.Grow(len(encoded) + 1024)
	buf.Write(encoded[:at])
	for _, s := range segs {
		if len(s.payload)+2 > 0xffff {
			continue
		}
		buf.Write([]byte{0xff, s.marker})
		_ = binary.Write(&buf, binary.BigEndian, uint16(len(s.payload)+2))
		buf.Write(s.payload)
	}
	buf.Write(encoded[at:])
	return buf.Bytes()
}

// jfifDensity returns the pixels per inch recorded in a JFIF APP0 segment.
func jfifDensity(segs []jpegSegment) float64 {
	for _, s := range segs {
		if s.marker != 0xe0 || !bytes.HasPrefix(s.payload, jpegJFIFHeader) || len(s.payload) < 12 {
			continue
		}
		units := s.payload[7]
		x := float64(binary.BigEndian.Uint16(s.payload[8:10]))
		switch units {
		case 1:
			return x
		case 2:
			return x * 2.54
		}
	}
	return 0
}

// pngInfo scans PNG chunks for an ICC profile, EXIF and physical density.
type pngInfo struct {
	hasICC  bool
	hasExif bool
	density float64
}

func scanPNG(data []byte) (pngInfo, error) {
	var info pngInfo
	if !bytes.HasPrefix(data, pngSignature) {
		return info, errors.New("invalid PNG signature")
	}
	i := len(pngSignature)
	for i+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[i : i+4]))
		name := string(data[i+4 : i+8])
		start := i + 8
		if length < 0 || start+length+4 > len(data) {
			return info, io.ErrUnexpectedEOF
		}
		chunk := data[start : start+length]
		switch name {
		case "iCCP":
			info.hasICC = true
		case "eXIf":
			info.hasExif = true
		case "pHYs":
			if len(chunk) >= 9 && chunk[8] == 1 {
				info.density = float64(binary.BigEndian.Uint32(chunk[0:4])) * 0.0254
			}
		}
		if name == "IEND" {
			break
		}
		i = start + length + 4
	}
	return info, nil
}

// exifOrientation reads the IFD0 orientation tag. It returns 1 when the image
// carries no EXIF block. A present but unreadable block is an error.
func exifOrientation(data []byte) (int, bool, error) {
	raw, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if errorsIsNoExif(err) {
			return 1, false, nil
		}
		return 1, false, err
	}
	tags, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return 1, true, err
	}
	for _, tag := range tags {
		if tag.TagName != "Orientation" || tag.IfdPath != "IFD" {
			continue
		}
		if v, ok := tag.Value.([]uint16); ok && len(v) > 0 && v[0] >= 1 && v[0] <= 8 {
			return int(v[0]), true, nil
		}
	}
	return 1, true, nil
}

func errorsIsNoExif(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exif.ErrNoExif) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no exif")
}

// hasProfile reports whether the encoded image carries an ICC profile.
func hasProfile(format imgutil.Format, data []byte) bool {
	switch format {
	case imgutil.JPEG:
		segs, _ := jpegSegments(data)
		for _, s := range segs {
			if s.isICC() {
				return true
			}
		}
	case imgutil.PNG:
		info, _ := scanPNG(data)
		return info.hasICC
	}
	return false
}

// carriedSegments selects the metadata segments copied to JPEG output.
// EXIF is left behind once pixels were re-oriented, its orientation no
// longer applies.
func carriedSegments(data []byte, ignoreICC, reoriented bool) []jpegSegment {
	segs, _ := jpegSegments(data)
	var keep []jpegSegment
	for _, s := range segs {
		switch {
		case s.isExif():
			if !reoriented {
				keep = append(keep, s)
			}
		case s.isXMP():
			keep = append(keep, s)
		case s.isICC():
			if !ignoreICC {
				keep = append(keep, s)
			}
		}
	}
	return keep
}
