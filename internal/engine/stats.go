package engine

import (
	"math"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// PaletteSize is the number of entries reported in Stats.Palette.
const PaletteSize = 5

// computeStats derives per-channel statistics, entropy and dominant colours.
//
// Channel statistics follow the frame layout: one luminance channel for grey
// frames, red, green and blue otherwise, followed by alpha when present. The
// standard deviation is the sample deviation.
//
// # Colour Quantization
//
// Dominant colours are found by quantizing each 8-bit component to 16 levels
// and counting occurrences, so colours within 16 units of each other per
// component fall into the same bin:
//
//	quantized = (original / 16) * 16
func computeStats(f *frame) *model.Stats {
	idx := []int{0, 1, 2}
	if f.grey {
		idx = []int{0}
	}
	if f.alpha {
		idx = append(idx, 3)
	}

	w, h := f.width(), f.height()
	n := float64(w * h)
	chans := make([]model.ChannelStats, len(idx))
	for i := range chans {
		chans[i].Min = 255
	}

	var hist [256]float64
	bins := make(map[uint32]int)
	opaque := true
	pix := f.img.Pix
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := pix[(y*w+x)*4 : (y*w+x)*4+4]
			for i, c := range idx {
				v := p[c]
				cs := &chans[i]
				if v < cs.Min || (x == 0 && y == 0) {
					cs.Min, cs.MinX, cs.MinY = v, x, y
				}
				if v > cs.Max || (x == 0 && y == 0) {
					cs.Max, cs.MaxX, cs.MaxY = v, x, y
				}
				fv := float64(v)
				cs.Sum += fv
				cs.SquaresSum += fv * fv
			}
			if p[3] != 255 {
				opaque = false
			}
			hist[luma(p[0], p[1], p[2])]++
			key := uint32(p[0]/16*16)<<16 | uint32(p[1]/16*16)<<8 | uint32(p[2]/16*16)
			bins[key]++
		}
	}

	for i := range chans {
		cs := &chans[i]
		cs.Mean = cs.Sum / n
		if n > 1 {
			cs.Stdev = math.Sqrt(math.Max(0, (cs.SquaresSum-cs.Sum*cs.Sum/n)/(n-1)))
		}
	}

	var entropy float64
	for _, c := range hist {
		if c == 0 {
			continue
		}
		p := c / n
		entropy -= p * math.Log2(p)
	}

	palette := dominantColours(bins, int(n), PaletteSize)
	stats := &model.Stats{
		Channels: chans,
		IsOpaque: opaque || !f.alpha,
		Entropy:  entropy,
		Palette:  palette,
	}
	if len(palette) > 0 {
		stats.Dominant = palette[0].Colour
		stats.DominantHex = palette[0].Hex
	}
	return stats
}

// dominantColours returns the count most frequent bins.
func dominantColours(bins map[uint32]int, total, count int) []model.ColourShare {
	if total == 0 {
		return nil
	}
	shares := make([]model.ColourShare, 0, len(bins))
	for key, cnt := range bins {
		c := model.Colour{R: uint8(key >> 16), G: uint8(key >> 8), B: uint8(key), A: 255}
		hex := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}.Hex()
		shares = append(shares, model.ColourShare{
			Hex:        hex,
			Percentage: float64(cnt) / float64(total) * 100,
			Colour:     c,
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Percentage != shares[j].Percentage {
			return shares[i].Percentage > shares[j].Percentage
		}
		return shares[i].Hex < shares[j].Hex
	})
	if len(shares) > count {
		shares = shares[:count]
	}
	return shares
}
