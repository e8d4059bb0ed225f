package model

import (
	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/imgutil"
)

// Info describes the output of one pipeline execution.
type Info struct {
	Format         imgutil.Format `json:"format"`
	Size           int            `json:"size"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	Channels       int            `json:"channels"`
	Premultiplied  bool           `json:"premultiplied"`
	Pages          int            `json:"pages,omitempty"`
	PageHeight     int            `json:"pageHeight,omitempty"`
	TrimOffsetLeft int            `json:"trimOffsetLeft,omitempty"`
	TrimOffsetTop  int            `json:"trimOffsetTop,omitempty"`
}

// Result is what the engine returns for a processed snapshot.
type Result struct {
	Data     []byte
	Info     Info
	Warnings []imgerr.Warning
}

// Metadata describes an input image without decoding its pixels where possible.
type Metadata struct {
	Format      imgutil.Format `json:"format"`
	Size        int            `json:"size,omitempty"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Space       string         `json:"space"`
	Channels    int            `json:"channels"`
	Depth       string         `json:"depth"`
	Density     float64        `json:"density,omitempty"`
	HasProfile  bool           `json:"hasProfile"`
	HasAlpha    bool           `json:"hasAlpha"`
	Orientation int            `json:"orientation,omitempty"`
	Exif        bool           `json:"exif"`
	Pages       int            `json:"pages,omitempty"`
	PageHeight  int            `json:"pageHeight,omitempty"`
	Loop        int            `json:"loop,omitempty"`
	Delay       []int          `json:"delay,omitempty"`
}

// ChannelStats holds per-channel pixel statistics.
type ChannelStats struct {
	Min        uint8   `json:"min"`
	Max        uint8   `json:"max"`
	Sum        float64 `json:"sum"`
	SquaresSum float64 `json:"squaresSum"`
	Mean       float64 `json:"mean"`
	Stdev      float64 `json:"stdev"`
	MinX       int     `json:"minX"`
	MinY       int     `json:"minY"`
	MaxX       int     `json:"maxX"`
	MaxY       int     `json:"maxY"`
}

// Stats summarises pixel values of the processed image.
type Stats struct {
	Channels []ChannelStats `json:"channels"`
	IsOpaque bool           `json:"isOpaque"`
	Entropy  float64        `json:"entropy"`
	Dominant Colour         `json:"dominant"`
	// DominantHex is the dominant colour as "#rrggbb".
	DominantHex string `json:"dominantHex"`
	// Palette lists the most frequent quantised colours, most common first.
	Palette []ColourShare `json:"palette,omitempty"`
}

// ColourShare is one palette entry of Stats.
type ColourShare struct {
	Hex        string  `json:"hex"`
	Percentage float64 `json:"percentage"`
	Colour     Colour  `json:"rgb"`
}
