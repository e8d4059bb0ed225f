// Package engine is the pure Go processing engine behind pipelines.
//
// The engine receives a finalized model.Snapshot and performs the whole
// execution in one call: it decodes the input (through a bounded cache of
// decoded sources), applies EXIF auto-orientation, runs the geometry
// sequence in order followed by the keyed operations in their fixed order,
// and encodes the result.
//
// # Libraries
//
// Resampling, cropping, rotation and the JPEG, PNG and GIF encoders come from
// github.com/disintegration/imaging. Box blur, median, convolution, threshold
// and the brightness, saturation, hue and gamma adjustments come from
// github.com/anthonynsimon/bild. Lab conversions for tint and lightness use
// github.com/lucasb-eyer/go-colorful. golang.org/x/image supplies the affine
// transform, TIFF and BMP encoding and WebP, TIFF and BMP decoding. EXIF
// orientation is read with github.com/dsoprea/go-exif/v3.
//
// # Limits
//
// Inputs are rejected before pixel decoding when their header exceeds the
// snapshot's pixel limit or MaxInputDimension on either side. Outputs are
// rejected when wider or taller than their container allows (65535 for JPEG
// and GIF).
//
// # Cancellation
//
// The context is checked before decoding and between operations. When it is
// done the engine stops and returns ctx.Err(); the caller maps that to a
// timeout or cancellation.
package engine
