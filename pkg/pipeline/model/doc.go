// Package model holds the declarative description of one image pipeline.
//
// An Options value accumulates three sections while a caller chains calls on a
// pipeline builder:
//   - the input descriptor (buffer, file, stream, raw pixels or a blank canvas)
//     together with decode hints such as density, page selection and the
//     input pixel limit;
//   - the operation list, split into an ordered geometry sequence (resize,
//     extract, rotate, flip, flop, affine, extend, trim) and a set of keyed
//     operations that overwrite their previous parameters;
//   - the output descriptor (format, encoder options, metadata flags, timeout).
//
// Every operation type validates and normalises itself in Validate. Apply only
// stores an operation after it validated, so a rejected call never leaves
// partial state behind.
//
// Finalize resolves the output format and produces an immutable Snapshot that
// the processing engine consumes. Format resolution order is: an explicit
// format call, then the extension of the output path, then the input format.
package model
