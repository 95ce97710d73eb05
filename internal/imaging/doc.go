// Package imaging provides the image-side building blocks of the mosaic
// pipeline.
//
// This package implements colour averaging over pixel blocks, the bounded
// FIFO image cache, the target grid partition, tile composition and
// blending, plus the decode/encode glue around them. All operations work
// with standard Go image.Image types and use a coordinate system where
// (0,0) is at the top-left corner, X increases rightward, and Y increases
// downward.
//
// # Grid Partition
//
// A side count S splits an image of W×H pixels into S×S cells, row-major:
//   - Cell width is W/S and cell height is H/S (integer division)
//   - The last column and the last row absorb the remainder pixels
//   - Every pixel belongs to exactly one cell
//
// The target grid builder and the compositor share this partition, so a
// cell's colour and the tile pasted into it always describe the same
// pixels.
//
// # Colour Representation
//
// Average colours are ColorVector values: three float64 components (R, G,
// B) in 0-255. Pixels are sampled through color.Color.RGBA() and reduced to
// 8 bits before averaging.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. The remaining functions
// are stateless and can be called concurrently on different images.
//
// # Error Handling
//
// Failures that callers need to tell apart are typed:
//   - *DecodeError: bytes could not be decoded as an image
//   - *MissingResourceError: an identifier no longer resolves
//   - *DegenerateGridError: a side count that cannot produce a grid
//
// Use errors.As to inspect them; other errors wrap their cause with %w.
//
// # Performance Considerations
//
// Decoding dominates run time. ImageCache bounds the number of decoded
// images held at once; size it from the memory budget, not from the pool
// size, since results do not depend on it.
package imaging
