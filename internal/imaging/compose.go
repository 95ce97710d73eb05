package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// ParseBackground reads a canvas color written as #RGB, #RRGGBB or
// #RRGGBBAA. The leading '#' is optional.
func ParseBackground(s string) (color.NRGBA, error) {
	digits := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(digits) == 3 {
		digits = string([]byte{digits[0], digits[0], digits[1], digits[1], digits[2], digits[2]})
	}
	if len(digits) == 6 {
		digits += "ff"
	}
	if len(digits) != 8 {
		return color.NRGBA{}, fmt.Errorf("background %q: want #RGB, #RRGGBB or #RRGGBBAA", s)
	}
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("background %q: not a hex color", s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// ImageSource supplies decoded source images by identifier. *ImageCache
// satisfies it.
type ImageSource interface {
	Get(id string) (image.Image, error)
}

// Resample names the filter used to scale a source image into its cell.
type Resample string

// Supported resample filters. Every filter scales to the exact cell size
// without cropping, so a source whose aspect ratio differs from the cell is
// stretched the same way everywhere.
const (
	ResampleNearest Resample = "nearest"
	ResampleBox     Resample = "box"
	ResampleLinear  Resample = "linear"
	ResampleLanczos Resample = "lanczos"
)

// Filter returns the disintegration/imaging filter for r. An empty value
// selects the area-preserving box filter.
func (r Resample) Filter() (imaging.ResampleFilter, error) {
	switch r {
	case "", ResampleBox:
		return imaging.Box, nil
	case ResampleNearest:
		return imaging.NearestNeighbor, nil
	case ResampleLinear:
		return imaging.Linear, nil
	case ResampleLanczos:
		return imaging.Lanczos, nil
	default:
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter %q", string(r))
	}
}

// DefaultBlendWeight gives the tiles and the original equal weight.
const DefaultBlendWeight = 0.5

// ComposeOptions controls tiling and blending.
type ComposeOptions struct {
	// Resample is the filter used to scale tiles. Default: box.
	Resample Resample

	// FillUnassigned copies the target's own pixels into cells that have no
	// source instead of leaving them as Background.
	FillUnassigned bool

	// Background fills the blank canvas. Nil means opaque black.
	Background color.Color

	// BlendWeight is the weight of the tiled canvas in the final blend,
	// 0 (original only) to 1 (tiles only).
	BlendWeight float64

	// OnTileError, if set, is told about tiles that could not be fetched.
	// The cell is then treated as unassigned and composition continues.
	OnTileError func(cell int, id string, err error)
}

// DefaultComposeOptions returns box resampling, a black background and a
// 50/50 blend.
func DefaultComposeOptions() ComposeOptions {
	return ComposeOptions{Resample: ResampleBox, BlendWeight: DefaultBlendWeight}
}

// ComposeTiles pastes the source assigned to every cell into a canvas the
// size of target.
//
// Parameters:
//   - target: The image the grid was built from. Its bounds set the canvas.
//   - cells: Row-major source identifiers; "" marks an unassigned cell.
//   - side: Grid side count; len(cells) must equal side*side.
//   - src: Where tiles are fetched from, normally an *ImageCache.
//
// Cells use the same pixel partition as BuildTargetGrid. The returned
// canvas has bounds (0,0)-(w,h).
func ComposeTiles(target image.Image, cells []string, side int, src ImageSource, opts ComposeOptions) (*image.NRGBA, error) {
	if len(cells) != side*side {
		return nil, fmt.Errorf("assignment has %d cells, grid of side %d needs %d", len(cells), side, side*side)
	}
	filter, err := opts.Resample.Filter()
	if err != nil {
		return nil, err
	}

	bounds := target.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	rects, err := Partition(image.Rect(0, 0, w, h), side)
	if err != nil {
		return nil, err
	}

	bg := opts.Background
	if bg == nil {
		bg = color.NRGBA{A: 255}
	}
	canvas := imaging.New(w, h, bg)

	for i, id := range cells {
		rect := rects[i]
		if id == "" {
			if opts.FillUnassigned {
				draw.Draw(canvas, rect, target, rect.Min.Add(bounds.Min), draw.Src)
			}
			continue
		}

		tile, err := src.Get(id)
		if err != nil {
			if opts.OnTileError != nil {
				opts.OnTileError(i, id, err)
			}
			if opts.FillUnassigned {
				draw.Draw(canvas, rect, target, rect.Min.Add(bounds.Min), draw.Src)
			}
			continue
		}

		resized := imaging.Resize(tile, rect.Dx(), rect.Dy(), filter)
		draw.Draw(canvas, rect, resized, image.Point{}, draw.Src)
	}

	return canvas, nil
}

// Blend mixes tiles over base pixel by pixel:
//
//	out = round(weight*tile + (1-weight)*base)
//
// clamped to 0-255 with an opaque alpha. Both images must have the same
// size; the result has bounds (0,0)-(w,h).
func Blend(tiles, base image.Image, weight float64) (*image.NRGBA, error) {
	if math.IsNaN(weight) || weight < 0 || weight > 1 {
		return nil, fmt.Errorf("blend weight %v outside [0,1]", weight)
	}
	if tiles.Bounds().Size() != base.Bounds().Size() {
		return nil, fmt.Errorf("cannot blend %v over %v: sizes differ",
			tiles.Bounds().Size(), base.Bounds().Size())
	}

	a := imaging.Clone(tiles)
	b := imaging.Clone(base)
	out := image.NewNRGBA(a.Rect)
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i+0] = mix(a.Pix[i+0], b.Pix[i+0], weight)
		out.Pix[i+1] = mix(a.Pix[i+1], b.Pix[i+1], weight)
		out.Pix[i+2] = mix(a.Pix[i+2], b.Pix[i+2], weight)
		out.Pix[i+3] = 255
	}
	return out, nil
}

func mix(tile, base uint8, weight float64) uint8 {
	return clampByte(weight*float64(tile) + (1-weight)*float64(base))
}

// Compose tiles the assignment and blends the result with target using
// opts.BlendWeight.
func Compose(target image.Image, cells []string, side int, src ImageSource, opts ComposeOptions) (*image.NRGBA, error) {
	tiles, err := ComposeTiles(target, cells, side, src, opts)
	if err != nil {
		return nil, err
	}
	return Blend(tiles, target, opts.BlendWeight)
}
