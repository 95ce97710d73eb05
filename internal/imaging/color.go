package imaging

import (
	"fmt"
	"image"
	"math"
)

// ColorVector is the mean colour of a block of pixels in RGB space.
//
// Components are stored in R, G, B order as floating point values in the
// range 0-255. Alpha is not represented; pixels are sampled through
// color.Color.RGBA() and reduced to 8-bit precision before averaging, so
// a fully transparent pixel contributes black.
type ColorVector [3]float64

// Hex formats the vector as "#RRGGBB", rounding each component.
func (c ColorVector) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", clampByte(c[0]), clampByte(c[1]), clampByte(c[2]))
}

// Valid reports whether every component is finite and inside 0-255.
func (c ColorVector) Valid() bool {
	for _, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 255 {
			return false
		}
	}
	return true
}

// RGBColor returns the vector rounded to 8-bit components.
func (c ColorVector) RGBColor() RGBColor {
	return RGBColor{R: clampByte(c[0]), G: clampByte(c[1]), B: clampByte(c[2])}
}

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
}

// BlockAverage computes the componentwise mean colour of the pixels inside
// rect.
//
// Parameters:
//   - img: The source image.
//   - rect: The block to average, in image coordinates. It is clipped to the
//     image bounds before sampling.
//
// Returns:
//   - ColorVector: Mean R, G and B over every pixel of the clipped block.
//   - error: Non-nil if the clipped block contains no pixels.
//
// Both the source pool builder and the target grid builder go through this
// function, so residuals between the two are directly comparable.
func BlockAverage(img image.Image, rect image.Rectangle) (ColorVector, error) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return ColorVector{}, fmt.Errorf("empty block %v inside image bounds %v", rect, img.Bounds())
	}

	var rSum, gSum, bSum uint64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			rSum += uint64(r >> 8)
			gSum += uint64(g >> 8)
			bSum += uint64(b >> 8)
		}
	}

	n := float64(rect.Dx() * rect.Dy())
	return ColorVector{float64(rSum) / n, float64(gSum) / n, float64(bSum) / n}, nil
}

// AverageColor returns the mean colour of the whole image.
func AverageColor(img image.Image) (ColorVector, error) {
	return BlockAverage(img, img.Bounds())
}

func clampByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
