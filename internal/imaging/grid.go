package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// TargetGrid is the S×S array of average colours sampled from a target
// image, stored row-major. It is immutable once built.
type TargetGrid struct {
	Side  int           `json:"side"`
	Cells []ColorVector `json:"cells"`
}

// NewTargetGrid wraps precomputed cell colours, for example ones loaded from
// a target record.
func NewTargetGrid(side int, cells []ColorVector) (TargetGrid, error) {
	if side < 1 {
		return TargetGrid{}, &DegenerateGridError{Side: side, Reason: "side count must be at least 1"}
	}
	if len(cells) != side*side {
		return TargetGrid{}, fmt.Errorf("grid of side %d needs %d cells, got %d", side, side*side, len(cells))
	}
	out := make([]ColorVector, len(cells))
	copy(out, cells)
	return TargetGrid{Side: side, Cells: out}, nil
}

// Len returns the number of cells (Side*Side).
func (g TargetGrid) Len() int { return len(g.Cells) }

// At returns the colour of cell (r, c).
func (g TargetGrid) At(r, c int) ColorVector { return g.Cells[r*g.Side+c] }

// Partition splits bounds into side×side blocks, returned row-major.
//
// Block height and width are the integer quotients of the bounds size by
// side. The last row and the last column absorb the remainder, so the
// blocks cover every pixel of bounds exactly once.
//
// # Errors
//
// Returns *DegenerateGridError if side < 1 or side exceeds either
// dimension of bounds (which would produce empty blocks).
func Partition(bounds image.Rectangle, side int) ([]image.Rectangle, error) {
	if side < 1 {
		return nil, &DegenerateGridError{Side: side, Reason: "side count must be at least 1"}
	}
	w, h := bounds.Dx(), bounds.Dy()
	if side > w || side > h {
		return nil, &DegenerateGridError{
			Side:   side,
			Reason: fmt.Sprintf("side count exceeds image size %dx%d", w, h),
		}
	}

	subW := w / side
	subH := h / side
	rects := make([]image.Rectangle, 0, side*side)
	for r := 0; r < side; r++ {
		y0 := bounds.Min.Y + r*subH
		y1 := y0 + subH
		if r == side-1 {
			y1 = bounds.Max.Y
		}
		for c := 0; c < side; c++ {
			x0 := bounds.Min.X + c*subW
			x1 := x0 + subW
			if c == side-1 {
				x1 = bounds.Max.X
			}
			rects = append(rects, image.Rect(x0, y0, x1, y1))
		}
	}
	return rects, nil
}

// BuildTargetGrid partitions img into side×side blocks and averages each.
//
// Parameters:
//   - img: The target image.
//   - side: Number of cells along each edge; the grid has side*side cells.
//
// Returns *DegenerateGridError when the partition is impossible.
func BuildTargetGrid(img image.Image, side int) (TargetGrid, error) {
	rects, err := Partition(img.Bounds(), side)
	if err != nil {
		return TargetGrid{}, err
	}

	cells := make([]ColorVector, len(rects))
	for i, rect := range rects {
		avg, err := BlockAverage(img, rect)
		if err != nil {
			return TargetGrid{}, fmt.Errorf("failed to average cell %d: %w", i, err)
		}
		cells[i] = avg
	}
	return TargetGrid{Side: side, Cells: cells}, nil
}

// SideCountFor derives a grid side count from the size of a source pool:
// floor(sqrt(poolSize-1)), which leaves at least one source spare.
//
// Returns *DegenerateGridError when the pool is too small to fill even a
// 1×1 grid (poolSize < 2).
func SideCountFor(poolSize int) (int, error) {
	if poolSize < 2 {
		return 0, &DegenerateGridError{
			Side:   0,
			Reason: fmt.Sprintf("pool of %d sources is too small to derive a side count", poolSize),
		}
	}
	side := int(math.Floor(math.Sqrt(float64(poolSize - 1))))
	if side < 1 {
		return 0, &DegenerateGridError{Side: side, Reason: "derived side count is zero"}
	}
	return side, nil
}

// RenderGrid paints each cell of grid as a flat block over bounds, giving a
// preview of the colours the mosaic is trying to reach.
func RenderGrid(grid TargetGrid, bounds image.Rectangle) (*image.NRGBA, error) {
	rects, err := Partition(bounds, grid.Side)
	if err != nil {
		return nil, err
	}
	out := image.NewNRGBA(bounds)
	for i, rect := range rects {
		rgb := grid.Cells[i].RGBColor()
		c := color.NRGBA{R: rgb.R, G: rgb.G, B: rgb.B, A: 255}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				out.SetNRGBA(x, y, c)
			}
		}
	}
	return out, nil
}
