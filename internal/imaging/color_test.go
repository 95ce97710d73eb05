package imaging

import (
	"image"
	"image/color"
	"math"
	"testing"
)

// createInMemoryImage creates an in-memory test image
func createInMemoryImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createPatternImage creates an image with different colors in each quadrant
func createPatternImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.Color
			if x < width/2 && y < height/2 {
				c = color.RGBA{255, 0, 0, 255} // Red top-left
			} else if x >= width/2 && y < height/2 {
				c = color.RGBA{0, 255, 0, 255} // Green top-right
			} else if x < width/2 && y >= height/2 {
				c = color.RGBA{0, 0, 255, 255} // Blue bottom-left
			} else {
				c = color.RGBA{255, 255, 255, 255} // White bottom-right
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestAverageColor_Solid(t *testing.T) {
	img := createInMemoryImage(20, 10, color.RGBA{255, 128, 64, 255})

	avg, err := AverageColor(img)
	if err != nil {
		t.Fatalf("AverageColor failed: %v", err)
	}
	if avg != (ColorVector{255, 128, 64}) {
		t.Errorf("AverageColor: got %v, want [255 128 64]", avg)
	}
	if avg.Hex() != "#FF8040" {
		t.Errorf("Hex: got %s, want #FF8040", avg.Hex())
	}
}

func TestAverageColor_Pattern(t *testing.T) {
	img := createPatternImage(100, 100)

	avg, err := AverageColor(img)
	if err != nil {
		t.Fatalf("AverageColor failed: %v", err)
	}
	// Each quadrant is a quarter of the pixels.
	want := ColorVector{127.5, 127.5, 127.5}
	for i := range avg {
		if !approxEqual(avg[i], want[i], 1e-9) {
			t.Errorf("component %d: got %v, want %v", i, avg[i], want[i])
		}
	}
}

func TestBlockAverage_Quadrants(t *testing.T) {
	img := createPatternImage(100, 100)

	tests := []struct {
		name string
		rect image.Rectangle
		want ColorVector
	}{
		{"red", image.Rect(0, 0, 50, 50), ColorVector{255, 0, 0}},
		{"green", image.Rect(50, 0, 100, 50), ColorVector{0, 255, 0}},
		{"blue", image.Rect(0, 50, 50, 100), ColorVector{0, 0, 255}},
		{"white", image.Rect(50, 50, 100, 100), ColorVector{255, 255, 255}},
		{"clipped", image.Rect(50, 50, 500, 500), ColorVector{255, 255, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BlockAverage(img, tt.rect)
			if err != nil {
				t.Fatalf("BlockAverage failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBlockAverage_EmptyBlock(t *testing.T) {
	img := createInMemoryImage(10, 10, color.Black)

	if _, err := BlockAverage(img, image.Rect(20, 20, 30, 30)); err == nil {
		t.Error("BlockAverage should fail for a block outside the image")
	}
	if _, err := BlockAverage(img, image.Rect(3, 3, 3, 8)); err == nil {
		t.Error("BlockAverage should fail for a zero-width block")
	}
}

func TestBlockAverage_OffsetBounds(t *testing.T) {
	full := createPatternImage(100, 100)
	sub := full.SubImage(image.Rect(50, 0, 100, 50))

	got, err := AverageColor(sub)
	if err != nil {
		t.Fatalf("AverageColor failed: %v", err)
	}
	if got != (ColorVector{0, 255, 0}) {
		t.Errorf("got %v, want pure green", got)
	}
}

func TestColorVector_Valid(t *testing.T) {
	tests := []struct {
		name string
		c    ColorVector
		want bool
	}{
		{"black", ColorVector{0, 0, 0}, true},
		{"white", ColorVector{255, 255, 255}, true},
		{"negative", ColorVector{-1, 0, 0}, false},
		{"too large", ColorVector{0, 256, 0}, false},
		{"nan", ColorVector{0, 0, math.NaN()}, false},
		{"inf", ColorVector{math.Inf(1), 0, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Valid(); got != tt.want {
				t.Errorf("Valid(%v): got %v, want %v", tt.c, got, tt.want)
			}
		})
	}
}

func TestEuclideanRGB(t *testing.T) {
	tests := []struct {
		name string
		a, b ColorVector
		want float64
	}{
		{"identical", ColorVector{10, 20, 30}, ColorVector{10, 20, 30}, 0},
		{"black to offset gray", ColorVector{0, 0, 0}, ColorVector{10, 10, 10}, math.Sqrt(300)},
		{"black to white", ColorVector{0, 0, 0}, ColorVector{255, 255, 255}, math.Sqrt(3 * 255 * 255)},
		{"single axis", ColorVector{0, 0, 0}, ColorVector{3, 4, 0}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EuclideanRGB(tt.a, tt.b); !approxEqual(got, tt.want, 1e-9) {
				t.Errorf("EuclideanRGB: got %v, want %v", got, tt.want)
			}
			if got := EuclideanRGB(tt.b, tt.a); !approxEqual(got, tt.want, 1e-9) {
				t.Errorf("EuclideanRGB is not symmetric: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCIELab(t *testing.T) {
	black := ColorVector{0, 0, 0}
	white := ColorVector{255, 255, 255}
	gray := ColorVector{128, 128, 128}

	if d := CIELab(black, black); d != 0 {
		t.Errorf("CIELab(black, black): got %v, want 0", d)
	}
	if d := CIELab(black, white); !approxEqual(d, 1.0, 0.01) {
		t.Errorf("CIELab(black, white): got %v, want about 1.0", d)
	}
	if CIELab(black, gray) >= CIELab(black, white) {
		t.Error("gray should be closer to black than white is")
	}
}

func TestParseMetric(t *testing.T) {
	for _, name := range []string{"", MetricRGB, MetricLab} {
		if m, err := ParseMetric(name); err != nil || m == nil {
			t.Errorf("ParseMetric(%q): got %v", name, err)
		}
	}
	if _, err := ParseMetric("hsv"); err == nil {
		t.Error("ParseMetric should reject unknown names")
	}
}
