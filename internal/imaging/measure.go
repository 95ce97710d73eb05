package imaging

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/floats"
)

// Metric measures the residual between a target cell colour and a source
// colour. It must be symmetric and non-negative.
type Metric func(a, b ColorVector) float64

// EuclideanRGB is the L2 norm of the componentwise difference in 0-255 RGB
// space. Its maximum is sqrt(3*255^2), about 441.67.
func EuclideanRGB(a, b ColorVector) float64 {
	return floats.Distance(a[:], b[:], 2)
}

// CIELab is the Euclidean distance in CIE L*a*b* space (D65), which tracks
// perceived difference more closely than raw RGB. Values are on
// go-colorful's scale where black to white is 1.0.
func CIELab(a, b ColorVector) float64 {
	return a.colorful().DistanceLab(b.colorful())
}

func (c ColorVector) colorful() colorful.Color {
	return colorful.Color{R: c[0] / 255, G: c[1] / 255, B: c[2] / 255}
}

// Metric names accepted by ParseMetric.
const (
	MetricRGB = "rgb"
	MetricLab = "lab"
)

// ParseMetric maps a configuration name to a Metric. An empty name selects
// EuclideanRGB.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case "", MetricRGB:
		return EuclideanRGB, nil
	case MetricLab:
		return CIELab, nil
	default:
		return nil, fmt.Errorf("unknown color metric %q (want %q or %q)", name, MetricRGB, MetricLab)
	}
}
