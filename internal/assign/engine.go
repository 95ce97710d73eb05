package assign

import (
	"math"

	"github.com/ironsheep/photomosaic/internal/imaging"
	"github.com/ironsheep/photomosaic/internal/pool"
)

// Unassigned marks a cell that no source was placed in.
const Unassigned = ""

// Observer receives engine events as they happen.
type Observer interface {
	// Assigned reports that id now occupies cell with the given residual.
	Assigned(cell int, id string, residual float64)
	// Displaced reports that id was evicted from cell and requeued.
	Displaced(cell int, id string)
	// Dropped reports that id found no candidate cell.
	Dropped(id string)
}

// Stats counts the work done by one run.
type Stats struct {
	Dequeues    int `json:"dequeues"`
	Evaluations int `json:"evaluations"`
	Requeues    int `json:"requeues"`
	Dropped     int `json:"dropped"`
}

// Assignment is the outcome of a run. Cells and Residuals are row-major and
// of the grid's length. An unassigned cell has id Unassigned and residual
// +Inf.
type Assignment struct {
	Side      int
	Cells     []string
	Residuals []float64
	Stats     Stats
}

// AssignedCount returns the number of occupied cells.
func (a *Assignment) AssignedCount() int {
	n := 0
	for _, id := range a.Cells {
		if id != Unassigned {
			n++
		}
	}
	return n
}

// SumOfSquares returns the square root of the sum of squared residuals over
// assigned cells. Lower is a closer match; it ranks alternative mosaics of
// the same target.
func (a *Assignment) SumOfSquares() float64 {
	var sum float64
	for i, r := range a.Residuals {
		if a.Cells[i] == Unassigned {
			continue
		}
		sum += r * r
	}
	return math.Sqrt(sum)
}

type options struct {
	metric      imaging.Metric
	maxResidual float64
	observer    Observer
}

// Option configures Assign.
type Option func(*options)

// WithMetric replaces the default EuclideanRGB residual.
func WithMetric(m imaging.Metric) Option {
	return func(o *options) {
		if m != nil {
			o.metric = m
		}
	}
}

// WithMaxResidual rejects any placement whose residual is not strictly
// below limit. A value <= 0 disables it.
func WithMaxResidual(limit float64) Option {
	return func(o *options) {
		if limit > 0 {
			o.maxResidual = limit
		} else {
			o.maxResidual = math.Inf(1)
		}
	}
}

// WithObserver registers obs for engine events.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// Assign places pool entries into grid cells. Entries must have unique ids
// (a *pool.Pool guarantees this); their order is the initial queue order.
//
// An empty grid or an empty pool returns *imaging.DegenerateGridError.
func Assign(grid imaging.TargetGrid, entries []pool.SourceEntry, opts ...Option) (*Assignment, error) {
	if grid.Side < 1 || grid.Len() == 0 || grid.Len() != grid.Side*grid.Side {
		return nil, &imaging.DegenerateGridError{Side: grid.Side, Reason: "target grid has no cells"}
	}
	if len(entries) == 0 {
		return nil, &imaging.DegenerateGridError{Side: grid.Side, Reason: "pool is empty"}
	}

	o := options{metric: imaging.EuclideanRGB, maxResidual: math.Inf(1)}
	for _, opt := range opts {
		opt(&o)
	}

	n := grid.Len()
	owner := make([]int, n)
	residual := make([]float64, n)
	for i := range owner {
		owner[i] = -1
		residual[i] = math.Inf(1)
	}

	work := newQueue(len(entries))
	for i := range entries {
		work.push(i)
	}

	var stats Stats
	for work.len() > 0 {
		src := work.pop()
		stats.Dequeues++
		color := entries[src].Color

		best := o.maxResidual
		bestCell := -1
		for cell, target := range grid.Cells {
			d := o.metric(target, color)
			stats.Evaluations++
			if d < best && (owner[cell] < 0 || d < residual[cell]) {
				best = d
				bestCell = cell
			}
		}

		if bestCell < 0 {
			stats.Dropped++
			if o.observer != nil {
				o.observer.Dropped(entries[src].ID)
			}
			continue
		}

		if prev := owner[bestCell]; prev >= 0 {
			work.push(prev)
			stats.Requeues++
			if o.observer != nil {
				o.observer.Displaced(bestCell, entries[prev].ID)
			}
		}
		owner[bestCell] = src
		residual[bestCell] = best
		if o.observer != nil {
			o.observer.Assigned(bestCell, entries[src].ID, best)
		}
	}

	cells := make([]string, n)
	for i, src := range owner {
		if src >= 0 {
			cells[i] = entries[src].ID
		}
	}
	return &Assignment{
		Side:      grid.Side,
		Cells:     cells,
		Residuals: residual,
		Stats:     stats,
	}, nil
}

// queue is a FIFO of pool indices backed by a growing slice; popped slots
// are reclaimed once more than half the buffer is consumed.
type queue struct {
	items []int
	head  int
}

func newQueue(capacity int) *queue {
	return &queue{items: make([]int, 0, capacity)}
}

func (q *queue) len() int { return len(q.items) - q.head }

func (q *queue) push(v int) { q.items = append(q.items, v) }

func (q *queue) pop() int {
	v := q.items[q.head]
	q.head++
	if q.head > len(q.items)/2 {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return v
}
