// Package assign matches source images to target grid cells.
//
// # Algorithm
//
// Assign runs a greedy displacement loop over a FIFO queue of pool indices,
// seeded in pool order:
//
//  1. Dequeue the front source.
//  2. Scan the cells row-major. A cell is a candidate when the source is
//     strictly closer to it than to every earlier candidate and either the
//     cell is unassigned or the source is strictly closer than the cell's
//     current occupant.
//  3. If a candidate exists, the source takes the best one. A displaced
//     occupant goes to the back of the queue. A source with no candidate
//     is dropped and never seen again.
//
// The loop ends when the queue is empty.
//
// # Ties
//
// All comparisons are strict. An equally good challenger never displaces an
// incumbent, and the first of several equal cells in row-major order wins.
// Every displacement strictly lowers a cell's residual, which is what bounds
// the number of requeues and guarantees termination, including on pools in
// which every source has the same colour.
//
// # Result
//
// The result is a local optimum: each cell holds a source that no remaining
// source could beat, but the total residual is not minimised globally.
// Residuals never increase during a run once a cell is assigned. For a
// fixed grid, pool order and metric the result is fully deterministic.
//
// # Observing a run
//
// An Observer passed with WithObserver receives every assignment,
// displacement and drop synchronously, in order. It is meant for progress
// reporting and tests; it must not retain or mutate engine state.
package assign
