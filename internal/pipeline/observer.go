package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names used in results, logs and metrics.
const (
	StageSources  = "sources"
	StageTargets  = "targets"
	StageMaps     = "maps"
	StageCollages = "collages"
	StageRun      = "run"
)

// ItemResult describes one finished unit of work.
type ItemResult struct {
	Stage  string
	Index  int // 1-based
	Total  int
	Input  string
	Output string // empty on failure
	Err    error
}

// Observer is told about every item after it has been processed. Calls are
// made from the goroutine running the stage, in item order.
type Observer interface {
	ItemDone(ItemResult)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ItemResult)

// ItemDone calls f(r).
func (f ObserverFunc) ItemDone(r ItemResult) { f(r) }

type nopObserver struct{}

func (nopObserver) ItemDone(ItemResult) {}

// ItemError is a failed input and the reason.
type ItemError struct {
	Input string
	Err   error
}

func (e ItemError) Error() string { return fmt.Sprintf("%s: %v", e.Input, e.Err) }

func (e ItemError) Unwrap() error { return e.Err }

// BatchReport summarises a stage. Failed items were skipped; they never
// stop the rest of the batch.
type BatchReport struct {
	Processed int
	Outputs   []string
	Failed    []ItemError
}

// Err joins every item failure, or returns nil when there were none.
func (r BatchReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// String renders a one-line summary.
func (r BatchReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d processed", r.Processed)
	if n := len(r.Failed); n > 0 {
		fmt.Fprintf(&b, ", %d failed", n)
	}
	return b.String()
}

func (r *BatchReport) record(input, output string, err error) {
	if err != nil {
		r.Failed = append(r.Failed, ItemError{Input: input, Err: err})
		return
	}
	r.Processed++
	r.Outputs = append(r.Outputs, output)
}
