// Package pool holds the source pool: the ordered list of candidate images,
// each reduced to its average colour, that the assignment engine draws from.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ironsheep/photomosaic/internal/imaging"
)

// SourceEntry is one candidate image and its average colour.
type SourceEntry struct {
	ID    string              `json:"id"`
	Color imaging.ColorVector `json:"color"`
}

// Pool is an immutable, ordered set of source entries with unique ids.
//
// Order matters: it is the initial queue order of the assignment engine and
// therefore part of the input that determines the result.
type Pool struct {
	entries []SourceEntry
	index   map[string]int
}

// New validates entries and wraps a private copy of them.
func New(entries []SourceEntry) (*Pool, error) {
	p := &Pool{
		entries: make([]SourceEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("entry %d has an empty id", i)
		}
		if !e.Color.Valid() {
			return nil, fmt.Errorf("entry %q has an invalid color %v", e.ID, e.Color)
		}
		if _, dup := p.index[e.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %q", e.ID)
		}
		p.index[e.ID] = len(p.entries)
		p.entries = append(p.entries, e)
	}
	return p, nil
}

// Len returns the number of entries.
func (p *Pool) Len() int { return len(p.entries) }

// Entries returns a copy of the entries in pool order.
func (p *Pool) Entries() []SourceEntry {
	out := make([]SourceEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// IDs returns the ids in pool order.
func (p *Pool) IDs() []string {
	ids := make([]string, len(p.entries))
	for i, e := range p.entries {
		ids[i] = e.ID
	}
	return ids
}

// Color returns the average colour recorded for id.
func (p *Pool) Color(id string) (imaging.ColorVector, bool) {
	i, ok := p.index[id]
	if !ok {
		return imaging.ColorVector{}, false
	}
	return p.entries[i].Color, true
}

// Without returns a pool lacking the given ids, keeping the order of the
// rest.
func (p *Pool) Without(ids ...string) *Pool {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := &Pool{index: make(map[string]int, len(p.entries))}
	for _, e := range p.entries {
		if drop[e.ID] {
			continue
		}
		out.index[e.ID] = len(out.entries)
		out.entries = append(out.entries, e)
	}
	return out
}

// Skipped records a source left out of a pool and why.
type Skipped struct {
	ID  string
	Err error
}

// Progress is called after each source has been processed during Build.
type Progress func(done, total int, id string, err error)

// Build averages every listed image and returns them as a pool in list
// order.
//
// Sources that fail to load are logged, reported in the skipped list and
// left out; they never abort the build. A *MissingResourceError means the
// listing is stale, a *DecodeError means the file is not an image.
//
// Cancelling ctx stops the build between sources and returns ctx.Err()
// together with the partial pool.
func Build(ctx context.Context, ids []string, src imaging.ImageSource, logger *slog.Logger, progress Progress) (*Pool, []Skipped, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &Pool{
		entries: make([]SourceEntry, 0, len(ids)),
		index:   make(map[string]int, len(ids)),
	}
	var skipped []Skipped

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return p, skipped, err
		}
		err := p.addFrom(id, src)
		if err != nil {
			skipped = append(skipped, Skipped{ID: id, Err: err})
			var missing *imaging.MissingResourceError
			var decode *imaging.DecodeError
			switch {
			case errors.As(err, &missing):
				logger.Warn("source missing, dropped from pool", "id", id, "error", err)
			case errors.As(err, &decode):
				logger.Warn("source not decodable, skipped", "id", id, "error", err)
			default:
				logger.Warn("source skipped", "id", id, "error", err)
			}
		}
		if progress != nil {
			progress(i+1, len(ids), id, err)
		}
	}

	logger.Debug("pool built", "sources", p.Len(), "skipped", len(skipped))
	return p, skipped, nil
}

func (p *Pool) addFrom(id string, src imaging.ImageSource) error {
	if _, dup := p.index[id]; dup {
		return fmt.Errorf("duplicate source id %q", id)
	}
	img, err := src.Get(id)
	if err != nil {
		return err
	}
	avg, err := imaging.AverageColor(img)
	if err != nil {
		return &imaging.DecodeError{ID: id, Err: err}
	}
	p.index[id] = len(p.entries)
	p.entries = append(p.entries, SourceEntry{ID: id, Color: avg})
	return nil
}
