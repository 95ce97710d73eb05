package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/ironsheep/photomosaic/internal/assign"
	"github.com/ironsheep/photomosaic/internal/config"
	"github.com/ironsheep/photomosaic/internal/imaging"
	"github.com/ironsheep/photomosaic/internal/metrics"
	"github.com/ironsheep/photomosaic/internal/pool"
)

// Runner executes the pipeline stages with one configuration and one
// source image cache.
type Runner struct {
	cfg      config.Config
	metric   imaging.Metric
	logger   *slog.Logger
	observer Observer
	recorder *metrics.Recorder
	resolver imaging.Resolver
	cache    *imaging.ImageCache
	outDir   string
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver registers an observer for finished items.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithRecorder sends stage metrics to rec.
func WithRecorder(rec *metrics.Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithResolver replaces the filesystem as the origin of source and target
// images.
func WithResolver(res imaging.Resolver) Option {
	return func(r *Runner) {
		if res != nil {
			r.resolver = res
		}
	}
}

// WithOutputDir sets where single-item outputs and batch directories are
// written. The default is the working directory.
func WithOutputDir(dir string) Option {
	return func(r *Runner) { r.outDir = dir }
}

// NewRunner validates cfg and builds the runner's image cache.
func NewRunner(cfg config.Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	metric, err := imaging.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:      cfg,
		metric:   metric,
		logger:   slog.New(slog.DiscardHandler),
		observer: nopObserver{},
		resolver: imaging.FileResolver{},
		outDir:   ".",
	}
	for _, opt := range opts {
		opt(r)
	}

	r.cache, err = imaging.NewImageCache(cfg.CacheSize, r.resolver)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Cache returns the source image cache shared by every stage.
func (r *Runner) Cache() *imaging.ImageCache { return r.cache }

// Config returns the runner's configuration.
func (r *Runner) Config() config.Config { return r.cfg }

// Sources averages every image in dir and saves the pool to out. The pool
// is returned as well. Unreadable images are skipped and reported; a pool
// that cannot be written aborts with *pool.PersistenceError.
func (r *Runner) Sources(ctx context.Context, dir, out string) (*pool.Pool, BatchReport, error) {
	var report BatchReport

	p, skipped, err := r.BuildPool(ctx, dir)
	if err != nil {
		return nil, report, err
	}

	report.Processed = p.Len()
	for _, s := range skipped {
		report.Failed = append(report.Failed, ItemError{Input: s.ID, Err: s.Err})
	}

	if err := pool.Save(out, p); err != nil {
		return nil, report, err
	}
	report.Outputs = []string{out}
	r.logger.Info("source pool written", "path", out, "sources", p.Len(), "skipped", len(skipped))
	return p, report, nil
}

// BuildPool averages every image in dir through the source cache without
// persisting the result.
func (r *Runner) BuildPool(ctx context.Context, dir string) (*pool.Pool, []pool.Skipped, error) {
	ids, err := imaging.ListImages(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, &imaging.MissingResourceError{ID: dir, Err: err}
		}
		return nil, nil, err
	}
	r.logger.Info("building source pool", "dir", dir, "images", len(ids))

	p, skipped, err := pool.Build(ctx, ids, r.cache, r.logger, func(done, total int, id string, err error) {
		r.observer.ItemDone(ItemResult{Stage: StageSources, Index: done, Total: total, Input: id, Err: err})
		r.recorder.ObserveItem(StageSources, err)
	})
	r.recorder.ObserveCache(r.cache.Stats())
	return p, skipped, err
}

// Targets samples a target grid of the given side count from every image
// of item and writes one target record per image.
func (r *Runner) Targets(ctx context.Context, item WorkItem, side int) (BatchReport, error) {
	var report BatchReport
	if side < 1 {
		return report, &imaging.DegenerateGridError{Side: side, Reason: "side count must be at least 1"}
	}

	outDir := r.outDir
	if item.IsBatch() {
		outDir = filepath.Join(r.outDir, filepath.Base(filepath.Clean(item.Root()))+targetsDirSuffix)
	}

	paths := item.Paths()
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out := filepath.Join(outDir, targetName(path))
		err := r.target(path, side, out)
		r.finish(&report, StageTargets, i, len(paths), path, out, err)
	}
	return report, nil
}

func (r *Runner) target(path string, side int, out string) error {
	img, err := r.loadImage(path)
	if err != nil {
		return err
	}
	grid, err := imaging.BuildTargetGrid(img, side)
	if err != nil {
		return err
	}
	return SaveTarget(out, TargetRecord{Label: path, Side: grid.Side, Colors: grid.Cells})
}

// Maps assigns the pool stored at poolPath to every target record of item
// and writes one map record per target.
func (r *Runner) Maps(ctx context.Context, item WorkItem, poolPath string) (BatchReport, error) {
	var report BatchReport
	p, err := pool.Load(poolPath)
	if err != nil {
		return report, err
	}

	outDir := r.outDir
	if item.IsBatch() {
		outDir = siblingDir(item.Root(), targetsDirSuffix, mapsDirSuffix)
	}

	entries := p.Entries()
	paths := item.Paths()
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out := filepath.Join(outDir, mapName(path))
		err := r.mapTarget(path, entries, out)
		r.finish(&report, StageMaps, i, len(paths), path, out, err)
	}
	return report, nil
}

func (r *Runner) mapTarget(path string, entries []pool.SourceEntry, out string) error {
	rec, err := LoadTarget(path)
	if err != nil {
		return err
	}
	grid, err := rec.Grid()
	if err != nil {
		return err
	}
	a, err := r.assign(grid, entries)
	if err != nil {
		return err
	}
	return SaveMap(out, NewMapRecord(rec.Label, a))
}

type loadedMap struct {
	path string
	rec  MapRecord
}

// Collages renders every map record of item. With count > 0 only the count
// maps with the lowest sum of squares are rendered.
func (r *Runner) Collages(ctx context.Context, item WorkItem, count int) (BatchReport, error) {
	var report BatchReport

	outDir := r.outDir
	if item.IsBatch() {
		outDir = siblingDir(item.Root(), mapsDirSuffix, collagesDirSuffix)
	}

	paths := item.Paths()
	maps := make([]loadedMap, 0, len(paths))
	for _, path := range paths {
		rec, err := LoadMap(path)
		if err != nil {
			r.logger.Warn("map skipped", "stage", StageCollages, "input", path, "error", err)
			r.recorder.ObserveItem(StageCollages, err)
			report.record(path, "", err)
			continue
		}
		maps = append(maps, loadedMap{path: path, rec: rec})
	}

	if count > 0 {
		sort.SliceStable(maps, func(i, j int) bool { return maps[i].rec.SOS < maps[j].rec.SOS })
		if len(maps) > count {
			maps = maps[:count]
		}
	}

	for i, m := range maps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out := filepath.Join(outDir, collageName(m.path))
		err := r.collage(m.rec, out)
		r.finish(&report, StageCollages, i, len(maps), m.path, out, err)
	}
	r.recorder.ObserveCache(r.cache.Stats())
	return report, nil
}

func (r *Runner) collage(rec MapRecord, out string) error {
	target, err := r.loadImage(rec.Label)
	if err != nil {
		return err
	}
	img, err := imaging.Compose(target, rec.Cells, rec.Side, r.cache, r.composeOptions(rec.Label))
	if err != nil {
		return err
	}
	return r.Save(out, img)
}

// Run takes every image of item through target, map and collage in memory
// and writes only the collages. The side count is side when positive, then
// the configured side count, then the one derived from the pool size.
func (r *Runner) Run(ctx context.Context, item WorkItem, poolPath string, side int) (BatchReport, error) {
	var report BatchReport
	p, err := pool.Load(poolPath)
	if err != nil {
		return report, err
	}

	// A pool too small for a side count fails each target, not the batch.
	side, sideErr := r.SideFor(p.Len(), side)
	r.logger.Info("running pipeline", "pool", poolPath, "sources", p.Len(), "side", side, "images", item.Len())

	outDir := r.outDir
	if item.IsBatch() {
		outDir = filepath.Join(r.outDir, filepath.Base(filepath.Clean(item.Root()))+collagesDirSuffix)
	}

	entries := p.Entries()
	paths := item.Paths()
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out := filepath.Join(outDir, collageNameForImage(path))
		err := sideErr
		if err == nil {
			err = r.runOne(path, entries, side, out)
		}
		r.finish(&report, StageRun, i, len(paths), path, out, err)
	}
	r.recorder.ObserveCache(r.cache.Stats())
	return report, nil
}

func (r *Runner) runOne(path string, entries []pool.SourceEntry, side int, out string) error {
	collage, _, err := r.Mosaic(path, entries, side)
	if err != nil {
		return err
	}
	return r.Save(out, collage)
}

// Mosaic builds the collage of the image at path in memory and returns it
// with the assignment it was rendered from.
func (r *Runner) Mosaic(path string, entries []pool.SourceEntry, side int) (*image.NRGBA, *assign.Assignment, error) {
	img, err := r.loadImage(path)
	if err != nil {
		return nil, nil, err
	}
	grid, err := imaging.BuildTargetGrid(img, side)
	if err != nil {
		return nil, nil, err
	}
	a, err := r.assign(grid, entries)
	if err != nil {
		return nil, nil, err
	}
	collage, err := imaging.Compose(img, a.Cells, a.Side, r.cache, r.composeOptions(path))
	if err != nil {
		return nil, nil, err
	}
	return collage, a, nil
}

// SideFor returns side when positive, then the configured side count, then
// the side count derived from poolSize.
func (r *Runner) SideFor(poolSize, side int) (int, error) {
	if side > 0 {
		return side, nil
	}
	if r.cfg.SideCount > 0 {
		return r.cfg.SideCount, nil
	}
	return imaging.SideCountFor(poolSize)
}

// Assign runs the engine with the configured metric and residual limit.
func (r *Runner) Assign(grid imaging.TargetGrid, entries []pool.SourceEntry) (*assign.Assignment, error) {
	return r.assign(grid, entries)
}

func (r *Runner) assign(grid imaging.TargetGrid, entries []pool.SourceEntry) (*assign.Assignment, error) {
	a, err := assign.Assign(grid, entries,
		assign.WithMetric(r.metric),
		assign.WithMaxResidual(r.cfg.MaxResidual),
	)
	if err != nil {
		return nil, err
	}
	r.recorder.ObserveAssignment(a)
	r.logger.Debug("assignment done",
		"cells", len(a.Cells),
		"assigned", a.AssignedCount(),
		"requeues", a.Stats.Requeues,
		"dropped", a.Stats.Dropped,
		"sos", a.SumOfSquares(),
	)
	return a, nil
}

func (r *Runner) composeOptions(label string) imaging.ComposeOptions {
	opts := r.cfg.ComposeOptions()
	opts.OnTileError = func(cell int, id string, err error) {
		r.logger.Warn("tile left empty", "target", label, "cell", cell, "source", id, "error", err)
	}
	return opts
}

// LoadImage decodes the target image at path through the runner's
// resolver. Targets bypass the source cache.
func (r *Runner) LoadImage(path string) (image.Image, error) { return r.loadImage(path) }

func (r *Runner) loadImage(path string) (image.Image, error) {
	data, err := r.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	img, err := imaging.DecodeImage(data)
	if err != nil {
		return nil, &imaging.DecodeError{ID: path, Err: err}
	}
	return img, nil
}

// Save writes img to out with the configured JPEG quality, creating the
// directory as needed.
func (r *Runner) Save(out string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(out), outputDirMode); err != nil {
		return fmt.Errorf("create directory for %s: %w", out, err)
	}
	if err := imaging.SaveImage(out, img, r.cfg.JPEGQuality); err != nil {
		return fmt.Errorf("save %s: %w", out, err)
	}
	return nil
}

func (r *Runner) finish(report *BatchReport, stage string, i, total int, input, output string, err error) {
	if err != nil {
		output = ""
		r.logger.Warn("item skipped", "stage", stage, "input", input, "error", err, "kind", errorKind(err))
	} else {
		r.logger.Debug("item done", "stage", stage, "input", input, "output", output)
	}
	report.record(input, output, err)
	r.recorder.ObserveItem(stage, err)
	r.observer.ItemDone(ItemResult{Stage: stage, Index: i + 1, Total: total, Input: input, Output: output, Err: err})
}

func errorKind(err error) string {
	var (
		decode     *imaging.DecodeError
		missing    *imaging.MissingResourceError
		degenerate *imaging.DegenerateGridError
	)
	switch {
	case errors.As(err, &decode):
		return "decode"
	case errors.As(err, &missing):
		return "missing"
	case errors.As(err, &degenerate):
		return "degenerate_grid"
	default:
		return "other"
	}
}
