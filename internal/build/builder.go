// Package build runs the full pipeline for a project: load unit
// declarations, resolve function fragments, build dependency graphs,
// generate client modules, and write them content-addressed. Per-unit
// failures are reported and skipped so one bad unit never blocks the
// rest of the project.
package build

import (
	"context"
	"time"

	"log/slog"

	"github.com/mirageui/mirage/internal/config"
	"github.com/mirageui/mirage/internal/metrics"
	"github.com/mirageui/mirage/internal/trace"
	"github.com/mirageui/mirage/pkg/artifact"
	"github.com/mirageui/mirage/pkg/decl"
	"github.com/mirageui/mirage/pkg/graph"
	"github.com/mirageui/mirage/pkg/inline"
)

// Options configures one pipeline run.
type Options struct {
	// Sink, when non-nil, receives every written artifact.
	Sink artifact.Sink

	// Log defaults to slog.Default().
	Log *slog.Logger
}

// UnitResult is the outcome for one unit.
type UnitResult struct {
	Unit     *decl.Unit
	Graph    *graph.Graph
	Module   *artifact.Module // nil when nothing qualified
	Artifact string           // manifest-relative path, "" when no module
	Skipped  bool             // artifact content unchanged
	Err      error
}

// Result is the outcome of a full pipeline run.
type Result struct {
	Units    []UnitResult
	Duration time.Duration
}

// Failed returns the units that errored.
func (r *Result) Failed() []UnitResult {
	var out []UnitResult
	for _, u := range r.Units {
		if u.Err != nil {
			out = append(out, u)
		}
	}
	return out
}

// Builder drives the pipeline for one project configuration.
type Builder struct {
	cfg *config.Config
	opt Options
	log *slog.Logger
}

// New creates a builder.
func New(cfg *config.Config, opt Options) *Builder {
	log := opt.Log
	if log == nil {
		log = slog.Default()
	}
	return &Builder{cfg: cfg, opt: opt, log: log}
}

// Run executes the pipeline once.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	loadCtx, span := trace.Start(ctx, trace.SpanLoad, "")
	units, err := decl.LoadDir(b.cfg.UnitsPath())
	trace.End(span, err)
	if err != nil {
		metrics.RecordBuild("error", time.Since(start))
		return nil, err
	}
	ctx = loadCtx

	writerOpts := []artifact.WriterOption{
		artifact.WithPrefix(b.cfg.Artifacts.Prefix),
		artifact.WithExt(b.cfg.Artifacts.Ext),
		artifact.WithLogger(b.log),
	}
	if b.opt.Sink != nil {
		writerOpts = append(writerOpts, artifact.WithSink(b.opt.Sink))
	}
	writer, err := artifact.NewWriter(b.cfg.OutputPath(), writerOpts...)
	if err != nil {
		metrics.RecordBuild("error", time.Since(start))
		return nil, err
	}

	imported := b.importedFragments(units)

	res := &Result{}
	for _, u := range units {
		res.Units = append(res.Units, b.buildUnit(ctx, u, imported, writer))
	}

	res.Duration = time.Since(start)
	status := "ok"
	if len(res.Failed()) > 0 {
		status = "error"
	}
	metrics.RecordBuild(status, res.Duration)
	return res, nil
}

// buildUnit runs resolve → graph → generate → write for one unit.
func (b *Builder) buildUnit(ctx context.Context, u *decl.Unit, imported inline.Table, writer *artifact.Writer) UnitResult {
	res := UnitResult{Unit: u}
	log := b.log.With("unit", u.Name)

	_, span := trace.Start(ctx, trace.SpanInline, u.Name)
	err := u.Resolve(imported)
	trace.End(span, err)
	if err != nil {
		res.Err = err
		log.Error("resolving unit", "err", err)
		return res
	}

	_, span = trace.Start(ctx, trace.SpanGraph, u.Name)
	g, err := graph.Build(u)
	trace.End(span, err)
	if err != nil {
		res.Err = err
		log.Error("building dependency graph", "err", err)
		return res
	}
	res.Graph = g

	genCtx, span := trace.Start(ctx, trace.SpanGenerate, u.Name)
	mod, ok := artifact.Generate(genCtx, u, g)
	trace.End(span, nil)
	if !ok {
		log.Info("unit is server-only, no client module generated")
		return res
	}
	res.Module = mod

	_, span = trace.Start(ctx, trace.SpanWrite, u.Name)
	wr, err := writer.Write(mod)
	trace.End(span, err)
	if err != nil {
		res.Err = err
		log.Error("writing artifact", "err", err)
		return res
	}
	res.Artifact = wr.Path
	res.Skipped = wr.Skipped
	return res
}

// importedFragments merges every unit's fragments into the shared table
// units resolve against. Units are already in sorted name order, so a
// cross-unit collision resolves the same way on every run; each unit's
// own fragments still win locally during Resolve.
func (b *Builder) importedFragments(units []*decl.Unit) inline.Table {
	shared := make(inline.Table)
	for _, u := range units {
		local, err := inline.NewTable(u.Fragments()...)
		if err != nil {
			// Reported again per-unit by Resolve, skip here.
			continue
		}
		shared = inline.Merge(shared, local)
	}
	return shared
}
