package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facebookarchive/commoner/internal/builder"
	"github.com/facebookarchive/commoner/internal/bundle"
	"github.com/facebookarchive/commoner/internal/cache"
	"github.com/facebookarchive/commoner/internal/graph"
	"github.com/facebookarchive/commoner/internal/metrics"
	"github.com/facebookarchive/commoner/internal/module"
	"github.com/facebookarchive/commoner/internal/schema"
	"github.com/facebookarchive/commoner/internal/source"
	"github.com/facebookarchive/commoner/internal/steps"
	"github.com/facebookarchive/commoner/internal/store"
)

// Build modes, as recorded in the ledger and in metrics.
const (
	ModeGraph  = "graph"
	ModeTree   = "tree"
	ModeSource = "source"
)

// SourceID names a module built from raw text that declares no id.
const SourceID = "stdin"

// ChainFactory returns a source chain with every provider registered.
// It is called once per build.
type ChainFactory func(ctx context.Context, logger *slog.Logger) (*source.Chain, error)

// Config configures an Engine.
type Config struct {
	Cache    cache.Cache
	NewChain ChainFactory

	// ModuleSteps builds the module pipeline for a chain. Nil means
	// steps.ModulePipeline.
	ModuleSteps func(canon steps.CanonicalFunc) []steps.Step
	// BundleSteps is the bundle pipeline. Nil means steps.BundlePipeline().
	BundleSteps []steps.Step

	ConfigHash string
	Debug      bool
	// OutputDir receives published files. Empty builds without publishing.
	OutputDir string

	// Ledger records builds when set.
	Ledger *store.Store
	IDs    IDGenerator

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Engine runs builds against a shared cache.
type Engine struct {
	cfg Config
	seq Sequence
}

// Report describes one finished build.
type Report struct {
	BuildID string `json:"build_id"`
	Seq     int64  `json:"seq"`
	Mode    string `json:"mode"`

	Graph  *bundle.GraphResult `json:"graph,omitempty"`
	Tree   *bundle.Result      `json:"tree,omitempty"`
	Module *module.Module      `json:"module,omitempty"`
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Engine, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("engine: cache is required")
	}
	if cfg.NewChain == nil {
		return nil, fmt.Errorf("engine: chain factory is required")
	}
	if cfg.ModuleSteps == nil {
		cfg.ModuleSteps = steps.ModulePipeline
	}
	if cfg.BundleSteps == nil {
		cfg.BundleSteps = steps.BundlePipeline()
	}
	if cfg.IDs == nil {
		cfg.IDs = UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{cfg: cfg}, nil
}

// Builds returns how many builds this engine has started.
func (e *Engine) Builds() int64 { return e.seq.Current() }

// session holds the per-build state.
type session struct {
	chain   *source.Chain
	builder *builder.Builder
	writer  *bundle.Writer
	logger  *slog.Logger
}

// newSession creates a chain and builder for one build. prepare, when set,
// may register extra providers before the pipeline salt is fixed.
func (e *Engine) newSession(ctx context.Context, logger *slog.Logger, prepare func(*source.Chain)) (*session, error) {
	chain, err := e.cfg.NewChain(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("source chain: %w", err)
	}
	if prepare != nil {
		prepare(chain)
	}

	b, err := builder.New(builder.Config{
		Resolver:   chain,
		Steps:      e.cfg.ModuleSteps(chain.CanonicalID),
		Cache:      e.cfg.Cache,
		ConfigHash: e.cfg.ConfigHash,
		Debug:      e.cfg.Debug,
		Logger:     logger,
		Metrics:    e.cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	w, err := bundle.NewWriter(bundle.WriterConfig{
		Steps:      e.cfg.BundleSteps,
		Cache:      e.cfg.Cache,
		ConfigHash: e.cfg.ConfigHash,
		OutputDir:  e.cfg.OutputDir,
		Debug:      e.cfg.Debug,
		Logger:     logger,
		Metrics:    e.cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &session{chain: chain, builder: b, writer: w, logger: logger}, nil
}

// run wraps one build with numbering, the ledger and metrics.
func (e *Engine) run(ctx context.Context, mode string, roots []string, fn func(context.Context, *Report) error) (*Report, error) {
	report := &Report{
		BuildID: e.cfg.IDs.Generate(),
		Seq:     e.seq.Next(),
		Mode:    mode,
	}
	logger := e.cfg.Logger.With("build_id", report.BuildID)
	logger.Info("build started", "mode", mode, "seq", report.Seq, "roots", roots)

	if e.cfg.Ledger != nil {
		if err := e.cfg.Ledger.BeginBuild(ctx, report.BuildID, mode, roots); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	err := fn(logCtx(ctx, logger), report)
	elapsed := time.Since(start)
	e.cfg.Metrics.ObserveBuild(mode, elapsed, err)

	if e.cfg.Ledger != nil {
		result, merr := ledgerResult(report)
		if merr != nil {
			err = errors.Join(err, merr)
		}
		if lerr := e.cfg.Ledger.FinishBuild(context.WithoutCancel(ctx), report.BuildID, result, err); lerr != nil {
			err = errors.Join(err, lerr)
		}
	}

	if err != nil {
		logger.Error("build failed", "mode", mode, "elapsed", elapsed, "error", err)
		return nil, err
	}
	logger.Info("build finished", "mode", mode, "elapsed", elapsed)
	return report, nil
}

// BuildGraph builds roots and their dependencies and publishes each module
// as <OutputDir>/<id>.js. Dependency cycles are logged, never fatal.
func (e *Engine) BuildGraph(ctx context.Context, roots []string) (*Report, error) {
	return e.run(ctx, ModeGraph, roots, func(ctx context.Context, r *Report) error {
		sess, err := e.newSession(ctx, loggerFrom(ctx), nil)
		if err != nil {
			return err
		}
		res, err := bundle.BuildGraph(ctx, sess.builder, e.cfg.Cache, roots, e.cfg.OutputDir)
		if err != nil {
			return err
		}
		warnCycles(sess.logger, res.Cycles)
		r.Graph = res
		return nil
	})
}

// BuildTree builds the bundles described by tree and publishes them to
// OutputDir.
func (e *Engine) BuildTree(ctx context.Context, tree schema.Tree) (*Report, error) {
	return e.run(ctx, ModeTree, tree.IDs(), func(ctx context.Context, r *Report) error {
		sess, err := e.newSession(ctx, loggerFrom(ctx), nil)
		if err != nil {
			return err
		}
		res, err := bundle.NewAssembler(sess.builder, sess.writer, sess.logger).Build(ctx, tree)
		if err != nil {
			return err
		}
		warnCycles(sess.logger, graph.Cycles(sess.builder.Modules()))
		r.Tree = res
		return nil
	})
}

// BuildSource builds a single module from text. Its id is the one the text
// declares, or SourceID. Dependencies are recorded but not built.
func (e *Engine) BuildSource(ctx context.Context, text string) (*Report, error) {
	return e.run(ctx, ModeSource, nil, func(ctx context.Context, r *Report) error {
		id := SourceID
		sess, err := e.newSession(ctx, loggerFrom(ctx), func(c *source.Chain) {
			if declared, ok := c.Declared(text); ok {
				if norm, err := module.Normalize(declared); err == nil {
					id = norm
				}
			}
			c.Register(source.NewMapProvider("stdin", map[string]string{id: text}))
		})
		if err != nil {
			return err
		}
		m, err := sess.builder.BuildModule(ctx, id)
		if err != nil {
			return err
		}
		r.Module = m
		return nil
	})
}

func warnCycles(logger *slog.Logger, cycles []graph.Cycle) {
	for _, c := range cycles {
		logger.Warn(c.String(), "modules", c.Path)
	}
}

// ledgerResult is the ledger's summary of a build: published module ids in
// graph mode, the result tree in tree mode.
func ledgerResult(r *Report) (string, error) {
	var v any
	switch {
	case r.Graph != nil:
		v = r.Graph.IDs()
	case r.Tree != nil:
		v = r.Tree
	case r.Module != nil:
		v = r.Module
	default:
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode build result: %w", err)
	}
	return string(data), nil
}

type loggerKey struct{}

func logCtx(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
