// Package builder turns module identifiers into Modules.
//
// A Builder resolves source, runs the module pipeline through the content
// cache, and extracts dependencies. Each requested identifier is built at
// most once per Builder, and every identifier that canonicalizes to the same
// ID yields the same *module.Module. Watch mode creates a new Builder per
// rebuild so changed sources are picked up while the cache carries over.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/facebookarchive/commoner/internal/cache"
	"github.com/facebookarchive/commoner/internal/digest"
	"github.com/facebookarchive/commoner/internal/memo"
	"github.com/facebookarchive/commoner/internal/metrics"
	"github.com/facebookarchive/commoner/internal/module"
	"github.com/facebookarchive/commoner/internal/source"
	"github.com/facebookarchive/commoner/internal/steps"
)

// Resolver is the part of source.Chain the builder uses.
type Resolver interface {
	Resolve(ctx context.Context, id string) (source.Source, error)
	CanonicalID(ctx context.Context, id string) (string, error)
	Salt() string
}

// Config configures a Builder.
type Config struct {
	Resolver   Resolver
	Steps      []steps.Step
	Cache      cache.Cache
	ConfigHash string
	Debug      bool
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

// Builder builds modules for one build.
type Builder struct {
	cfg          Config
	resolverSalt string
	stepSalt     string

	modules memo.Group[string, *module.Module]

	mu       sync.Mutex
	registry map[string]*module.Module
}

// New validates cfg and computes the pipeline salts. Providers and steps
// must be fully registered before New is called.
func New(cfg Config) (*Builder, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("builder: resolver is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("builder: cache is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	stepSalt, err := steps.Salt(digest.DomainSteps, cfg.Steps)
	if err != nil {
		return nil, fmt.Errorf("builder: %w", err)
	}
	return &Builder{
		cfg:          cfg,
		resolverSalt: cfg.Resolver.Salt(),
		stepSalt:     stepSalt,
		registry:     make(map[string]*module.Module),
	}, nil
}

// PipelineSalt identifies the resolver chain and module steps together.
func (b *Builder) PipelineSalt() string {
	return digest.Sum(digest.DomainPipeline, b.resolverSalt, b.stepSalt)
}

// Key computes the content hash of a module from its canonical ID and raw
// source.
func (b *Builder) Key(canonicalID, src string) string {
	return digest.New(digest.DomainModule).
		Add(b.cfg.ConfigHash).
		Add(b.resolverSalt).
		Add(b.stepSalt).
		Add(canonicalID).
		Add(strconv.Itoa(len(src))).
		Add(src).
		Sum()
}

// BuildModule returns the module for id. Concurrent and repeated calls for
// the same id share one computation.
func (b *Builder) BuildModule(ctx context.Context, id string) (*module.Module, error) {
	norm, err := module.Normalize(id)
	if err != nil {
		return nil, err
	}
	return b.modules.Do(norm, func() (*module.Module, error) {
		return b.build(ctx, norm)
	})
}

func (b *Builder) build(ctx context.Context, id string) (*module.Module, error) {
	src, err := b.cfg.Resolver.Resolve(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", id, err)
	}
	canon, err := b.cfg.Resolver.CanonicalID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("canonical id for %s: %w", id, err)
	}

	key := b.Key(canon, src.Text)
	unit := steps.Unit{ID: canon, Debug: b.cfg.Debug}
	data, err := b.cfg.Cache.GetOrBuild(ctx, key, func(ctx context.Context) ([]byte, error) {
		out, err := steps.Run(ctx, b.cfg.Steps, unit, src.Text)
		if err != nil {
			return nil, err
		}
		return []byte(out), nil
	})
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", canon, err)
	}

	final := string(data)
	m := &module.Module{
		ID:      canon,
		Hash:    key,
		Source:  final,
		Deps:    steps.ScanDeps(canon, final),
		Missing: src.Missing,
	}
	if canon != id {
		b.cfg.Logger.Debug("module declares canonical id", "id", id, "canonical", canon)
	}
	return b.register(m)
}

// register records m under its canonical ID. A module already registered
// with the same hash is returned in place of m.
func (b *Builder) register(m *module.Module) (*module.Module, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.registry[m.ID]; ok {
		if existing.Hash != m.Hash {
			return nil, module.NewDuplicateError(m.ID, existing.Hash, m.Hash)
		}
		return existing, nil
	}
	b.registry[m.ID] = m
	b.cfg.Metrics.ModuleBuilt()
	b.cfg.Logger.Debug("built module", "id", m.ID, "key", m.Hash, "deps", len(m.Deps))
	return m, nil
}

// ReadMany builds ids concurrently and returns the modules in request
// order, keeping only the first occurrence of each canonical ID.
func (b *Builder) ReadMany(ctx context.Context, ids []string) ([]*module.Module, error) {
	mods := make([]*module.Module, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			m, err := b.BuildModule(gctx, id)
			if err != nil {
				return err
			}
			mods[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(mods))
	out := mods[:0]
	for _, m := range mods {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out, nil
}

// Modules returns every registered module sorted by ID.
func (b *Builder) Modules() []*module.Module {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*module.Module, 0, len(b.registry))
	for _, m := range b.registry {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
