package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/facebookarchive/commoner/internal/digest"
	"github.com/facebookarchive/commoner/internal/memo"
	"github.com/facebookarchive/commoner/internal/metrics"
	"github.com/facebookarchive/commoner/internal/module"
)

// Defaults for chain options.
const (
	DefaultDirective   = "providesModule"
	DefaultGracePeriod = 5 * time.Second
)

// MissingProvider is the provider name reported for stub sources.
const MissingProvider = "missing"

// Source is the outcome of resolving one identifier.
type Source struct {
	ID       string
	Text     string
	Provider string
	Missing  bool
}

// Chain resolves identifiers through registered providers, newest first.
//
// Resolve and CanonicalID are memoized per normalized identifier for the
// lifetime of the Chain. Rebuilds that must observe changed files use a new
// Chain.
type Chain struct {
	logger      *slog.Logger
	metrics     *metrics.Recorder
	grace       time.Duration
	directive   *regexp.Regexp
	missingStub bool

	mu        sync.RWMutex
	providers []Provider

	sources   memo.Group[string, Source]
	canonical memo.Group[string, string]
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithGracePeriod sets how long a provider may run before a warning is
// logged. Zero or negative disables the warning.
func WithGracePeriod(d time.Duration) ChainOption {
	return func(c *Chain) { c.grace = d }
}

// WithDirective sets the alias directive name, without the leading "@".
func WithDirective(name string) ChainOption {
	return func(c *Chain) { c.directive = DirectivePattern(name) }
}

// WithMetrics counts missing modules on r.
func WithMetrics(r *metrics.Recorder) ChainOption {
	return func(c *Chain) { c.metrics = r }
}

// WithoutMissingStub makes unresolved identifiers fail with a
// MODULE_NOT_FOUND error instead of yielding a stub.
func WithoutMissingStub() ChainOption {
	return func(c *Chain) { c.missingStub = false }
}

// NewChain returns an empty chain.
func NewChain(logger *slog.Logger, opts ...ChainOption) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{
		logger:      logger,
		grace:       DefaultGracePeriod,
		directive:   DirectivePattern(DefaultDirective),
		missingStub: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DirectivePattern matches "@<name> <id>" and captures the id.
func DirectivePattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`@` + regexp.QuoteMeta(name) + `\s+(\S+)`)
}

// Register appends providers. The last registered provider is consulted
// first.
func (c *Chain) Register(providers ...Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = append(c.providers, providers...)
}

// Salt identifies the provider list. Changing, adding, or reordering
// providers changes it.
func (c *Chain) Salt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := digest.New(digest.DomainResolvers)
	for _, p := range c.providers {
		h.Add(p.Name())
		if f, ok := p.(Fingerprinter); ok {
			h.Add(f.Fingerprint())
		} else {
			h.Add("")
		}
	}
	if c.missingStub {
		h.Add(MissingProvider)
	}
	return h.Sum()
}

// Resolve returns the source for id.
func (c *Chain) Resolve(ctx context.Context, id string) (Source, error) {
	norm, err := module.Normalize(id)
	if err != nil {
		return Source{}, err
	}
	return c.sources.Do(norm, func() (Source, error) {
		return c.resolve(ctx, norm)
	})
}

func (c *Chain) resolve(ctx context.Context, id string) (Source, error) {
	c.mu.RLock()
	providers := make([]Provider, len(c.providers))
	copy(providers, c.providers)
	c.mu.RUnlock()

	for i := len(providers) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return Source{}, err
		}
		p := providers[i]
		text, err := c.call(ctx, p, id)
		if err != nil {
			c.logger.Warn("source provider failed; trying next",
				"id", id, "provider", p.Name(), "error", err)
			continue
		}
		if text != "" {
			c.logger.Debug("resolved source", "id", id, "provider", p.Name())
			return Source{ID: id, Text: text, Provider: p.Name()}, nil
		}
	}

	if !c.missingStub {
		return Source{}, module.NewNotFoundError(id)
	}
	c.logger.Warn("module not found; substituting a stub that throws when executed", "id", id)
	c.metrics.MissingModule()
	return Source{ID: id, Text: MissingStub(id), Provider: MissingProvider, Missing: true}, nil
}

// call runs one provider, converting a panic into an error and warning once
// if it outlives the grace period.
func (c *Chain) call(ctx context.Context, p Provider, id string) (text string, err error) {
	if c.grace > 0 {
		start := time.Now()
		timer := time.AfterFunc(c.grace, func() {
			c.logger.Warn("still waiting for source provider",
				"id", id, "provider", p.Name(), "elapsed", time.Since(start).Round(time.Millisecond))
		})
		defer timer.Stop()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider %s panicked: %v", p.Name(), r)
		}
	}()
	return p.Resolve(ctx, id)
}

// CanonicalID returns the identifier id's source declares for itself, or
// the normalized id when there is no declaration.
func (c *Chain) CanonicalID(ctx context.Context, id string) (string, error) {
	norm, err := module.Normalize(id)
	if err != nil {
		return "", err
	}
	return c.canonical.Do(norm, func() (string, error) {
		src, err := c.Resolve(ctx, norm)
		if err != nil {
			return "", err
		}
		if src.Missing {
			return norm, nil
		}
		declared, ok := c.Declared(src.Text)
		if !ok {
			return norm, nil
		}
		canon, err := module.Normalize(declared)
		if err != nil {
			c.logger.Warn("ignoring invalid declared module id", "id", norm, "declared", declared, "error", err)
			return norm, nil
		}
		return canon, nil
	})
}

// Declared returns the first directive argument in text.
func (c *Chain) Declared(text string) (string, bool) {
	m := c.directive.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// MissingStub is the source substituted for an unresolvable id.
func MissingStub(id string) string {
	quoted, _ := json.Marshal("module " + id + " not found")
	return "throw new Error(" + string(quoted) + ");\n"
}
