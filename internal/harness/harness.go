package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/facebookarchive/commoner/internal/bundle"
	"github.com/facebookarchive/commoner/internal/cache"
	"github.com/facebookarchive/commoner/internal/config"
	"github.com/facebookarchive/commoner/internal/engine"
	"github.com/facebookarchive/commoner/internal/schema"
	"github.com/facebookarchive/commoner/internal/store"
	"github.com/facebookarchive/commoner/internal/testutil"
)

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every assertion held.
	Pass   bool
	Errors []string
	Builds []*Outcome
}

// Outcome is one build's result. Exactly one of Report and Err is set.
type Outcome struct {
	Report *engine.Report
	Err    error
	// Files maps each published name to its contents, read right after
	// the build.
	Files map[string]string
	// Ledger is the build's ledger row.
	Ledger *store.BuildRecord
}

// AddError records a failed assertion.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run executes a scenario in a private temporary directory. Build failures
// are outcomes, not errors; the returned error means the scenario itself
// could not run.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	return RunWithLogger(ctx, s, slog.New(slog.DiscardHandler))
}

// RunWithLogger is Run with build logs sent to logger.
func RunWithLogger(ctx context.Context, s *Scenario, logger *slog.Logger) (*Result, error) {
	tmp, err := os.MkdirTemp("", "commoner-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("create scenario dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	srcDir := filepath.Join(tmp, "src")
	outDir := filepath.Join(tmp, "out")
	sources := s.Sources
	if sources == nil {
		sources = testutil.SourceTree()
	}
	for path, text := range sources {
		if err := writeSource(srcDir, path, text); err != nil {
			return nil, err
		}
	}

	ledger, err := store.Open(filepath.Join(tmp, "ledger.db"))
	if err != nil {
		return nil, err
	}
	defer ledger.Close()
	ledger.SetClock(testutil.NewDeterministicClock().Now)

	c, err := openCache(s.Cache, filepath.Join(tmp, "cache"), ledger, logger)
	if err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	cfg.Debug = s.Debug
	configHash, err := cfg.Hash()
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(s.Builds))
	for i := range ids {
		ids[i] = "build-" + strconv.Itoa(i+1)
	}
	eng, err := engine.New(engine.Config{
		Cache: c,
		NewChain: engine.DirChains(srcDir, engine.SourceOptions{
			Extension: cfg.Extension,
			Directive: cfg.Source.Directive,
		}),
		ConfigHash: configHash,
		Debug:      s.Debug,
		OutputDir:  outDir,
		Ledger:     ledger,
		IDs:        engine.NewFixedGenerator(ids...),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Pass: true}
	for i, step := range s.Builds {
		for path, text := range step.Edit {
			if err := writeSource(srcDir, path, text); err != nil {
				return nil, err
			}
		}
		outcome, err := runBuild(ctx, eng, step, outDir)
		if err != nil {
			return nil, fmt.Errorf("build %d: %w", i+1, err)
		}
		outcome.Ledger, err = findBuild(ctx, ledger, ids[i])
		if err != nil {
			return nil, fmt.Errorf("build %d: %w", i+1, err)
		}
		result.Builds = append(result.Builds, outcome)
	}

	for _, a := range s.Assertions {
		if err := evaluate(result, a); err != nil {
			result.AddError(err.Error())
		}
	}
	return result, nil
}

func runBuild(ctx context.Context, eng *engine.Engine, step BuildStep, outDir string) (*Outcome, error) {
	var (
		report   *engine.Report
		buildErr error
	)
	switch {
	case step.Source != "":
		report, buildErr = eng.BuildSource(ctx, step.Source)
	case len(step.Roots) > 0:
		report, buildErr = eng.BuildGraph(ctx, step.Roots)
	default:
		sch, err := schema.Parse([]byte(step.Schema), "schema.cue")
		if err != nil {
			return nil, err
		}
		if sch.IsGraph() {
			report, buildErr = eng.BuildGraph(ctx, sch.Roots)
		} else {
			report, buildErr = eng.BuildTree(ctx, sch.Tree)
		}
	}
	if buildErr != nil {
		return &Outcome{Err: buildErr}, nil
	}

	files, err := readPublished(report, outDir)
	if err != nil {
		return nil, err
	}
	return &Outcome{Report: report, Files: files}, nil
}

func readPublished(r *engine.Report, outDir string) (map[string]string, error) {
	var names []string
	switch {
	case r.Tree != nil:
		names = r.Tree.Files()
	case r.Graph != nil:
		for _, id := range r.Graph.IDs() {
			names = append(names, id+bundle.FileExt)
		}
	}
	files := make(map[string]string, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(outDir, filepath.FromSlash(name)))
		if err != nil {
			return nil, fmt.Errorf("read published file: %w", err)
		}
		files[name] = string(data)
	}
	return files, nil
}

func openCache(backend, dir string, ledger *store.Store, logger *slog.Logger) (cache.Cache, error) {
	switch backend {
	case cache.BackendSQLite:
		return cache.NewSQLiteCache(ledger, cache.WithLogger(logger)), nil
	case cache.BackendMemory:
		return cache.NewMemoryCache(cache.WithLogger(logger)), nil
	default:
		return cache.NewDiskCache(dir, bundle.FileExt, cache.WithLogger(logger))
	}
}

func writeSource(root, path, text string) error {
	full := filepath.Join(root, filepath.FromSlash(path))
	if text == "" {
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove source %s: %w", path, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("write source %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write source %s: %w", path, err)
	}
	return nil
}

func findBuild(ctx context.Context, ledger *store.Store, id string) (*store.BuildRecord, error) {
	builds, err := ledger.ListBuilds(ctx, 1000)
	if err != nil {
		return nil, err
	}
	for i := range builds {
		if builds[i].ID == id {
			return &builds[i], nil
		}
	}
	return nil, fmt.Errorf("ledger has no build %s", id)
}
