package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/facebookarchive/commoner/internal/cache"
)

// Scenario is one end-to-end build test.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Cache selects the backend shared by every build. Empty means disk.
	Cache string `yaml:"cache,omitempty"`
	Debug bool   `yaml:"debug,omitempty"`

	// Sources replaces the fixture tree. Keys are slash-separated paths.
	Sources map[string]string `yaml:"sources,omitempty"`

	Builds     []BuildStep `yaml:"builds"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// BuildStep is one build. Exactly one of Roots, Schema and Source is set.
type BuildStep struct {
	// Edit rewrites source files before the build. An empty value deletes
	// the file.
	Edit map[string]string `yaml:"edit,omitempty"`

	Roots []string `yaml:"roots,omitempty"`
	// Schema is CUE or JSON text. A list builds in graph mode.
	Schema string `yaml:"schema,omitempty"`
	// Source builds a single module from text.
	Source string `yaml:"source,omitempty"`
}

// Assertion checks one build's outcome. Build numbers start at 1.
type Assertion struct {
	Type  string `yaml:"type"`
	Build int    `yaml:"build"`

	// Path walks the result tree from a top-level entry through "then"
	// children (bundle_contains, bundle_excludes, bundle_empty).
	Path []string `yaml:"path,omitempty"`
	Text string   `yaml:"text,omitempty"`

	Count int      `yaml:"count,omitempty"`
	IDs   []string `yaml:"ids,omitempty"`
	// As is the build compared against (same_files, different_files).
	As     int    `yaml:"as,omitempty"`
	Status string `yaml:"status,omitempty"`
}

// Assertion types.
const (
	AssertBundleContains = "bundle_contains"
	AssertBundleExcludes = "bundle_excludes"
	AssertBundleEmpty    = "bundle_empty"
	AssertFileCount      = "file_count"
	AssertModuleOrder    = "module_order"
	AssertSameFiles      = "same_files"
	AssertDifferentFiles = "different_files"
	AssertErrorContains  = "error_contains"
	AssertLedgerStatus   = "ledger_status"
)

var knownAssertions = map[string]bool{
	AssertBundleContains: true,
	AssertBundleExcludes: true,
	AssertBundleEmpty:    true,
	AssertFileCount:      true,
	AssertModuleOrder:    true,
	AssertSameFiles:      true,
	AssertDifferentFiles: true,
	AssertErrorContains:  true,
	AssertLedgerStatus:   true,
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Cache {
	case "", cache.BackendDisk, cache.BackendSQLite, cache.BackendMemory:
	default:
		return fmt.Errorf("unknown cache backend %q", s.Cache)
	}
	if len(s.Builds) == 0 {
		return fmt.Errorf("builds list is required and must be non-empty")
	}
	for i, b := range s.Builds {
		set := 0
		if len(b.Roots) > 0 {
			set++
		}
		if b.Schema != "" {
			set++
		}
		if b.Source != "" {
			set++
		}
		if set != 1 {
			return fmt.Errorf("builds[%d]: exactly one of roots, schema and source is required", i)
		}
	}
	for i, a := range s.Assertions {
		if !knownAssertions[a.Type] {
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
		if a.Build < 1 || a.Build > len(s.Builds) {
			return fmt.Errorf("assertions[%d]: build %d out of range", i, a.Build)
		}
		if (a.Type == AssertSameFiles || a.Type == AssertDifferentFiles) && (a.As < 1 || a.As > len(s.Builds)) {
			return fmt.Errorf("assertions[%d]: as %d out of range", i, a.As)
		}
	}
	return nil
}
