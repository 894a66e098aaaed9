package module

// Module is one resolved, processed source unit.
//
// A Module is created once per (identifier, pipeline salt) pair by the
// builder and is never mutated afterwards. Two requested identifiers that
// canonicalize to the same ID share one *Module.
type Module struct {
	// ID is the canonical identifier. It may differ from the identifier used
	// to request the module when the source declares its own.
	ID string `json:"id"`

	// Hash is the content hash over the configuration hash, the pipeline
	// salts, the canonical ID and the raw source. It doubles as the cache key.
	Hash string `json:"hash"`

	// Source is the final, post-processing text.
	Source string `json:"-"`

	// Deps lists dependency identifiers in the order they appear in Source,
	// absolutized against ID and without repeats.
	Deps []string `json:"deps"`

	// Missing reports that no provider produced source for ID and Source is
	// a stub that fails when executed.
	Missing bool `json:"missing,omitempty"`
}
