package source

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"strings"

	"github.com/facebookarchive/commoner/internal/digest"
)

// Provider produces source text for a module identifier.
//
// Resolve returns "" with a nil error to decline; the chain then asks the
// next provider. A non-nil error is logged and also treated as a decline.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, id string) (string, error)
}

// Fingerprinter is implemented by providers whose output depends on more
// than their name, such as a file extension or a script body. The
// fingerprint contributes to the chain salt.
type Fingerprinter interface {
	Fingerprint() string
}

// FileReader reads files by path relative to a source root. The watcher's
// file cache implements it.
type FileReader interface {
	ReadFile(rel string) ([]byte, error)
}

// FSReader adapts an fs.FS to FileReader.
type FSReader struct {
	FS fs.FS
}

// ReadFile implements FileReader.
func (r FSReader) ReadFile(rel string) ([]byte, error) {
	return fs.ReadFile(r.FS, rel)
}

// DirProvider reads <id><ext> from a source tree.
type DirProvider struct {
	files FileReader
	ext   string
}

// NewDirProvider returns a provider over files. An empty ext means ".js".
func NewDirProvider(files FileReader, ext string) *DirProvider {
	if ext == "" {
		ext = ".js"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &DirProvider{files: files, ext: ext}
}

func (p *DirProvider) Name() string        { return "dir" }
func (p *DirProvider) Fingerprint() string { return p.ext }

// Resolve implements Provider. A missing file is a decline, not an error.
func (p *DirProvider) Resolve(ctx context.Context, id string) (string, error) {
	data, err := p.files.ReadFile(id + p.ext)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// AliasProvider serves declared identifiers from the files that declare
// them. It is built from the result of ScanDirectives.
type AliasProvider struct {
	files  FileReader
	byID   map[string]string
	finger string
}

// NewAliasProvider indexes a path → declared id map by id.
func NewAliasProvider(files FileReader, pathToID map[string]string) *AliasProvider {
	byID := Invert(pathToID)

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	h := digest.New("commoner/alias-provider/v1")
	for _, id := range ids {
		h.Add(id).Add(byID[id])
	}

	return &AliasProvider{files: files, byID: byID, finger: h.Sum()}
}

func (p *AliasProvider) Name() string        { return "alias" }
func (p *AliasProvider) Fingerprint() string { return p.finger }

// Resolve implements Provider.
func (p *AliasProvider) Resolve(ctx context.Context, id string) (string, error) {
	path, ok := p.byID[id]
	if !ok {
		return "", nil
	}
	data, err := p.files.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Path returns the file declaring id.
func (p *AliasProvider) Path(id string) (string, bool) {
	path, ok := p.byID[id]
	return path, ok
}

// MapProvider serves sources from memory.
type MapProvider struct {
	name    string
	sources map[string]string
}

// NewMapProvider copies sources.
func NewMapProvider(name string, sources map[string]string) *MapProvider {
	m := make(map[string]string, len(sources))
	for id, src := range sources {
		m[id] = src
	}
	return &MapProvider{name: name, sources: m}
}

func (p *MapProvider) Name() string { return p.name }

// Fingerprint covers the served ids. Contents already reach module keys
// through the source bytes.
func (p *MapProvider) Fingerprint() string {
	ids := make([]string, 0, len(p.sources))
	for id := range p.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	h := digest.New("commoner/map-provider/v1")
	for _, id := range ids {
		h.Add(id)
	}
	return h.Sum()
}

// Resolve implements Provider.
func (p *MapProvider) Resolve(ctx context.Context, id string) (string, error) {
	return p.sources[id], nil
}

// Func adapts a function to Provider. Its salt identity is name alone.
type Func struct {
	ProviderName string
	Fn           func(ctx context.Context, id string) (string, error)
}

func (f Func) Name() string { return f.ProviderName }

// Resolve implements Provider.
func (f Func) Resolve(ctx context.Context, id string) (string, error) {
	return f.Fn(ctx, id)
}
