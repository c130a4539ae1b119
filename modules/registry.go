// Package modules implements CommonJS style module resolution and caching,
// independent of any particular script engine.
//
// A [Registry] resolves a require specifier to a canonical path, evaluates
// the file at most once through an [Engine], and serves later requires for
// the same path from its cache. Records are cached before evaluation, so a
// circular require observes the partially populated exports of a module
// that is still loading.
//
// Resolution tries, in order, the path itself, the path with ".js" appended
// and the path with ".json" appended. JSON files become the exports value
// directly. Bare names registered with [Registry.RegisterCore] resolve to
// core modules.
//
// A Registry is not safe for concurrent use. It is intended to be driven
// from an event loop goroutine.
package modules

import (
	"fmt"
	"maps"
	"path"
	"strings"
	"weak"

	"github.com/joeycumines/logiface"
)

// RequireFunc loads a module relative to the module it was created for.
type RequireFunc func(specifier string) (any, error)

// Engine is the script engine collaborator.
type Engine interface {
	// NewExports returns a fresh, empty exports value.
	NewExports() any
	// Evaluate runs source as the body of m, with require bound to m.
	Evaluate(source string, m *Module, require RequireFunc) error
	// ParseJSON converts JSON text into an exports value.
	ParseJSON(source string) (any, error)
}

// CoreLoader builds the exports of a core module. It is called at most once
// per successful load.
type CoreLoader func() (any, error)

// registryOptions holds configuration options for Registry creation.
type registryOptions struct {
	logger  *logiface.Logger[logiface.Event]
	baseDir string
}

// Option configures a [Registry].
type Option interface {
	applyRegistry(*registryOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyRegistryFunc func(*registryOptions) error
}

func (o *optionImpl) applyRegistry(opts *registryOptions) error {
	return o.applyRegistryFunc(opts)
}

// WithLogger sets the logger.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *registryOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithBaseDir sets the directory that requires from the top-level module
// resolve against. It defaults to "/".
func WithBaseDir(dir string) Option {
	return &optionImpl{func(opts *registryOptions) error {
		if dir == "" {
			return fmt.Errorf("%w: empty base directory", ErrInvalidSpecifier)
		}
		opts.baseDir = path.Clean("/" + dir)
		return nil
	}}
}

// Registry is the module resolver and cache.
type Registry struct {
	fs        FileSystem
	engine    Engine
	logger    *logiface.Logger[logiface.Event]
	main      *Module
	cache     map[string]*Module
	core      map[string]CoreLoader
	coreCache map[string]any
	baseDir   string
}

// New creates a Registry, including its top-level module.
func New(fsys FileSystem, engine Engine, opts ...Option) (*Registry, error) {
	if fsys == nil {
		return nil, fmt.Errorf("modules: file system must not be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("modules: engine must not be nil")
	}
	cfg := registryOptions{baseDir: "/"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRegistry(&cfg); err != nil {
			return nil, err
		}
	}
	r := &Registry{
		fs:        fsys,
		engine:    engine,
		logger:    cfg.logger,
		cache:     make(map[string]*Module),
		core:      make(map[string]CoreLoader),
		coreCache: make(map[string]any),
		baseDir:   cfg.baseDir,
	}
	r.main = &Module{
		ID:      MainID,
		Exports: engine.NewExports(),
	}
	return r, nil
}

// Main returns the top-level module, which has no filename or parent.
func (r *Registry) Main() *Module {
	return r.main
}

// BaseDir returns the directory the top-level module resolves against.
func (r *Registry) BaseDir() string {
	return r.baseDir
}

// RegisterCore makes name resolvable as a bare specifier. The loader runs on
// the first require of name.
func (r *Registry) RegisterCore(name string, loader CoreLoader) error {
	if name == "" || loader == nil {
		return fmt.Errorf("%w: core module %q", ErrInvalidSpecifier, name)
	}
	r.core[name] = loader
	delete(r.coreCache, name)
	return nil
}

// IsCore reports whether name is a registered core module.
func (r *Registry) IsCore(name string) bool {
	_, ok := r.core[name]
	return ok
}

// Cached returns the cache record for a resolved filename.
func (r *Registry) Cached(filename string) (*Module, bool) {
	m, ok := r.cache[filename]
	return m, ok
}

// Cache returns a snapshot of the cache, keyed by resolved filename.
func (r *Registry) Cache() map[string]*Module {
	return maps.Clone(r.cache)
}

// RequireFor returns a [RequireFunc] bound to m.
func (r *Registry) RequireFor(m *Module) RequireFunc {
	return func(specifier string) (any, error) {
		return r.Require(specifier, m)
	}
}

// Resolve returns what specifier names from the perspective of from (nil
// meaning the top-level module): the core module name, or the first
// candidate path that exists or is cached. Nothing is loaded.
func (r *Registry) Resolve(specifier string, from *Module) (string, error) {
	if specifier == "" {
		return "", fmt.Errorf("%w: empty string", ErrInvalidSpecifier)
	}
	if r.IsCore(specifier) {
		return specifier, nil
	}
	candidates := r.candidates(specifier, from)
	for _, candidate := range candidates {
		if _, ok := r.cache[candidate]; ok || r.fs.Exists(candidate) {
			return candidate, nil
		}
	}
	return "", &NotFoundError{Specifier: specifier, Tried: candidates}
}

// candidates returns the normalized paths to try for specifier.
func (r *Registry) candidates(specifier string, from *Module) []string {
	var p string
	if strings.HasPrefix(specifier, "/") {
		p = path.Clean(specifier)
	} else {
		dir := r.baseDir
		if from != nil && from.Filename != "" {
			dir = from.Dir()
		}
		p = path.Join(dir, specifier)
	}
	return []string{p, p + ".js", p + ".json"}
}

// Require returns the exports of the module specifier names, relative to
// from (nil meaning the top-level module), loading it if it is not cached.
func (r *Registry) Require(specifier string, from *Module) (any, error) {
	if from == nil {
		from = r.main
	}

	filename, err := r.Resolve(specifier, from)
	if err != nil {
		return nil, err
	}

	if loader, ok := r.core[filename]; ok {
		return r.requireCore(filename, loader)
	}

	if m, ok := r.cache[filename]; ok {
		from.addChild(m)
		r.logger.Trace().
			Str("module", filename).
			Bool("loaded", m.Loaded).
			Log("modules: cache hit")
		return m.Exports, nil
	}

	m, err := r.load(filename, from)
	if err != nil {
		return nil, err
	}
	return m.Exports, nil
}

func (r *Registry) requireCore(name string, loader CoreLoader) (any, error) {
	if exports, ok := r.coreCache[name]; ok {
		return exports, nil
	}
	exports, err := loader()
	if err != nil {
		return nil, fmt.Errorf("modules: core module %s: %w", name, err)
	}
	r.coreCache[name] = exports
	r.logger.Debug().
		Str("module", name).
		Log("modules: core module loaded")
	return exports, nil
}

// load reads and evaluates filename. The record is cached before
// evaluation, and removed again if evaluation fails, so that a later
// require retries.
func (r *Registry) load(filename string, from *Module) (*Module, error) {
	m := &Module{
		ID:       filename,
		Filename: filename,
		Exports:  r.engine.NewExports(),
		parent:   weak.Make(from),
	}
	r.cache[filename] = m
	from.addChild(m)

	if err := r.evaluate(m); err != nil {
		delete(r.cache, filename)
		from.removeChild(m)
		r.logger.Debug().
			Str("module", filename).
			Err(err).
			Log("modules: module failed to load")
		return nil, &CompileError{Filename: filename, Err: err}
	}

	m.Loaded = true
	r.logger.Debug().
		Str("module", filename).
		Int("children", len(m.Children)).
		Log("modules: module loaded")
	return m, nil
}

func (r *Registry) evaluate(m *Module) error {
	source, err := r.fs.ReadText(m.Filename)
	if err != nil {
		return err
	}
	if strings.HasSuffix(m.Filename, ".json") {
		exports, err := r.engine.ParseJSON(source)
		if err != nil {
			return err
		}
		m.Exports = exports
		return nil
	}
	return r.engine.Evaluate(source, m, r.RequireFor(m))
}
