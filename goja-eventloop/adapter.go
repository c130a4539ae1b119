// Copyright 2025 Joseph Cumines
//
// goja-eventloop: Goja adapter for the event loop library

package gojaeventloop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-duxcore/eventloop"
	"github.com/joeycumines/go-duxcore/modules"
	"github.com/joeycumines/logiface"
)

// Version is reported to scripts as process.version.
const Version = "v0.1.0"

// Adapter bridges a Goja runtime to an [eventloop.Loop] and a
// [modules.Registry], and implements [modules.Engine] for that registry.
type Adapter struct {
	runtime  *goja.Runtime
	loop     *eventloop.Loop
	registry *modules.Registry
	logger   *logiface.Logger[logiface.Event]

	promisePrototype   *goja.Object // Promise.prototype for instanceof support
	timeoutPrototype   *goja.Object
	immediatePrototype *goja.Object
	process            *goja.Object
	eventEmitter       *goja.Object

	// hidden properties linking script objects to Go values
	internalKey *goja.Symbol
	emitterKey  *goja.Symbol
	customKey   *goja.Symbol // util.promisify.custom

	moduleObjects map[*modules.Module]*goja.Object

	// weak.Pointer[eventloop.Promise] -> weak.Pointer[goja.Object]
	promiseObjects sync.Map

	argv []string
	env  map[string]string
}

// Option configures an [Adapter].
type Option interface {
	applyAdapter(*adapterOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyAdapterFunc func(*adapterOptions) error
}

func (o *optionImpl) applyAdapter(opts *adapterOptions) error {
	return o.applyAdapterFunc(opts)
}

type adapterOptions struct {
	logger  *logiface.Logger[logiface.Event]
	fs      modules.FileSystem
	baseDir string
	argv    []string
	env     map[string]string
}

// WithLogger sets the logger used by the adapter and its module registry.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(o *adapterOptions) error {
		o.logger = logger
		return nil
	}}
}

// WithFileSystem sets where modules are loaded from. It defaults to
// [modules.OSFileSystem].
func WithFileSystem(fsys modules.FileSystem) Option {
	return &optionImpl{func(o *adapterOptions) error {
		if fsys == nil {
			return fmt.Errorf("gojaeventloop: file system cannot be nil")
		}
		o.fs = fsys
		return nil
	}}
}

// WithBaseDir sets the directory top-level requires resolve against.
func WithBaseDir(dir string) Option {
	return &optionImpl{func(o *adapterOptions) error {
		o.baseDir = dir
		return nil
	}}
}

// WithArgs sets process.argv.
func WithArgs(argv ...string) Option {
	return &optionImpl{func(o *adapterOptions) error {
		o.argv = append([]string(nil), argv...)
		return nil
	}}
}

// WithEnv sets process.env. It defaults to the host environment.
func WithEnv(env map[string]string) Option {
	return &optionImpl{func(o *adapterOptions) error {
		o.env = env
		return nil
	}}
}

// New creates a new Goja adapter for given event loop and runtime.
func New(loop *eventloop.Loop, runtime *goja.Runtime, opts ...Option) (*Adapter, error) {
	if loop == nil {
		return nil, fmt.Errorf("loop cannot be nil")
	}
	if runtime == nil {
		return nil, fmt.Errorf("runtime cannot be nil")
	}

	cfg := adapterOptions{
		logger: loop.Logger(),
		fs:     modules.OSFileSystem{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyAdapter(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.env == nil {
		cfg.env = hostEnv()
	}

	a := &Adapter{
		runtime:       runtime,
		loop:          loop,
		logger:        cfg.logger,
		internalKey:   goja.NewSymbol("internal"),
		emitterKey:    goja.NewSymbol("emitter"),
		customKey:     goja.NewSymbol("nodejs.util.promisify.custom"),
		moduleObjects: make(map[*modules.Module]*goja.Object),
		argv:          cfg.argv,
		env:           cfg.env,
	}

	registryOpts := []modules.Option{modules.WithLogger(cfg.logger)}
	if cfg.baseDir != "" {
		registryOpts = append(registryOpts, modules.WithBaseDir(cfg.baseDir))
	}
	registry, err := modules.New(cfg.fs, a, registryOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create module registry: %w", err)
	}
	a.registry = registry

	return a, nil
}

func hostEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// Loop returns the event loop
func (a *Adapter) Loop() *eventloop.Loop {
	return a.loop
}

// Runtime returns the Goja runtime
func (a *Adapter) Runtime() *goja.Runtime {
	return a.runtime
}

// Registry returns the module registry.
func (a *Adapter) Registry() *modules.Registry {
	return a.registry
}

// Bind installs the globals and core modules into the runtime.
//
// This must be called before executing JavaScript code that uses timer,
// Promise or module APIs, and before the loop is run.
func (a *Adapter) Bind() error {
	// Timer functions
	a.bindTimers()

	if err := a.bindPromise(); err != nil {
		return err
	}
	if err := a.bindProcess(); err != nil {
		return err
	}
	if err := a.bindEventEmitter(); err != nil {
		return err
	}
	if err := a.bindModules(); err != nil {
		return err
	}

	for name, build := range map[string]func() (goja.Value, error){
		"events":  func() (goja.Value, error) { return a.eventEmitter, nil },
		"timers":  a.timersModule,
		"process": func() (goja.Value, error) { return a.process, nil },
		"path":    a.pathModule,
		"util":    a.utilModule,
		"delay":   a.delayModule,
	} {
		if err := a.registry.RegisterCore(name, func() (any, error) { return build() }); err != nil {
			return err
		}
	}

	return nil
}

// RunMain requires the module at path from the top-level module. It does
// not run the loop.
func (a *Adapter) RunMain(path string) error {
	a.logger.Debug().
		Str("module", path).
		Log("gojaeventloop: running main module")
	_, err := a.registry.Require(path, nil)
	return err
}

// RunString evaluates source as top-level script code, in which require,
// module and exports refer to the top-level module.
func (a *Adapter) RunString(name, source string) (goja.Value, error) {
	return a.runtime.RunScript(name, source)
}

// QueueWork is [eventloop.Loop.QueueWork] with a script callback, which
// receives the work result (or an Error on failure) followed by args.
func (a *Adapter) QueueWork(buf []byte, work eventloop.WorkFunc, cb goja.Callable, args ...goja.Value) error {
	if cb == nil {
		return fmt.Errorf("gojaeventloop: work callback cannot be nil: %w", eventloop.ErrInvalidArgument)
	}
	return a.loop.QueueWork(buf, work, func(result eventloop.Result, args ...any) error {
		_, err := cb(goja.Undefined(), append([]goja.Value{a.toValue(result)}, a.values(args)...)...)
		return err
	}, a.captured(args)...)
}

// Promisify runs fn on a worker thread and returns a script promise for its
// result.
func (a *Adapter) Promisify(ctx context.Context, fn func(ctx context.Context) (eventloop.Result, error)) goja.Value {
	return a.wrapPromise(a.loop.Promisify(ctx, fn))
}

// ExitCode returns process.exitCode as an integer.
func (a *Adapter) ExitCode() int {
	if a.process == nil {
		return 0
	}
	v := a.process.Get("exitCode")
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return int(v.ToInteger())
}

// IsExit reports whether err was caused by process.exit() interrupting the
// runtime.
func IsExit(err error) bool {
	var interrupted *goja.InterruptedError
	if !errors.As(err, &interrupted) {
		return false
	}
	_, ok := interrupted.Value().(exitRequest)
	return ok
}
