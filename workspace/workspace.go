// Package workspace is the public surface of the flow compiler.  A
// Workspace owns a filter registry, a default graph scope executed by the
// interpreter, and any number of named Contexts, each a separate scope bound
// to one backend.  Contexts of a Workspace share its kernel cache.
package workspace

import (
	"context"
	"sync"

	"github.com/brimdata/flow/errors"
	"github.com/brimdata/flow/filter"
	"github.com/brimdata/flow/graph"
	"github.com/brimdata/flow/runtime/device"
	"github.com/brimdata/flow/runtime/fuse"
	"github.com/brimdata/flow/runtime/interp"
	"github.com/brimdata/flow/vector"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type config struct {
	logger     *zap.Logger
	compiler   device.Compiler
	registerer prometheus.Registerer
	cacheSize  int
}

type Option func(*config)

func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithCompiler sets the device compiler used by Fuse contexts.  The
// default is the host compiler.
func WithCompiler(compiler device.Compiler) Option {
	return func(c *config) {
		c.compiler = compiler
	}
}

// WithRegisterer sets where the kernel cache registers its metrics.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = r
	}
}

func WithCacheSize(n int) Option {
	return func(c *config) {
		c.cacheSize = n
	}
}

type Workspace struct {
	logger   *zap.Logger
	registry *filter.Registry
	cache    *fuse.Cache
	interp   *interp.Interpreter

	// mu guards contexts.  The default scope follows the single-writer
	// rule of graph construction.
	mu       sync.Mutex
	contexts map[string]*Context

	graph   *graph.Graph
	results interp.Results
	// version and bindings are the graph's at the last Execute.
	version  uint64
	bindings uint64
}

// New returns a Workspace whose filter types come from reg.  If reg is nil,
// the built-in catalogue is used.
func New(reg *filter.Registry, opts ...Option) (*Workspace, error) {
	conf := config{
		logger:   zap.NewNop(),
		compiler: device.NewHost(),
	}
	for _, opt := range opts {
		opt(&conf)
	}
	if reg == nil {
		reg = filter.Builtins()
	}
	cache, err := fuse.NewCache(conf.compiler, conf.cacheSize, conf.registerer, conf.logger.Named("kernels"))
	if err != nil {
		return nil, err
	}
	return &Workspace{
		logger:   conf.logger,
		registry: reg,
		cache:    cache,
		interp:   interp.New(interp.WithLogger(conf.logger.Named("interp"))),
		contexts: make(map[string]*Context),
		graph:    graph.New(),
	}, nil
}

func (w *Workspace) Registry() *filter.Registry {
	return w.registry
}

// Graph returns the default scope.
func (w *Workspace) Graph() *graph.Graph {
	return w.graph
}

func (w *Workspace) Cache() *fuse.Cache {
	return w.cache
}

func (w *Workspace) RegisterFilterType(spec *filter.Spec) error {
	if err := w.registry.Register(spec); err != nil {
		return err
	}
	w.logger.Debug("Filter type registered", zap.String("type", spec.Name))
	return nil
}

func (w *Workspace) FilterSpec(typ string) (*filter.Spec, error) {
	return w.registry.Lookup(typ)
}

func (w *Workspace) HasSource(name string) bool {
	_, ok := w.graph.Source(name)
	return ok
}

func (w *Workspace) AddSource(name string, value *vector.Array) error {
	return w.graph.AddSource(name, value)
}

func (w *Workspace) DeclareSource(name string, shape vector.Shape) error {
	return w.graph.DeclareSource(name, shape)
}

func (w *Workspace) BindSource(name string, value *vector.Array) error {
	return w.graph.BindSource(name, value)
}

func (w *Workspace) AddFilter(typ, name string, params map[string]interface{}) error {
	return addFilter(w.registry, w.graph, typ, name, params)
}

func (w *Workspace) SetParam(instance, key string, value interface{}) error {
	return w.graph.SetParam(instance, key, value)
}

func (w *Workspace) Connect(from, to graph.Endpoint) error {
	return w.graph.Connect(from, to)
}

// ExecutionPlan validates the default scope and returns its instances in
// execution order.
func (w *Workspace) ExecutionPlan() (graph.Plan, error) {
	return w.graph.Plan()
}

// Execute runs the default scope with the interpreter.  The results are
// kept until the next Execute and are available through Result.
func (w *Workspace) Execute(ctx context.Context) (interp.Results, error) {
	plan, err := w.graph.Plan()
	if err != nil {
		return nil, err
	}
	results, err := w.interp.Execute(ctx, w.graph, plan)
	if err != nil {
		return nil, err
	}
	w.results = results
	w.version = w.graph.Version()
	w.bindings = w.graph.Bindings()
	return results, nil
}

// Result returns the default output of instance from the last Execute.
func (w *Workspace) Result(instance string) (*vector.Array, error) {
	if w.results == nil {
		return nil, errors.E(errors.Conflict, "workspace has not been executed")
	}
	if w.version != w.graph.Version() || w.bindings != w.graph.Bindings() {
		return nil, errors.E(errors.Conflict, "workspace changed since it was executed")
	}
	a, ok := w.results.Output(instance)
	if !ok {
		return nil, &graph.UnknownEndpointError{Endpoint: graph.Output(instance), Suggestion: filter.Suggest(instance, w.graph.InstanceNames())}
	}
	return a, nil
}

// NewContext creates a Context named name that runs on backend.
func (w *Workspace) NewContext(name string, backend Backend) (*Context, error) {
	if name == "" {
		return nil, &graph.InvalidNameError{Name: name}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.contexts[name]; ok {
		return nil, &DuplicateContextError{Name: name}
	}
	c := newContext(w, name, backend)
	w.contexts[name] = c
	w.logger.Debug("Context created", zap.String("context", name), zap.Stringer("id", c.id), zap.Stringer("backend", backend))
	return c, nil
}

func (w *Workspace) Context(name string) (*Context, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.contexts[name]
	return c, ok
}

// Contexts returns the names of the Workspace's contexts in sorted order.
func (w *Workspace) Contexts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := maps.Keys(w.contexts)
	slices.Sort(names)
	return names
}

func addFilter(reg *filter.Registry, g *graph.Graph, typ, name string, params map[string]interface{}) error {
	spec, err := reg.Lookup(typ)
	if err != nil {
		return err
	}
	_, err = g.AddFilter(spec, name, params)
	return err
}
