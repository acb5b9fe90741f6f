package workspace

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/brimdata/flow/errors"
	"github.com/brimdata/flow/filter"
	"github.com/brimdata/flow/graph"
	"github.com/brimdata/flow/runtime/fuse"
	"github.com/brimdata/flow/runtime/interp"
	"github.com/brimdata/flow/vector"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

type Backend int

const (
	Interpret Backend = iota
	Fuse
)

func (b Backend) String() string {
	switch b {
	case Interpret:
		return interp.Backend
	case Fuse:
		return fuse.Backend
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(s) {
	case interp.Backend, "interpret", "interpreter":
		return Interpret, nil
	case fuse.Backend, "fuser", "compile":
		return Fuse, nil
	}
	return 0, errors.E(errors.Invalid, "unknown backend %q", s)
}

type State int

const (
	Building State = iota
	Compiled
	// Stale is a Context mutated after it was compiled.  It behaves as
	// Building.
	Stale
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Compiled:
		return "compiled"
	case Stale:
		return "stale"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Context is a scope of a Workspace bound to one backend and one output.
// A Context accepts mutations only after Start.  Its methods may be called
// from multiple goroutines.
type Context struct {
	id      ksuid.KSUID
	name    string
	backend Backend
	ws      *Workspace
	logger  *zap.Logger

	mu      sync.Mutex
	started bool
	graph   *graph.Graph
	output  string
	shape   vector.Shape
	// last is the most recently added instance, the output when none is
	// set.
	last string
	// compiled is valid while version equals the graph's version.
	compiled *fuse.Compiled
	plan     graph.Plan
	version  uint64
	// artifacts holds the most recently compiled kernels keyed by
	// artifactKey.
	artifacts *lru.Cache[uint64, *fuse.Compiled]
}

// ArtifactLimit bounds the kernels a Context keeps for reuse.  Evicted
// kernels are regenerated on demand and their device code is usually still
// in the Workspace cache.
const ArtifactLimit = 8

func newContext(w *Workspace, name string, backend Backend) *Context {
	id := ksuid.New()
	// lru.New fails only for a non-positive size.
	artifacts, _ := lru.New[uint64, *fuse.Compiled](ArtifactLimit)
	return &Context{
		id:        id,
		name:      name,
		backend:   backend,
		ws:        w,
		logger:    w.logger.With(zap.String("context", name), zap.Stringer("context_id", id)),
		graph:     graph.New(),
		artifacts: artifacts,
	}
}

func (c *Context) ID() ksuid.KSUID {
	return c.id
}

func (c *Context) Name() string {
	return c.name
}

func (c *Context) Backend() Backend {
	return c.backend
}

// Graph returns the Context's scope.  Changes made through it bypass the
// Start check but still mark a compiled Context stale.
func (c *Context) Graph() *graph.Graph {
	return c.graph
}

// Start makes the Context ready to accept mutations.
func (c *Context) Start() {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
}

func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

func (c *Context) state() State {
	switch {
	case c.plan == nil:
		return Building
	case c.version != c.graph.Version():
		return Stale
	}
	return Compiled
}

// mutate runs fn if the Context has been started.
func (c *Context) mutate(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrNotStarted
	}
	return fn()
}

func (c *Context) FilterSpec(typ string) (*filter.Spec, error) {
	return c.ws.registry.Lookup(typ)
}

func (c *Context) HasSource(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.graph.Source(name)
	return ok
}

func (c *Context) AddSource(name string, value *vector.Array) error {
	return c.mutate(func() error {
		return c.graph.AddSource(name, value)
	})
}

func (c *Context) DeclareSource(name string, shape vector.Shape) error {
	return c.mutate(func() error {
		return c.graph.DeclareSource(name, shape)
	})
}

// BindSource binds a value to a source.  Rebinding a value of the same
// shape keeps a compiled kernel valid.
func (c *Context) BindSource(name string, value *vector.Array) error {
	return c.mutate(func() error {
		return c.graph.BindSource(name, value)
	})
}

func (c *Context) AddFilter(typ, name string, params map[string]interface{}) error {
	return c.mutate(func() error {
		if err := addFilter(c.ws.registry, c.graph, typ, name, params); err != nil {
			return err
		}
		c.last = name
		return nil
	})
}

func (c *Context) SetParam(instance, key string, value interface{}) error {
	return c.mutate(func() error {
		return c.graph.SetParam(instance, key, value)
	})
}

func (c *Context) Connect(from, to graph.Endpoint) error {
	return c.mutate(func() error {
		return c.graph.Connect(from, to)
	})
}

// SetOutput names the instance whose default output the Context produces.
// Until it is called, the most recently added instance is the output.
func (c *Context) SetOutput(instance string) error {
	return c.mutate(func() error {
		if _, ok := c.graph.Instance(instance); !ok {
			return &graph.UnknownEndpointError{Endpoint: graph.Output(instance), Suggestion: filter.Suggest(instance, c.graph.InstanceNames())}
		}
		if c.output != instance {
			c.output = instance
			c.invalidate()
		}
		return nil
	})
}

// SetOutputShape declares the shape of the output, which sizes the
// iteration domain of the generated kernel.
func (c *Context) SetOutputShape(shape vector.Shape) error {
	return c.mutate(func() error {
		if err := shape.Validate(); err != nil {
			return err
		}
		if c.shape.Equal(shape) && (c.shape == nil) == (shape == nil) {
			return nil
		}
		c.shape = nil
		if shape != nil {
			c.shape = append(vector.Shape{}, shape...)
		}
		c.invalidate()
		return nil
	})
}

func (c *Context) invalidate() {
	c.plan = nil
	c.compiled = nil
}

func (c *Context) outputInstance() (string, error) {
	if c.output != "" {
		return c.output, nil
	}
	if c.last == "" {
		return "", &NoOutputError{Context: c.name}
	}
	return c.last, nil
}

// Compile validates the Context's graph and, for a Fuse context, generates
// and compiles its kernel and returns the kernel source.  Compiling an
// unchanged Context returns the same source without invoking the device
// compiler.  An Interpret context has no kernel and returns an empty source.
func (c *Context) Compile(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.compile(ctx); err != nil {
		return "", err
	}
	if c.compiled == nil {
		return "", nil
	}
	return c.compiled.Source, nil
}

func (c *Context) compile(ctx context.Context) error {
	if !c.started {
		return ErrNotStarted
	}
	if c.state() == Compiled {
		return nil
	}
	output, err := c.outputInstance()
	if err != nil {
		return err
	}
	version := c.graph.Version()
	if c.backend == Interpret {
		plan, err := c.graph.PlanFor(output)
		if err != nil {
			return err
		}
		c.plan, c.compiled, c.version = plan, nil, version
		return nil
	}
	key := c.artifactKey(output)
	compiled, ok := c.artifacts.Get(key)
	if !ok {
		compiled, err = fuse.Compile(ctx, c.ws.cache, c.graph, output, c.shape)
		if err != nil {
			return err
		}
		c.artifacts.Add(key, compiled)
		c.logger.Debug("Kernel generated",
			zap.String("output", output),
			zap.Stringer("shape", compiled.Shape),
			zap.Int("instances", len(compiled.Plan)))
	}
	c.plan, c.compiled, c.version = compiled.Plan, compiled, version
	return nil
}

// artifactKey hashes what a generated kernel depends on.
func (c *Context) artifactKey(output string) uint64 {
	d := xxhash.New()
	fmt.Fprintf(d, "%x %q ", c.graph.Hash(), output)
	if c.shape != nil {
		d.WriteString(c.shape.String())
	}
	return d.Sum64()
}

// Run compiles the Context if it is not Compiled and runs it on its
// backend.  The result has the declared output shape, if any.
func (c *Context) Run(ctx context.Context) (*vector.Array, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.compile(ctx); err != nil {
		return nil, err
	}
	if c.compiled != nil {
		out, err := c.compiled.Run(ctx, c.graph)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("Kernel ran", zap.Int("elements", len(out.Values)))
		return out, nil
	}
	results, err := c.ws.interp.Execute(ctx, c.graph, c.plan)
	if err != nil {
		return nil, err
	}
	output := c.plan[len(c.plan)-1]
	out, _ := results.Output(output)
	if c.shape != nil && !c.shape.Equal(out.Shape) {
		return nil, &vector.ShapeMismatchError{Op: "output " + output, Want: c.shape, Got: out.Shape}
	}
	return out, nil
}
