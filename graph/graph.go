// Package graph holds the structure of a dataflow graph: named external
// sources, filter instances and the connections between them.  Instances
// live in an arena addressed by creation index, which is also the tie
// breaker that makes execution plans deterministic.  A Graph validates every
// mutation eagerly so a malformed graph is rejected at the offending call.
//
// A Graph is not safe for concurrent mutation.
package graph

import (
	"fmt"

	"github.com/brimdata/flow/filter"
	"github.com/brimdata/flow/vector"
)

// PlaceholderPrefix starts the name of a source the generator created for
// an identifier that was not yet bound.
const PlaceholderPrefix = ":"

type Source struct {
	Name string
	// Value is nil until the source is bound.
	Value *vector.Array
	// Shape is the declared shape.  It is valid when Value is non-nil or
	// Declared is true.
	Shape    vector.Shape
	Declared bool
}

func (s *Source) Bound() bool {
	return s.Value != nil
}

// HasShape is true when the source's shape is known, whether or not a
// value is bound.
func (s *Source) HasShape() bool {
	return s.Value != nil || s.Declared
}

func (s *Source) IsPlaceholder() bool {
	return len(s.Name) > 0 && s.Name[:1] == PlaceholderPrefix
}

type Instance struct {
	Name   string
	Spec   *filter.Spec
	Params filter.Params
	index  int
	// inputs maps each input port (by position) to the index of its
	// incoming connection, or -1.
	inputs []int
}

func (i *Instance) Index() int {
	return i.index
}

// Endpoint names either an external source or a port of an instance.
type Endpoint struct {
	Source   string `json:"source,omitempty"`
	Instance string `json:"instance,omitempty"`
	Port     string `json:"port,omitempty"`
}

func SourceRef(name string) Endpoint {
	return Endpoint{Source: name}
}

func PortRef(instance, port string) Endpoint {
	return Endpoint{Instance: instance, Port: port}
}

// Output refers to an instance's default output port.
func Output(instance string) Endpoint {
	return Endpoint{Instance: instance, Port: filter.DefaultOutput}
}

func (e Endpoint) IsSource() bool {
	return e.Instance == ""
}

func (e Endpoint) String() string {
	if e.IsSource() {
		return "source " + e.Source
	}
	return e.Instance + "." + e.Port
}

type Connection struct {
	From Endpoint `json:"from"`
	To   Endpoint `json:"to"`
}

func (c Connection) String() string {
	return fmt.Sprintf("%s -> %s", c.From, c.To)
}

type Graph struct {
	sources       []*Source
	sourceIndex   map[string]int
	instances     []*Instance
	instanceIndex map[string]int
	conns         []Connection
	// succ holds, per instance, the indexes of the instances it feeds.
	succ    [][]int
	version uint64
	// bindings counts BindSource calls, including those that leave version
	// unchanged.
	bindings uint64
}

func New() *Graph {
	return &Graph{
		sourceIndex:   make(map[string]int),
		instanceIndex: make(map[string]int),
	}
}

// Version increases with every successful mutation.
func (g *Graph) Version() uint64 {
	return g.version
}

// Bindings increases every time a value is bound to a source, so results
// computed from earlier values can be recognized as stale.
func (g *Graph) Bindings() uint64 {
	return g.bindings
}

func (g *Graph) newSource(s *Source) error {
	if _, ok := g.sourceIndex[s.Name]; ok {
		return &DuplicateSourceError{Name: s.Name}
	}
	g.sourceIndex[s.Name] = len(g.sources)
	g.sources = append(g.sources, s)
	g.version++
	return nil
}

// AddSource binds an external array under name.
func (g *Graph) AddSource(name string, value *vector.Array) error {
	if name == "" {
		return &InvalidNameError{Name: name}
	}
	if value == nil {
		return g.AddPlaceholder(name)
	}
	return g.newSource(&Source{Name: name, Value: value, Shape: value.Shape})
}

// DeclareSource adds a source whose shape is known but whose value is bound
// later with BindSource.
func (g *Graph) DeclareSource(name string, shape vector.Shape) error {
	if name == "" {
		return &InvalidNameError{Name: name}
	}
	if err := shape.Validate(); err != nil {
		return err
	}
	return g.newSource(&Source{Name: name, Shape: shape, Declared: true})
}

// AddPlaceholder adds a source with neither value nor shape.
func (g *Graph) AddPlaceholder(name string) error {
	if name == "" {
		return &InvalidNameError{Name: name}
	}
	return g.newSource(&Source{Name: name})
}

// BindSource binds value to an existing source.  A declared shape must
// match the value's shape.
func (g *Graph) BindSource(name string, value *vector.Array) error {
	k, ok := g.sourceIndex[name]
	if !ok {
		return &UnknownEndpointError{Endpoint: SourceRef(name), Suggestion: filter.Suggest(name, g.SourceNames())}
	}
	src := g.sources[k]
	if src.Declared && !src.Shape.Equal(value.Shape) {
		return &vector.ShapeMismatchError{Op: "bind " + name, Want: src.Shape, Got: value.Shape}
	}
	if src.Value == nil || !src.Shape.Equal(value.Shape) {
		// Binding a value of a new shape changes generated code.
		g.version++
	}
	src.Value = value
	src.Shape = value.Shape
	g.bindings++
	return nil
}

// AddFilter instantiates spec under name with the given raw parameters.
func (g *Graph) AddFilter(spec *filter.Spec, name string, params map[string]interface{}) (*Instance, error) {
	if name == "" {
		return nil, &InvalidNameError{Name: name}
	}
	if _, ok := g.instanceIndex[name]; ok {
		return nil, &DuplicateInstanceError{Name: name}
	}
	p, err := spec.Bind(params)
	if err != nil {
		return nil, err
	}
	inputs := make([]int, len(spec.Inputs))
	for k := range inputs {
		inputs[k] = -1
	}
	inst := &Instance{
		Name:   name,
		Spec:   spec,
		Params: p,
		index:  len(g.instances),
		inputs: inputs,
	}
	g.instanceIndex[name] = inst.index
	g.instances = append(g.instances, inst)
	g.succ = append(g.succ, nil)
	g.version++
	return inst, nil
}

// SetParam updates one parameter of an existing instance.
func (g *Graph) SetParam(instance, key string, value interface{}) error {
	inst, ok := g.Instance(instance)
	if !ok {
		return &UnknownEndpointError{Endpoint: Endpoint{Instance: instance}, Suggestion: filter.Suggest(instance, g.InstanceNames())}
	}
	raw := make(map[string]interface{}, len(inst.Params)+1)
	for k, v := range inst.Params {
		raw[k] = v
	}
	raw[key] = value
	p, err := inst.Spec.Bind(raw)
	if err != nil {
		return err
	}
	inst.Params = p
	g.version++
	return nil
}

// Connect adds a connection from an external source or an instance's output
// port to an instance's input port.
func (g *Graph) Connect(from, to Endpoint) error {
	var fromIndex = -1
	if from.IsSource() {
		if _, ok := g.sourceIndex[from.Source]; !ok {
			return &UnknownEndpointError{Endpoint: from, Suggestion: filter.Suggest(from.Source, g.SourceNames())}
		}
	} else {
		src, ok := g.Instance(from.Instance)
		if !ok {
			return &UnknownEndpointError{Endpoint: from, Suggestion: filter.Suggest(from.Instance, g.InstanceNames())}
		}
		if !src.Spec.HasOutput(from.Port) {
			return &PortArityError{Instance: src.Name, Type: src.Spec.Name, Port: from.Port, Output: true}
		}
		fromIndex = src.index
	}
	if to.IsSource() {
		return &UnknownEndpointError{Endpoint: to}
	}
	dst, ok := g.Instance(to.Instance)
	if !ok {
		return &UnknownEndpointError{Endpoint: to, Suggestion: filter.Suggest(to.Instance, g.InstanceNames())}
	}
	port := dst.Spec.InputIndex(to.Port)
	if port < 0 {
		return &PortArityError{Instance: dst.Name, Type: dst.Spec.Name, Port: to.Port}
	}
	if k := dst.inputs[port]; k >= 0 {
		return &PortAlreadyBoundError{Instance: dst.Name, Port: to.Port, Existing: g.conns[k].From}
	}
	dst.inputs[port] = len(g.conns)
	g.conns = append(g.conns, Connection{From: from, To: to})
	if fromIndex >= 0 {
		g.succ[fromIndex] = append(g.succ[fromIndex], dst.index)
	}
	g.version++
	return nil
}

func (g *Graph) Instance(name string) (*Instance, bool) {
	k, ok := g.instanceIndex[name]
	if !ok {
		return nil, false
	}
	return g.instances[k], true
}

// Instances returns the instances in creation order.
func (g *Graph) Instances() []*Instance {
	return g.instances
}

func (g *Graph) InstanceNames() []string {
	names := make([]string, 0, len(g.instances))
	for _, inst := range g.instances {
		names = append(names, inst.Name)
	}
	return names
}

func (g *Graph) Source(name string) (*Source, bool) {
	k, ok := g.sourceIndex[name]
	if !ok {
		return nil, false
	}
	return g.sources[k], true
}

// Sources returns the sources in creation order.
func (g *Graph) Sources() []*Source {
	return g.sources
}

func (g *Graph) SourceNames() []string {
	names := make([]string, 0, len(g.sources))
	for _, s := range g.sources {
		names = append(names, s.Name)
	}
	return names
}

// Connections returns the connections in creation order.
func (g *Graph) Connections() []Connection {
	return g.conns
}

// Input returns the endpoint connected to the input port at position k of
// inst.
func (g *Graph) Input(inst *Instance, k int) (Endpoint, bool) {
	c := inst.inputs[k]
	if c < 0 {
		return Endpoint{}, false
	}
	return g.conns[c].From, true
}

// Inputs returns the endpoints connected to each input port of inst.  It
// returns a MissingConnectionError for the first unconnected port.
func (g *Graph) Inputs(inst *Instance) ([]Endpoint, error) {
	out := make([]Endpoint, 0, len(inst.inputs))
	for k := range inst.inputs {
		e, ok := g.Input(inst, k)
		if !ok {
			return nil, &MissingConnectionError{Instance: inst.Name, Port: inst.Spec.Inputs[k]}
		}
		out = append(out, e)
	}
	return out, nil
}
