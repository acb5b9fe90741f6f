package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/brimdata/flow/compiler/ast"
	"github.com/brimdata/flow/errors"
	"github.com/brimdata/flow/filter"
	"github.com/brimdata/flow/graph"
	"github.com/brimdata/flow/vector"
)

// Builder is the graph mutation surface the generator lowers statements
// into.  Both a Workspace and a Context implement it.
type Builder interface {
	FilterSpec(typ string) (*filter.Spec, error)
	HasSource(name string) bool
	AddSource(name string, value *vector.Array) error
	AddFilter(typ, name string, params map[string]interface{}) error
	Connect(from, to graph.Endpoint) error
}

// Operators maps each binary operator to the filter type implementing it.
var Operators = map[string]string{
	"+": "add",
	"-": "sub",
	"*": "mult",
	"/": "div",
	"^": "pow",
}

type Option func(*Generator)

// WithPlaceholders makes an identifier that names neither an earlier
// target nor a source resolve to a placeholder source ":name", which is
// added on first use and must be bound before execution.
func WithPlaceholders() Option {
	return func(g *Generator) {
		g.placeholders = true
	}
}

// WithDedup shares the instances of identical subexpressions instead of
// lowering each occurrence separately.  Statement roots are never shared so
// every target keeps an instance of its own.
func WithDedup() Option {
	return func(g *Generator) {
		g.dedup = true
	}
}

// WithOutput designates the target whose instance is the graph output in
// place of the last statement's.
func WithOutput(target string) Option {
	return func(g *Generator) {
		g.output = target
	}
}

// Op records one graph construction call made by the generator.
type Op struct {
	Op     string                 `json:"op"`
	Type   string                 `json:"type,omitempty"`
	Name   string                 `json:"name,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
	From   *graph.Endpoint        `json:"from,omitempty"`
	To     *graph.Endpoint        `json:"to,omitempty"`
}

func (o Op) String() string {
	switch o.Op {
	case "add_filter":
		if len(o.Params) > 0 {
			var p filter.Params = o.Params
			return fmt.Sprintf("add_filter %s %s %s", o.Type, o.Name, p.Canonical())
		}
		return fmt.Sprintf("add_filter %s %s", o.Type, o.Name)
	case "add_source":
		return "add_source " + o.Name
	case "connect":
		return fmt.Sprintf("connect %s -> %s", o.From, o.To)
	}
	return o.Op
}

type Result struct {
	// Output names the instance holding the designated output, or is empty
	// when nothing was lowered.
	Output string `json:"output"`
	// Targets lists the statement targets in the order they were lowered.
	Targets []string `json:"targets"`
	// Placeholders lists the placeholder sources that were added.
	Placeholders []string `json:"placeholders,omitempty"`
	// Ops is the sequence of graph construction calls.
	Ops []Op `json:"ops"`
}

// Generator lowers statements into graph construction calls.  Targets
// lowered by one call to Lower remain visible to later calls, so statements
// can be fed to a Generator one at a time.
type Generator struct {
	builder      Builder
	placeholders bool
	dedup        bool
	output       string
	targets      map[string]bool
	// placeheld maps each name resolved to a placeholder to the offset of
	// its first use, so a later statement cannot define it.
	placeheld map[string]int
	// memo maps the key of each lowered subexpression to its result when
	// deduplicating.
	memo   map[string]graph.Endpoint
	result *Result
	// Per-statement state.
	target  string
	counter int
}

func NewGenerator(b Builder, opts ...Option) *Generator {
	g := &Generator{
		builder: b,
		targets:   make(map[string]bool),
		placeheld: make(map[string]int),
		memo:      make(map[string]graph.Endpoint),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Lower lowers stmts into b with a new Generator.
func Lower(stmts []*ast.Statement, b Builder, opts ...Option) (*Result, error) {
	return NewGenerator(b, opts...).Lower(stmts)
}

// Lower walks each statement's expression in post order, adding one filter
// instance per operator, call and literal and connecting each operand to
// the consuming instance's input ports in argument order.  It stops at the
// first error; instances added before the error remain in the builder.
func (g *Generator) Lower(stmts []*ast.Statement) (*Result, error) {
	g.result = &Result{}
	for _, stmt := range stmts {
		if err := g.lowerStatement(stmt); err != nil {
			return g.result, err
		}
		g.result.Output = stmt.Target
	}
	if g.output != "" {
		if !g.targets[g.output] {
			return g.result, &UnresolvedReferenceError{Name: g.output, NamePos: -1}
		}
		g.result.Output = g.output
	}
	return g.result, nil
}

func (g *Generator) lowerStatement(stmt *ast.Statement) error {
	g.target = stmt.Target
	g.counter = 0
	if g.targets[stmt.Target] {
		return &Error{Err: &graph.DuplicateInstanceError{Name: stmt.Target}, Position: stmt.TargetPos, EndPos: stmt.TargetPos + len(stmt.Target)}
	}
	if pos, ok := g.placeheld[stmt.Target]; ok {
		// An earlier statement used the target before this one defined it.
		return &UnresolvedReferenceError{Name: stmt.Target, NamePos: pos}
	}
	root := stmt.Expr
	if _, ok := root.(*ast.Ident); ok {
		// A bare name still gets an instance so the target can be an output.
		root = ast.NewCall("copy", []ast.Expr{root}, root.Pos(), root.End()-1)
	}
	if _, err := g.lowerExpr(root, true); err != nil {
		return err
	}
	g.targets[stmt.Target] = true
	g.result.Targets = append(g.result.Targets, stmt.Target)
	return nil
}

func (g *Generator) lowerExpr(e ast.Expr, root bool) (graph.Endpoint, error) {
	switch e := e.(type) {
	case *ast.Literal:
		params := map[string]interface{}{"value": e.Value}
		return g.instance(e, "const", root, params, nil)
	case *ast.Ident:
		return g.resolve(e)
	case *ast.BinOp:
		typ, ok := Operators[e.Op]
		if !ok {
			return graph.Endpoint{}, &Error{Err: fmt.Errorf("unknown operator %q", e.Op), Position: e.Pos(), EndPos: e.End()}
		}
		return g.apply(e, typ, []ast.Expr{e.LHS, e.RHS}, root)
	case *ast.Call:
		return g.apply(e, e.Name, e.Args, root)
	}
	return graph.Endpoint{}, fmt.Errorf("unknown expression type %T", e)
}

func (g *Generator) apply(e ast.Expr, typ string, args []ast.Expr, root bool) (graph.Endpoint, error) {
	spec, err := g.builder.FilterSpec(typ)
	if err != nil {
		return graph.Endpoint{}, &Error{Err: err, Position: e.Pos(), EndPos: e.End()}
	}
	n := len(spec.Inputs)
	if len(args) < n || len(args) > n+len(spec.Params) {
		return graph.Endpoint{}, &ArgumentCountError{Name: typ, Want: n, Got: len(args), Position: e.Pos(), EndPos: e.End()}
	}
	params, err := callParams(spec, args[n:])
	if err != nil {
		return graph.Endpoint{}, err
	}
	inputs := make([]graph.Endpoint, 0, n)
	for _, arg := range args[:n] {
		in, err := g.lowerExpr(arg, false)
		if err != nil {
			return graph.Endpoint{}, err
		}
		inputs = append(inputs, in)
	}
	return g.instance(e, typ, root, params, inputs)
}

// callParams binds the arguments following a call's inputs to the filter
// type's parameters in declaration order, as in decompose(v, 1).  Each must
// be a number literal.
func callParams(spec *filter.Spec, args []ast.Expr) (map[string]interface{}, error) {
	if len(args) == 0 {
		return nil, nil
	}
	params := make(map[string]interface{}, len(args))
	for k, arg := range args {
		name := spec.Params[k].Name
		lit, ok := arg.(*ast.Literal)
		if !ok {
			err := &filter.InvalidParameterError{Type: spec.Name, Param: name, Reason: "value must be a number literal"}
			return nil, &Error{Err: err, Position: arg.Pos(), EndPos: arg.End()}
		}
		params[name] = lit.Value
	}
	return params, nil
}

// instance adds an instance of typ fed by inputs, or with deduplication
// enabled, reuses an equivalent one.
func (g *Generator) instance(e ast.Expr, typ string, root bool, params map[string]interface{}, inputs []graph.Endpoint) (graph.Endpoint, error) {
	var key string
	if g.dedup {
		key = memoKey(typ, params, inputs)
		if out, ok := g.memo[key]; ok && !root {
			return out, nil
		}
	}
	g.counter++
	name := g.target
	if !root {
		name = fmt.Sprintf("_%s_%s_%d", g.target, typ, g.counter)
	}
	if err := g.builder.AddFilter(typ, name, params); err != nil {
		return graph.Endpoint{}, &Error{Err: err, Position: e.Pos(), EndPos: e.End()}
	}
	g.result.Ops = append(g.result.Ops, Op{Op: "add_filter", Type: typ, Name: name, Params: params})
	spec, err := g.builder.FilterSpec(typ)
	if err != nil {
		return graph.Endpoint{}, err
	}
	for k, from := range inputs {
		from := from
		to := graph.PortRef(name, spec.Inputs[k])
		if err := g.builder.Connect(from, to); err != nil {
			return graph.Endpoint{}, &Error{Err: err, Position: e.Pos(), EndPos: e.End()}
		}
		g.result.Ops = append(g.result.Ops, Op{Op: "connect", From: &from, To: &to})
	}
	out := graph.Output(name)
	if g.dedup {
		if _, ok := g.memo[key]; !ok {
			g.memo[key] = out
		}
	}
	return out, nil
}

// resolve binds an identifier to an earlier target, then to a source of
// the same name, then (with placeholders enabled) to a placeholder source.
func (g *Generator) resolve(id *ast.Ident) (graph.Endpoint, error) {
	if g.targets[id.Name] {
		return graph.Output(id.Name), nil
	}
	if g.builder.HasSource(id.Name) {
		return graph.SourceRef(id.Name), nil
	}
	if g.placeholders {
		name := graph.PlaceholderPrefix + id.Name
		if !g.builder.HasSource(name) {
			if err := g.builder.AddSource(name, nil); err != nil {
				return graph.Endpoint{}, &Error{Err: err, Position: id.Pos(), EndPos: id.End()}
			}
			g.result.Placeholders = append(g.result.Placeholders, name)
			g.result.Ops = append(g.result.Ops, Op{Op: "add_source", Name: name})
		}
		if _, ok := g.placeheld[id.Name]; !ok {
			g.placeheld[id.Name] = id.NamePos
		}
		return graph.SourceRef(name), nil
	}
	return graph.Endpoint{}, &UnresolvedReferenceError{Name: id.Name, NamePos: id.NamePos}
}

func memoKey(typ string, params map[string]interface{}, inputs []graph.Endpoint) string {
	var b strings.Builder
	b.WriteString(typ)
	if len(params) > 0 {
		var p filter.Params = params
		b.WriteString(" " + p.Canonical())
	}
	for _, in := range inputs {
		b.WriteString(" " + strconv.Quote(in.String()))
	}
	return b.String()
}

// UnresolvedReferenceError is returned for an identifier that names
// neither an earlier target nor a source, including a reference to a target
// defined by a later statement.
type UnresolvedReferenceError struct {
	Name string
	// NamePos is the offset of the identifier or -1 when the name did not
	// come from source text.
	NamePos int
}

func (e *UnresolvedReferenceError) Error() string {
	if e.NamePos < 0 {
		return e.Message()
	}
	return fmt.Sprintf("%s at position %d", e.Message(), e.NamePos)
}

func (e *UnresolvedReferenceError) Message() string {
	return fmt.Sprintf("unresolved reference %q", e.Name)
}

func (e *UnresolvedReferenceError) Pos() int        { return e.NamePos }
func (e *UnresolvedReferenceError) End() int        { return e.NamePos + len(e.Name) }
func (*UnresolvedReferenceError) Kind() errors.Kind { return errors.Invalid }

// ArgumentCountError is returned when an operator or call supplies fewer
// operands than the filter type has inputs, or more than its inputs and
// parameters together.
type ArgumentCountError struct {
	Name     string
	Want     int
	Got      int
	Position int
	EndPos   int
}

func (e *ArgumentCountError) Error() string {
	return fmt.Sprintf("%s at position %d", e.Message(), e.Position)
}

func (e *ArgumentCountError) Message() string {
	return fmt.Sprintf("%s takes %d argument(s), got %d", e.Name, e.Want, e.Got)
}

func (e *ArgumentCountError) Pos() int        { return e.Position }
func (e *ArgumentCountError) End() int        { return e.EndPos }
func (*ArgumentCountError) Kind() errors.Kind { return errors.Invalid }

// Error attaches the position of the offending expression to an error
// raised by the builder.
type Error struct {
	Err      error
	Position int
	EndPos   int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at position %d", e.Err, e.Position)
}

func (e *Error) Unwrap() error     { return e.Err }
func (e *Error) Message() string   { return e.Err.Error() }
func (e *Error) Pos() int          { return e.Position }
func (e *Error) End() int          { return e.EndPos }
func (e *Error) Kind() errors.Kind { return errors.KindOf(e.Err) }
