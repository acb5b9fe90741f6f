// Package fuse is the kernel-fusing backend.  It walks the execution plan
// of the instances an output depends on and emits one statement per
// instance into a single kernel body, so every intermediate value lives in
// a per-work-item temporary instead of an array.  The kernel is compiled by
// a device.Compiler and launched once over the output's elements.
package fuse

import (
	"fmt"
	"strings"

	"github.com/brimdata/flow/filter"
	"github.com/brimdata/flow/graph"
	"github.com/brimdata/flow/vector"
)

const Backend = "fuse"

// KernelName is the name of the generated kernel function.
const KernelName = "kmain"

// OutputParam is the name of the generated kernel's output buffer.
const OutputParam = "out"

// Binding ties a kernel parameter to the source supplying its argument.
type Binding struct {
	Param  string       `json:"param"`
	Source string       `json:"source"`
	Shape  vector.Shape `json:"shape"`
	// Buffer is false for a scalar source passed by value.
	Buffer bool `json:"buffer"`
}

// Kernel is a generated kernel together with what is needed to launch it.
type Kernel struct {
	Source   string       `json:"source"`
	Output   string       `json:"output"`
	Shape    vector.Shape `json:"shape"`
	Bindings []Binding    `json:"bindings"`
	// Plan lists the instances fused into the kernel in emission order.
	Plan graph.Plan `json:"plan"`
}

// Generate emits the kernel computing the default output of instance
// output.  Only the instances output depends on are emitted.  Every source
// they read must have a known shape, and every filter type must implement
// Codegen.  If shape is non-nil, the inferred output shape must equal it.
func Generate(g *graph.Graph, output string, shape vector.Shape) (*Kernel, error) {
	plan, err := g.PlanFor(output)
	if err != nil {
		return nil, err
	}
	gen := &generator{
		g:      g,
		params: make(map[string]string),
		used:   make(map[string]bool),
		temps:  make(map[string]string),
		shapes: make(map[string]vector.Shape),
		kernel: &Kernel{Output: output, Plan: plan},
	}
	// Fail on a missing capability before generating anything.
	for _, name := range plan {
		inst, _ := g.Instance(name)
		if _, ok := inst.Spec.Codegen(); !ok {
			return nil, &filter.UnsupportedOperationError{Type: inst.Spec.Name, Backend: Backend, Reason: "no Gen implementation"}
		}
	}
	for k, name := range plan {
		inst, _ := g.Instance(name)
		if err := gen.emit(k, inst); err != nil {
			return nil, fmt.Errorf("filter instance %q: %w", name, err)
		}
	}
	out := gen.shapes[output]
	if shape != nil && !shape.Equal(out) {
		return nil, &vector.ShapeMismatchError{Op: "output " + output, Want: shape, Got: out}
	}
	gen.kernel.Shape = out
	gen.kernel.Source = gen.source(output)
	return gen.kernel, nil
}

type generator struct {
	g *graph.Graph
	// params maps source names to kernel parameter names.
	params map[string]string
	used   map[string]bool
	// temps maps instance names to the temporaries holding their output.
	temps  map[string]string
	shapes map[string]vector.Shape
	body   []string
	kernel *Kernel
}

func (gen *generator) emit(k int, inst *graph.Instance) error {
	endpoints, err := gen.g.Inputs(inst)
	if err != nil {
		return err
	}
	operands := make([]filter.Operand, 0, len(endpoints))
	shapes := make([]vector.Shape, 0, len(endpoints))
	for _, e := range endpoints {
		op, shape, err := gen.operand(e)
		if err != nil {
			return err
		}
		operands = append(operands, op)
		shapes = append(shapes, shape)
	}
	shape, err := inst.Spec.OutputShape(shapes, inst.Params)
	if err != nil {
		return err
	}
	codegen, _ := inst.Spec.Codegen()
	frag, err := codegen.Gen(operands, inst.Params)
	if err != nil {
		return err
	}
	temp := fmt.Sprintf("t%d", k)
	gen.temps[inst.Name] = temp
	gen.shapes[inst.Name] = shape
	gen.body = append(gen.body, fmt.Sprintf("double %s = %s;", temp, frag))
	return nil
}

func (gen *generator) operand(e graph.Endpoint) (filter.Operand, vector.Shape, error) {
	if !e.IsSource() {
		temp, ok := gen.temps[e.Instance]
		if !ok {
			return filter.Operand{}, nil, fmt.Errorf("input %s was not generated before use", e)
		}
		return filter.Operand{Expr: temp}, gen.shapes[e.Instance], nil
	}
	src, ok := gen.g.Source(e.Source)
	if !ok {
		return filter.Operand{}, nil, &graph.UnknownEndpointError{Endpoint: e}
	}
	if !src.HasShape() {
		return filter.Operand{}, nil, &graph.UnboundSourceError{Name: src.Name}
	}
	param := gen.param(src)
	if src.Shape.IsScalar() {
		return filter.Operand{Expr: param}, src.Shape, nil
	}
	op := filter.Operand{
		Expr:   param + "[gid]",
		Buffer: param,
		Width:  src.Shape.Width(),
	}
	return op, src.Shape, nil
}

// param returns the kernel parameter bound to src, adding one on first use.
func (gen *generator) param(src *graph.Source) string {
	if name, ok := gen.params[src.Name]; ok {
		return name
	}
	name := paramName(src.Name)
	if gen.used[name] {
		base := name
		for k := 1; gen.used[name]; k++ {
			name = fmt.Sprintf("%s_%d", base, k)
		}
	}
	gen.used[name] = true
	gen.params[src.Name] = name
	gen.kernel.Bindings = append(gen.kernel.Bindings, Binding{
		Param:  name,
		Source: src.Name,
		Shape:  append(vector.Shape(nil), src.Shape...),
		Buffer: !src.Shape.IsScalar(),
	})
	return name
}

// paramName derives a C identifier from a source name, e.g., ":vx"
// becomes "in_vx".
func paramName(source string) string {
	var b strings.Builder
	b.WriteString("in_")
	for _, r := range strings.TrimPrefix(source, graph.PlaceholderPrefix) {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (gen *generator) source(output string) string {
	params := make([]string, 0, len(gen.kernel.Bindings)+1)
	for _, b := range gen.kernel.Bindings {
		if b.Buffer {
			params = append(params, "__global const double *"+b.Param)
		} else {
			params = append(params, "const double "+b.Param)
		}
	}
	params = append(params, "__global double *"+OutputParam)
	var b strings.Builder
	fmt.Fprintf(&b, "__kernel void %s(%s)\n{\n", KernelName, strings.Join(params, ", "))
	b.WriteString("\tint gid = get_global_id(0);\n")
	for _, line := range gen.body {
		b.WriteString("\t" + line + "\n")
	}
	fmt.Fprintf(&b, "\t%s[gid] = %s;\n}\n", OutputParam, gen.temps[output])
	return b.String()
}
