// Package interp is the reference backend.  It runs the filters of an
// execution plan one at a time, materializing every intermediate array, and
// is the oracle the fused backend is checked against.
package interp

import (
	"context"
	"fmt"

	"github.com/brimdata/flow/filter"
	"github.com/brimdata/flow/graph"
	"github.com/brimdata/flow/vector"
	"go.uber.org/zap"
)

const Backend = "interp"

// Key identifies an output port of an instance.
type Key struct {
	Instance string
	Port     string
}

func (k Key) String() string {
	return k.Instance + "." + k.Port
}

// Results holds the materialized output of every executed instance.
type Results map[Key]*vector.Array

// Output returns the array produced on the default output port of
// instance.
func (r Results) Output(instance string) (*vector.Array, bool) {
	a, ok := r[Key{instance, filter.DefaultOutput}]
	return a, ok
}

type Option func(*Interpreter)

func WithLogger(logger *zap.Logger) Option {
	return func(i *Interpreter) {
		i.logger = logger
	}
}

type Interpreter struct {
	logger *zap.Logger
}

func New(opts ...Option) *Interpreter {
	i := &Interpreter{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Execute runs the instances of g in plan order.
func Execute(ctx context.Context, g *graph.Graph, plan graph.Plan, opts ...Option) (Results, error) {
	return New(opts...).Execute(ctx, g, plan)
}

// Execute evaluates each instance of plan against the outputs of the
// instances and sources feeding it.  Every filter type in the plan must be
// Evaluable; this is checked before any array is touched.  Cancellation of
// ctx is checked between steps.
func (i *Interpreter) Execute(ctx context.Context, g *graph.Graph, plan graph.Plan) (Results, error) {
	steps := make([]*graph.Instance, 0, len(plan))
	evals := make([]filter.Evaluable, 0, len(plan))
	for _, name := range plan {
		inst, ok := g.Instance(name)
		if !ok {
			return nil, &graph.UnknownEndpointError{Endpoint: graph.Endpoint{Instance: name}}
		}
		eval, ok := inst.Spec.Evaluable()
		if !ok {
			return nil, &filter.UnsupportedOperationError{Type: inst.Spec.Name, Backend: Backend, Reason: "no Eval implementation"}
		}
		steps = append(steps, inst)
		evals = append(evals, eval)
	}
	results := make(Results, len(plan))
	for k, inst := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		inputs, err := i.gather(g, inst, results)
		if err != nil {
			return nil, err
		}
		out, err := evals[k].Eval(inputs, inst.Params)
		if err != nil {
			return nil, fmt.Errorf("filter instance %q: %w", inst.Name, err)
		}
		results[Key{inst.Name, inst.Spec.Outputs[0]}] = out
		i.logger.Debug("Filter evaluated",
			zap.String("instance", inst.Name),
			zap.String("type", inst.Spec.Name),
			zap.Stringer("shape", out.Shape),
		)
	}
	return results, nil
}

func (i *Interpreter) gather(g *graph.Graph, inst *graph.Instance, results Results) ([]*vector.Array, error) {
	endpoints, err := g.Inputs(inst)
	if err != nil {
		return nil, err
	}
	inputs := make([]*vector.Array, 0, len(endpoints))
	for _, e := range endpoints {
		if e.IsSource() {
			src, ok := g.Source(e.Source)
			if !ok {
				return nil, &graph.UnknownEndpointError{Endpoint: e}
			}
			if !src.Bound() {
				return nil, &graph.UnboundSourceError{Name: src.Name}
			}
			inputs = append(inputs, src.Value)
			continue
		}
		a, ok := results[Key{e.Instance, e.Port}]
		if !ok {
			return nil, fmt.Errorf("filter instance %q: input %s was not computed before use", inst.Name, e)
		}
		inputs = append(inputs, a)
	}
	return inputs, nil
}
