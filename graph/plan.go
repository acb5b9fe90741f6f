package graph

import (
	"golang.org/x/exp/slices"
)

// Plan is an ordering of instance names in which every instance appears
// after all instances feeding it.
type Plan []string

func (p Plan) Index(name string) int {
	return slices.Index(p, name)
}

// Plan orders every instance of the graph with Kahn's algorithm, breaking
// ties by creation order.  It fails with a GraphCycleError if the graph has
// a cycle and otherwise with a MissingConnectionError for the first
// unconnected input in plan order.
func (g *Graph) Plan() (Plan, error) {
	include := make([]bool, len(g.instances))
	for k := range include {
		include[k] = true
	}
	return g.plan(include)
}

// PlanFor is like Plan but covers only the instances that outputs depend on.
func (g *Graph) PlanFor(outputs ...string) (Plan, error) {
	include := make([]bool, len(g.instances))
	var stack []int
	for _, name := range outputs {
		inst, ok := g.Instance(name)
		if !ok {
			return nil, &UnknownEndpointError{Endpoint: Endpoint{Instance: name}}
		}
		stack = append(stack, inst.index)
	}
	for len(stack) > 0 {
		k := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if include[k] {
			continue
		}
		include[k] = true
		for _, c := range g.instances[k].inputs {
			if c < 0 {
				continue
			}
			if from := g.conns[c].From; !from.IsSource() {
				stack = append(stack, g.instanceIndex[from.Instance])
			}
		}
	}
	return g.plan(include)
}

func (g *Graph) plan(include []bool) (Plan, error) {
	indegree := make([]int, len(g.instances))
	var n int
	for k, inst := range g.instances {
		if !include[k] {
			continue
		}
		n++
		for _, c := range inst.inputs {
			if c >= 0 && !g.conns[c].From.IsSource() {
				indegree[k]++
			}
		}
	}
	var ready []int
	for k := range g.instances {
		if include[k] && indegree[k] == 0 {
			ready = append(ready, k)
		}
	}
	order := make([]int, 0, n)
	for len(ready) > 0 {
		k := ready[0]
		ready = ready[1:]
		order = append(order, k)
		for _, succ := range g.succ[k] {
			if !include[succ] {
				continue
			}
			indegree[succ]--
			if indegree[succ] == 0 {
				// Keep ready sorted so ties go to the earliest instance.
				at, _ := slices.BinarySearch(ready, succ)
				ready = slices.Insert(ready, at, succ)
			}
		}
	}
	if len(order) < n {
		return nil, &GraphCycleError{Participants: g.cycleParticipants(include, indegree)}
	}
	plan := make(Plan, 0, len(order))
	for _, k := range order {
		inst := g.instances[k]
		for port, c := range inst.inputs {
			if c < 0 {
				return nil, &MissingConnectionError{Instance: inst.Name, Port: inst.Spec.Inputs[port]}
			}
		}
		plan = append(plan, inst.Name)
	}
	return plan, nil
}

// cycleParticipants returns, in creation order, the instances Kahn's
// algorithm could not order once instances that merely sit downstream of a
// cycle are pruned away.
func (g *Graph) cycleParticipants(include []bool, indegree []int) []string {
	stuck := make([]bool, len(g.instances))
	for k := range g.instances {
		stuck[k] = include[k] && indegree[k] > 0
	}
	for changed := true; changed; {
		changed = false
		for k := range g.instances {
			if !stuck[k] {
				continue
			}
			feedsStuck := false
			for _, succ := range g.succ[k] {
				if stuck[succ] {
					feedsStuck = true
					break
				}
			}
			if !feedsStuck {
				stuck[k] = false
				changed = true
			}
		}
	}
	var names []string
	for k, inst := range g.instances {
		if stuck[k] {
			names = append(names, inst.Name)
		}
	}
	return names
}
