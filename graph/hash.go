package graph

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Hash returns a structural hash of the graph covering the ordered
// instances with their types and parameters, the ordered connections, and
// the names and shapes of the sources.  Source values are not hashed: two
// graphs with equal hashes generate the same kernel.
func (g *Graph) Hash() uint64 {
	d := xxhash.New()
	for _, s := range g.sources {
		d.WriteString("S ")
		d.WriteString(strconv.Quote(s.Name))
		if s.HasShape() {
			d.WriteString(" ")
			d.WriteString(s.Shape.String())
		}
		d.WriteString("\n")
	}
	for _, inst := range g.instances {
		d.WriteString("I ")
		d.WriteString(strconv.Quote(inst.Name))
		d.WriteString(" ")
		d.WriteString(inst.Spec.Name)
		d.WriteString(" ")
		d.WriteString(inst.Params.Canonical())
		d.WriteString("\n")
	}
	for _, c := range g.conns {
		d.WriteString("C ")
		d.WriteString(strconv.Quote(c.From.String()))
		d.WriteString(" ")
		d.WriteString(strconv.Quote(c.To.String()))
		d.WriteString("\n")
	}
	return d.Sum64()
}
