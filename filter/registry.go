package filter

import (
	"github.com/agnivade/levenshtein"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Registry is a closed catalogue of filter types.  A Registry is a plain
// value handed to each Workspace; there is no process-wide registry.
type Registry struct {
	specs map[string]*Spec
	order []string
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register adds spec to the registry.  The spec must not be modified
// afterward.
func (r *Registry) Register(spec *Spec) error {
	if _, ok := r.specs[spec.Name]; ok {
		return &DuplicateTypeError{Name: spec.Name}
	}
	if err := spec.validate(); err != nil {
		return err
	}
	r.specs[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

func (r *Registry) Lookup(name string) (*Spec, error) {
	if spec, ok := r.specs[name]; ok {
		return spec, nil
	}
	return nil, &UnknownTypeError{Name: name, Suggestion: Suggest(name, r.order)}
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	names := maps.Keys(r.specs)
	slices.Sort(names)
	return names
}

// Specs returns the registered specs in registration order.
func (r *Registry) Specs() []*Spec {
	specs := make([]*Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.specs[name])
	}
	return specs
}

// Clone returns a registry with the same entries that can be extended
// without affecting r.
func (r *Registry) Clone() *Registry {
	return &Registry{
		specs: maps.Clone(r.specs),
		order: slices.Clone(r.order),
	}
}

// Suggest returns the candidate closest to name by edit distance if it is
// close enough to be a plausible typo, or the empty string.  Ties go to the
// earlier candidate.
func Suggest(name string, candidates []string) string {
	maxDist := 2
	if len(name) <= 3 {
		maxDist = 1
	}
	var best string
	bestDist := maxDist + 1
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
