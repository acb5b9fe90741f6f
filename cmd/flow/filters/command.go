package filters

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/brimdata/flow/cmd/flow/root"
	"github.com/brimdata/flow/filter"
	"github.com/brimdata/flow/pkg/charm"
	"github.com/brimdata/flow/runtime/fuse"
	"github.com/brimdata/flow/runtime/interp"
)

var Cmd = &charm.Spec{
	Name:  "filters",
	Usage: "filters",
	Short: "list the filter types available to flow statements",
	Long: `
The "flow filters" command lists the built-in filter types with their input
ports, parameters and the backends that can run them.  A call such as
"sqrt(x)" in a statement instantiates the filter type of the same name.`,
	New: New,
}

type Command struct {
	*root.Command
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	return &Command{Command: parent.(*root.Command)}, nil
}

func (c *Command) Run(args []string) error {
	_, cleanup, err := c.Init()
	if err != nil {
		return err
	}
	defer cleanup()
	if len(args) > 0 {
		return fmt.Errorf("filters: unexpected argument %q", args[0])
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tINPUTS\tPARAMS\tBACKENDS\tDESCRIPTION")
	for _, spec := range filter.Builtins().Specs() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", spec.Name, list(spec.Inputs), params(spec), backends(spec), spec.Doc)
	}
	return w.Flush()
}

func list(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

func params(spec *filter.Spec) string {
	var out []string
	for _, p := range spec.Params {
		out = append(out, p.Name+":"+p.Kind.String())
	}
	return list(out)
}

func backends(spec *filter.Spec) string {
	var out []string
	if _, ok := spec.Evaluable(); ok {
		out = append(out, interp.Backend)
	}
	if _, ok := spec.Codegen(); ok {
		out = append(out, fuse.Backend)
	}
	return list(out)
}
