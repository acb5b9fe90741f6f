package root

import (
	"flag"

	"github.com/brimdata/flow/cli"
	"github.com/brimdata/flow/pkg/charm"
	"github.com/brimdata/flow/workspace"
	"github.com/prometheus/client_golang/prometheus"
)

var Flow = &charm.Spec{
	Name:  "flow",
	Usage: "flow <command> [options] [arguments...]",
	Short: "compile and run dataflow expressions",
	Long: `
flow compiles statements of the form "name = expr" into a dataflow graph of
filter instances and runs the graph either with the interpreter, which
materializes every intermediate array, or by fusing the graph into a single
kernel that is compiled and launched once.

Identifiers that are not defined by an earlier statement refer to sources.
Their values come from a YAML bindings file given with -sources.`,
	New: New,
}

type Command struct {
	charm.Command
	cli.Flags
	cacheSize int
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{}
	c.SetFlags(f)
	f.IntVar(&c.cacheSize, "kernelcache", 0, "number of compiled kernels to keep (default 128)")
	return c, nil
}

func (c *Command) Run(args []string) error {
	_, cleanup, err := c.Init()
	if err != nil {
		return err
	}
	defer cleanup()
	if len(args) == 0 {
		return charm.NeedHelp
	}
	return charm.ErrNoRun
}

// NewWorkspace returns a Workspace with the built-in filters that logs to
// the logger opened by Init and registers its metrics with r.
func (c *Command) NewWorkspace(r prometheus.Registerer) (*workspace.Workspace, error) {
	return workspace.New(nil,
		workspace.WithLogger(c.Logger()),
		workspace.WithRegisterer(r),
		workspace.WithCacheSize(c.cacheSize))
}
