package run

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/brimdata/flow/cli/exprflags"
	"github.com/brimdata/flow/cli/sourceflags"
	"github.com/brimdata/flow/cmd/flow/root"
	"github.com/brimdata/flow/compiler"
	"github.com/brimdata/flow/pkg/charm"
	"github.com/brimdata/flow/vector"
	"github.com/brimdata/flow/workspace"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var Cmd = &charm.Spec{
	Name:  "run",
	Usage: "run [ options ] statement...",
	Short: "run flow statements and print the output array",
	Long: `
The "flow run" command compiles flow statements, binds the sources given in the
-sources YAML file, runs the graph on the backend selected by -backend, and
prints the output array as YAML.

The fuse backend (the default) generates one kernel computing the output,
compiles it, and launches it once over the output's elements.  The interp
backend evaluates one filter at a time.  Both produce the same values.

-stats prints the kernel cache counters to stderr after the run.`,
	New: New,
}

type Command struct {
	*root.Command
	backend     string
	stats       bool
	exprFlags   exprflags.Flags
	sourceFlags sourceflags.Flags
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	f.StringVar(&c.backend, "backend", workspace.Fuse.String(), "execution backend (values: interp, fuse)")
	f.BoolVar(&c.stats, "stats", false, "print kernel cache counters on stderr")
	c.exprFlags.SetFlags(f)
	c.sourceFlags.SetFlags(f)
	return c, nil
}

type result struct {
	Output string       `yaml:"output"`
	Shape  vector.Shape `yaml:"shape,flow"`
	Values []float64    `yaml:"values,flow"`
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init()
	if err != nil {
		return err
	}
	defer cleanup()
	if c.exprFlags.Empty(args) {
		return charm.NeedHelp
	}
	backend, err := workspace.ParseBackend(c.backend)
	if err != nil {
		return err
	}
	bindings, err := c.sourceFlags.Load()
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	ws, err := c.NewWorkspace(registry)
	if err != nil {
		return err
	}
	kctx, err := ws.NewContext("run", backend)
	if err != nil {
		return err
	}
	kctx.Start()
	if err := bindings.Add(kctx); err != nil {
		return err
	}
	var opts []compiler.Option
	if bindings.Output != "" {
		opts = append(opts, compiler.WithOutput(bindings.Output))
	}
	_, res, err := c.exprFlags.Compile(args, kctx, opts...)
	if err != nil {
		return err
	}
	if err := c.sourceFlags.BindPlaceholders(kctx, res.Placeholders); err != nil {
		return err
	}
	if err := kctx.SetOutput(res.Output); err != nil {
		return err
	}
	if bindings.Shape != nil {
		if err := kctx.SetOutputShape(bindings.Shape); err != nil {
			return err
		}
	}
	out, err := kctx.Run(ctx)
	if err != nil {
		return err
	}
	c.Logger().Info("Run completed",
		zap.String("backend", backend.String()),
		zap.String("output", res.Output),
		zap.Stringer("shape", out.Shape))
	b, err := yaml.Marshal(result{Output: res.Output, Shape: out.Shape, Values: out.Values})
	if err != nil {
		return err
	}
	if _, err := os.Stdout.Write(b); err != nil {
		return err
	}
	if c.stats {
		return printStats(registry)
	}
	return nil
}

func printStats(g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fmt.Fprintf(os.Stderr, "%s %g\n", mf.GetName(), m.GetCounter().GetValue())
		}
	}
	return nil
}
