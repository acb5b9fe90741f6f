package compile

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/brimdata/flow/cli/exprflags"
	"github.com/brimdata/flow/cli/sourceflags"
	"github.com/brimdata/flow/cmd/flow/root"
	"github.com/brimdata/flow/compiler"
	"github.com/brimdata/flow/compiler/parser"
	"github.com/brimdata/flow/pkg/charm"
	"github.com/brimdata/flow/workspace"
	"github.com/peterh/liner"
	"github.com/prometheus/client_golang/prometheus"
)

var Cmd = &charm.Spec{
	Name:  "compile",
	Usage: "compile [ options ] statement...",
	Short: "inspect the compiler stages of flow statements",
	Long: `
The "flow compile" command parses flow statements and prints what each stage
of the compiler makes of them.  With no flags it prints the parsed statements
as JSON.

-ops prints the add_filter, add_source and connect calls the generator makes,
-plan prints the execution plan of the output instance, and -kernel prints the
fused kernel generated for it.  Generating a kernel needs the shapes of the
sources, which come from the -sources file or, for sources it does not bind,
from -shape.

-repl reads statements interactively.  Each line is lowered into the same
graph, so later lines may refer to earlier targets.  The line ":kernel" prints
the kernel for the most recent output and ":plan" its plan.`,
	New: New,
}

type Command struct {
	*root.Command
	ast         bool
	ops         bool
	plan        bool
	kernel      bool
	repl        bool
	n           int
	exprFlags   exprflags.Flags
	sourceFlags sourceflags.Flags
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	f.BoolVar(&c.ast, "ast", false, "display the parsed statements as JSON")
	f.BoolVar(&c.ops, "ops", false, "display the graph construction calls")
	f.BoolVar(&c.plan, "plan", false, "display the execution plan")
	f.BoolVar(&c.kernel, "kernel", false, "display the fused kernel")
	f.BoolVar(&c.repl, "repl", false, "enter repl")
	c.exprFlags.SetFlags(f)
	c.sourceFlags.SetFlags(f)
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init()
	if err != nil {
		return err
	}
	defer cleanup()
	for _, b := range []bool{c.ast, c.ops, c.plan, c.kernel} {
		if b {
			c.n++
		}
	}
	if c.n == 0 {
		c.ast = true
	}
	if c.repl {
		return c.interactive(ctx)
	}
	if c.exprFlags.Empty(args) {
		return charm.NeedHelp
	}
	s, err := c.newSession()
	if err != nil {
		return err
	}
	stmts, res, err := c.exprFlags.Compile(args, s.kctx, s.options()...)
	if err != nil {
		return err
	}
	if c.ast {
		c.header("ast")
		if err := printJSON(stmts); err != nil {
			return err
		}
	}
	if c.ops {
		c.header("ops")
		for _, op := range res.Ops {
			fmt.Println(op)
		}
	}
	s.placeholders = res.Placeholders
	if c.plan {
		c.header("plan")
		if err := s.printPlan(res.Output); err != nil {
			return err
		}
	}
	if c.kernel {
		c.header("kernel")
		if err := s.printKernel(ctx, res.Output); err != nil {
			return err
		}
	}
	return nil
}

func (c *Command) header(msg string) {
	if c.n > 1 {
		bars := strings.Repeat("=", len(msg))
		fmt.Printf("/%s\\\n", bars)
		fmt.Printf("|%s|\n", msg)
		fmt.Printf("\\%s/\n", bars)
	}
}

// session is a Fuse context with the -sources bindings added.
type session struct {
	kctx         *workspace.Context
	bindings     *sourceflags.Bindings
	sourceFlags  *sourceflags.Flags
	placeholders []string
}

func (c *Command) newSession() (*session, error) {
	ws, err := c.NewWorkspace(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	bindings, err := c.sourceFlags.Load()
	if err != nil {
		return nil, err
	}
	kctx, err := ws.NewContext("compile", workspace.Fuse)
	if err != nil {
		return nil, err
	}
	kctx.Start()
	if err := bindings.Add(kctx); err != nil {
		return nil, err
	}
	if bindings.Shape != nil {
		if err := kctx.SetOutputShape(bindings.Shape); err != nil {
			return nil, err
		}
	}
	return &session{kctx: kctx, bindings: bindings, sourceFlags: &c.sourceFlags}, nil
}

func (s *session) options() []compiler.Option {
	if s.bindings.Output != "" {
		return []compiler.Option{compiler.WithOutput(s.bindings.Output)}
	}
	return nil
}

var errNoOutput = errors.New("no statements to compile")

func (s *session) printPlan(output string) error {
	if output == "" {
		return errNoOutput
	}
	plan, err := s.kctx.Graph().PlanFor(output)
	if err != nil {
		return err
	}
	for k, name := range plan {
		inst, _ := s.kctx.Graph().Instance(name)
		fmt.Printf("%d: %s %s\n", k, inst.Spec.Name, name)
	}
	return nil
}

func (s *session) printKernel(ctx context.Context, output string) error {
	if output == "" {
		return errNoOutput
	}
	if err := s.sourceFlags.BindPlaceholders(s.kctx, s.placeholders); err != nil {
		return err
	}
	if err := s.kctx.SetOutput(output); err != nil {
		return err
	}
	src, err := s.kctx.Compile(ctx)
	if err != nil {
		return err
	}
	fmt.Print(src)
	return nil
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func (c *Command) interactive(ctx context.Context) error {
	s, err := c.newSession()
	if err != nil {
		return err
	}
	// Output selection is per line in the repl.
	opts := []compiler.Option{compiler.WithPlaceholders()}
	if c.exprFlags.Dedup {
		opts = append(opts, compiler.WithDedup())
	}
	gen := compiler.NewGenerator(s.kctx, opts...)
	var output string
	rl := liner.NewLiner()
	defer rl.Close()
	for {
		line, err := rl.Prompt("> ")
		if err == io.EOF || err == liner.ErrPromptAborted {
			return nil
		}
		if err != nil {
			return err
		}
		rl.AppendHistory(line)
		switch strings.TrimSpace(line) {
		case "":
			continue
		case ":plan":
			err = s.printPlan(output)
		case ":kernel":
			err = s.printKernel(ctx, output)
		default:
			output, err = c.lowerLine(gen, s, line, output)
		}
		if err != nil {
			log.Println(err)
		}
	}
}

func (c *Command) lowerLine(gen *compiler.Generator, s *session, line, output string) (string, error) {
	set := parser.NewSourceSet("", line)
	stmts, err := parser.ParseSet(set)
	if err != nil {
		return output, err
	}
	res, err := gen.Lower(stmts)
	if err != nil {
		return output, set.LocalizeError(err)
	}
	if c.ast {
		if err := printJSON(stmts); err != nil {
			return output, err
		}
	}
	for _, op := range res.Ops {
		fmt.Println(op)
	}
	s.placeholders = append(s.placeholders, res.Placeholders...)
	if res.Output != "" {
		output = res.Output
	}
	return output, nil
}
