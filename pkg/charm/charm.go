// Package charm runs a tree of commands, each parsing its own flags before
// handing the remaining arguments to the next command on the path.
package charm

import (
	"errors"
	"flag"
	"os"
)

var (
	NeedHelp = errors.New("help")
	ErrNoRun = errors.New("no run method")
)

type Constructor func(Command, *flag.FlagSet) (Command, error)

type Command interface {
	Run([]string) error
}

type Spec struct {
	Name  string
	Usage string
	Short string
	Long  string
	New   Constructor
	// Hidden hides this command from help.
	Hidden bool
	// HiddenFlags are listed only by "help -v".
	HiddenFlags []string
	// RedactedFlags are listed in help without their default values.
	RedactedFlags []string
	children      []*Spec
	parent        *Spec
}

func (c *Spec) Add(child *Spec) {
	c.children = append(c.children, child)
	child.parent = c
}

func (c *Spec) Root() *Spec {
	for c.parent != nil {
		c = c.parent
	}
	return c
}

func (c *Spec) lookupSub(name string) *Spec {
	for _, child := range c.children {
		if name == child.Name {
			return child
		}
	}
	return nil
}

// ExecRoot instantiates the command path named by args, parsing the flags
// of each command along it, and runs the last command with the remaining
// arguments.  A command returning NeedHelp, or a -h or -help flag, prints
// help for the path to stderr.
func (s *Spec) ExecRoot(args []string) error {
	p, rest, err := parse(s, args)
	if err == nil {
		err = p.run(rest)
	}
	if err == NeedHelp {
		p, showHidden, err := parseHelp(s, args)
		if err != nil {
			return err
		}
		displayHelp(os.Stderr, p, showHidden)
		return nil
	}
	return err
}
