package charm

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

type path []*instance

// parse instantiates each command named in args, parsing its flags, until
// an argument does not name a subcommand.
func parse(spec *Spec, args []string) (path, []string, error) {
	var p path
	var parent Command
	for {
		inst, err := newInstance(parent, spec)
		if err != nil {
			return nil, nil, err
		}
		p = append(p, inst)
		if err := inst.flags.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return p, nil, NeedHelp
			}
			return nil, nil, fmt.Errorf("%s: %w", p.pathname(), err)
		}
		args = inst.flags.Args()
		if len(args) == 0 {
			return p, args, nil
		}
		child := spec.lookupSub(args[0])
		if child == nil {
			return p, args, nil
		}
		spec, parent, args = child, inst.command, args[1:]
	}
}

// parseHelp finds the command path named in args without parsing flags.
// "help" is skipped wherever it appears and -v shows hidden commands and
// flags.
func parseHelp(spec *Spec, args []string) (path, bool, error) {
	root, err := newInstance(nil, spec)
	if err != nil {
		return nil, false, err
	}
	p := path{root}
	var showHidden bool
	for _, arg := range args {
		switch {
		case arg == "-v":
			showHidden = true
			continue
		case arg == "help" || strings.HasPrefix(arg, "-"):
			continue
		}
		child := p.last().spec.lookupSub(arg)
		if child == nil {
			break
		}
		inst, err := newInstance(p.last().command, child)
		if err != nil {
			return nil, false, err
		}
		p = append(p, inst)
	}
	return p, showHidden, nil
}

func (p path) run(args []string) error {
	if len(args) > 0 && args[0] == "help" && p.last().spec.lookupSub("help") == nil {
		return NeedHelp
	}
	err := p.last().command.Run(args)
	if err == ErrNoRun {
		if len(args) == 0 {
			err = fmt.Errorf("%q: requires a sub-command: %s", p.pathname(), p.subCommands())
		} else {
			err = fmt.Errorf("%q: no such sub-command %q: options are: %s", p.pathname(), args[0], p.subCommands())
		}
	}
	return err
}

func (p path) last() *instance {
	return p[len(p)-1]
}

func (p path) pathname(args ...string) string {
	names := make([]string, 0, len(p)+len(args))
	for _, sub := range p {
		names = append(names, sub.spec.Name)
	}
	names = append(names, args...)
	return strings.Join(names, " ")
}

func (p path) subCommands() string {
	names := make([]string, 0, len(p))
	for _, spec := range p.last().spec.children {
		names = append(names, spec.Name)
	}
	return strings.Join(names, " ")
}
