package main

import (
	"fmt"
	"os"

	"github.com/brimdata/flow/cmd/flow/compile"
	"github.com/brimdata/flow/cmd/flow/filters"
	"github.com/brimdata/flow/cmd/flow/root"
	"github.com/brimdata/flow/cmd/flow/run"
)

func main() {
	flow := root.Flow
	flow.Add(compile.Cmd)
	flow.Add(run.Cmd)
	flow.Add(filters.Cmd)
	if err := flow.ExecRoot(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
