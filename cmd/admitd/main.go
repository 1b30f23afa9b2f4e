// Command admitd runs the admission queue and decaying duplicate filter
// as a standalone UDP daemon.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/shadowmesh/admitcore/internal/cli"
)

var version = "dev"

func main() {
	var root cli.CLI

	ctx := kong.Parse(&root,
		kong.Name("admitd"),
		kong.Description("Inbound connection admission and duplicate filtering daemon."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
