// Command slotted rewrites terms with slotted e-graphs.
package main

import (
	"fmt"
	"os"

	"github.com/marcusrossel/slotted-egraphs/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
