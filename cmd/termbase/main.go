// Command termbase manages a knowledge base of logical terms.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/termbase/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
