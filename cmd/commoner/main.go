// Command commoner builds modules and bundles from a source directory.
package main

import (
	"fmt"
	"os"

	"github.com/facebookarchive/commoner/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil && !cli.Reported(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
