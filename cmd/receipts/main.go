// Command receipts builds evidence-backed self-review packets.
package main

import (
	"os"

	"github.com/roach88/receipts/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		cli.ReportError(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
