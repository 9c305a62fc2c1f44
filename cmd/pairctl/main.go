// pairctl manages device pairing state: the local identity, operator
// invites, pairing records, session tickets, and receipts.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/GoZippy/ZippyViewer-sub003/cmd/pairctl/cmd"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/clierror"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var cliErr *clierror.CLIError
		if errors.As(err, &cliErr) {
			clierror.PrintError(cliErr, cmd.OutputFormat())
			os.Exit(cliErr.ExitCode)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(clierror.ExitGeneral)
	}
}
