// Command auditguard runs the tamper-evident POS audit ledger.
package main

import (
	"fmt"
	"os"

	"github.com/possuite/auditguard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
