// Command skgctl is a command-line client for the embedded edge-storage
// engine: create databases, declare labels, load bulk edge files, and run
// one-off point queries against an already-open database directory.
package main

import (
	"fmt"
	"os"

	"github.com/Qksidmx/skgraph/cmd/skgctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "skgctl:", err)
		os.Exit(1)
	}
}
