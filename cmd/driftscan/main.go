// Command driftscan hosts the scanner core without a device: it evaluates
// the permission policy, inspects persisted state and replays image
// fixtures through the scan flow.
package main

import (
	"fmt"
	"os"

	"github.com/go-drift/scan/cmd/driftscan/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
