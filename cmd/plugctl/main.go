// plugctl - command line client for plugd
//
// plugctl talks to a running plugd over its HTTP API:
//
//	plugctl on
//	plugctl status --json
//	plugctl history --limit 10
//
// The server address comes from --addr or PLUGCTL_ADDR.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
