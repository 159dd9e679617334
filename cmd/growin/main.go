// Package main is the entry point for the Growin portfolio client.
//
// The serve command runs the live portfolio poller, the chart streams and the
// local HTTP API. The other commands are one-shot queries against the backend.
package main

import (
	"fmt"
	"os"
)

func main() {
	root, c := newRootCmd()
	err := root.Execute()
	c.close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
