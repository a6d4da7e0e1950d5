// Command qchatctl is the operator CLI: it builds and inspects the document
// index and runs one-off questions against the FAQ table and the arbiter.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
