// Command credgated serves the credgate HTTP API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "credgated:", err)
		os.Exit(1)
	}
}
