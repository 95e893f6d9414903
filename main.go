// The main package for the crawlfleet executable.
package main

import (
	"github.com/crawlfleet/crawlfleet/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
