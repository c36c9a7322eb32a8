// The main package for the aggregator executable.
package main

import (
	"github.com/JakeFAU/scholarship-aggregator/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
