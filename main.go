// The main package for the docs-crawler executable.
package main

import (
	"github.com/JakeFAU/docs-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
