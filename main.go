// The main package for the citecrawler executable.
package main

import (
	"github.com/JakeFAU/scholar-citation-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
