package main

import (
	"github.com/praxis-sh/praxis/cmd"
)

// main is the entry point for the praxis binary. Command-line parsing,
// configuration, and execution all live in the cmd package.
func main() {
	cmd.Execute()
}
