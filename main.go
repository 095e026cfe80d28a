// Package main is the entry point for sqlwb, a command-line SQL script runner.
package main

import (
	"sqlwb/cli/cmd"
)

func main() {
	cmd.Execute()
}
