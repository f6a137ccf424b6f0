// Command eatwhat is the entry point for the recipe recommendation
// service. It provides a CLI interface (via Cobra) and the HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/eatwhat-go/cmd/eatwhat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
