// Package main is the entry point for the order CLI, a provider
// negotiation front end for coding-agent workspaces.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
