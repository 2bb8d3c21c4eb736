// Package main provides the entry point for the treesum CLI.
package main

import (
	"errors"
	"os"
)

func main() {
	err := Execute()
	if err == nil {
		return
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			printError("%v", exit.err)
		}
		os.Exit(exit.code)
	}
	printError("%v", err)
	os.Exit(exitTrouble)
}
