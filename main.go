// Package main is the entry point for the mediatx frame sender.
package main

import (
	"errors"
	"fmt"
	"os"

	"firestige.xyz/mediatx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exit *cmd.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
