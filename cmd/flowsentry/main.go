package main

import (
	"os"

	"github.com/flowsentry/flowsentry/cmd/flowsentry/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
