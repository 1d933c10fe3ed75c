package main

import (
	"os"

	"commcore/cmd/commcore/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
