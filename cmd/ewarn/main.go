package main

import (
	"os"

	"ewarn/cmd/ewarn/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
