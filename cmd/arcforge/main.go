package main

import (
	"os"

	"github.com/koustreak/arcforge/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
