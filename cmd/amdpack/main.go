package main

import (
	"os"

	"amdpack/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
