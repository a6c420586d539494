package main

import (
	"os"

	"github.com/rcrosshair/rcrosshair/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
