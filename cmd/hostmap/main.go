package main

import (
	"os"

	"github.com/bobbyrathoree/hostmap/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
