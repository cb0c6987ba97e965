package main

import (
	"os"

	"github.com/cpkops/ghtools/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
