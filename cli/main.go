package main

import (
	"os"

	"github.com/grafana/nanofetch/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
