package main

import (
	"os"

	"github.com/cloudrig/CloudRIG/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
