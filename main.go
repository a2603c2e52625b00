package main

import (
	"os"

	"github.com/eldlit/pet-dispatch-deploy/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
