package main

import (
	"os"

	"github.com/openviking/membridge/cmd/membridge"
)

func main() {
	if err := membridge.Execute(); err != nil {
		os.Exit(1)
	}
}
