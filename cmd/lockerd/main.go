package main

import (
	"os"

	"github.com/mredag/eformLockerRoom-sub012/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
