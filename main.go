package main

import (
	"os"

	"github.com/sessiontrail/sessiontrail/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
