package main

import (
	"os"

	"github.com/klcheung/alertledger/cmd/tracker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
