package main

import (
	"os"

	"github.com/mnemora/mnemora/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
