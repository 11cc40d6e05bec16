package main

import (
	"os"

	"github.com/paynet/cnab/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
