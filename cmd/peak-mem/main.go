package main

import (
	"os"

	"github.com/charmitro/peak-mem/cmd/peak-mem/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
