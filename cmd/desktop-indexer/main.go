package main

import (
	"os"

	"github.com/xdgtools/desktop-indexer/cmd/desktop-indexer/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
