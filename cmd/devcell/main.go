package main

import (
	"os"

	"github.com/schmitthub/devcell/internal/devcell"
)

func main() {
	os.Exit(devcell.Main())
}
