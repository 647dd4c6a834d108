package main

import (
	"os"

	"stampede/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
