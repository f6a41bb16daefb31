package main

import (
	"os"

	"github.com/pulseboard/pulseboard/internal/cli"
)

func main() {
	cli.InitCLI()
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
