package main

import (
	"fmt"
	"os"

	"github.com/roach88/geckode/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "geckode:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
