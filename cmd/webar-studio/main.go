package main

import (
	"context"
	"os"

	"github.com/menta2k/webar-studio/internal/cli"
)

func main() {
	if err := cli.NewRootCmd(os.Stderr).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
