package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/codegate-dev/codegate/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		if !errors.Is(err, cli.ErrBlocked) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
