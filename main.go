package main

import (
	"fmt"
	"os"

	"github.com/lvcoi/igfetch/cmd"
	"github.com/lvcoi/igfetch/internal/downloader"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "igfetch: %v\n", err)
		os.Exit(downloader.ExitCode(err))
	}
}
