package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bitpos/internal/interfaces/cli/server"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "bitpos",
		Short:   "Bitcoin point-of-sale settlement core",
		Version: version,
	}

	root.AddCommand(server.NewCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
