package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the taskrag version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("taskrag %s\n", Version)
	},
}
