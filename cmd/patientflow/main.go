package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "patientflow",
		Short:        "Clinic patient flow tracker",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(rekeyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
