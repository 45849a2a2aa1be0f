package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkwell/inkwell-api/cmd/configure/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "inkwell-configure",
		Short: "Configuration tool for the Inkwell API",
		Long:  "CLI tool for managing rate limits, administrator roles and security events",
	}

	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewAdminCmd())
	rootCmd.AddCommand(commands.NewEventsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
