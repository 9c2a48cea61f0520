package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/rootserve/core/cmd/rootserve/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "rootserve",
		Short:         "Static content server",
		Long:          `rootserve serves a sandboxed directory over a minimal HTTP/1.1 subset, with permanent redirects, directory listings and Markdown rendering.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	commands.AddConfigFlag(rootCmd)

	// Add commands
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewResolveCommand())
	rootCmd.AddCommand(commands.NewRenderCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
