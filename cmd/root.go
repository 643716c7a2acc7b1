package cmd

import (
	"fmt"
	"log"
	"os"

	"PartyQ/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "partyq",
	Short: "PartyQ is a collaborative party queue for one shared Spotify session.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting PartyQ server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
