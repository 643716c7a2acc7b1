package cmd

import (
	"PartyQ/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动PartyQ服务器",
	Long:  `启动PartyQ共享队列的HTTP服务器，提供API服务和Web界面`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
