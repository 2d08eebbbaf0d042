package main

import (
	"os"

	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {

	var listenAddr string

	// rootCmd represents the base command when called without any subcommands
	var rootCmd = &cobra.Command{
		Use: "booking-sync",
	}

	var syncClientCmd = &cobra.Command{
		Use:   "sync_client",
		Short: "Booking Event Sync Client",
		Run: func(cmd *cobra.Command, args []string) {
			startSyncClient(listenAddr)
		},
	}

	rootCmd.AddCommand(syncClientCmd)
	syncClientCmd.Flags().StringVarP(&listenAddr, "listen-addr", "l", ":8081", "Hostname:port")

	return rootCmd
}

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
