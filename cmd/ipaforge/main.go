package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ipaforge/ipaforge/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:   "ipaforge",
		Short: "Telegram bot that renames .ipa packages and attaches custom icons",
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the webhook server",
			Run: func(cmd *cobra.Command, args []string) {
				runServe()
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version.GetInfo())
			},
		},
	)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
