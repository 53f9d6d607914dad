package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orderlabs/order/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		v := version.Get()
		fmt.Fprintf(cmd.OutOrStdout(), "order %s\n", v.String())
		fmt.Fprintf(cmd.OutOrStdout(), "go: %s platform: %s\n", v.GoVersion, v.Platform)
	},
}

var rootCmd = &cobra.Command{
	Use:   "order",
	Short: "Provider capability negotiation for coding agents",
	Long: "Order sends model requests through a capability negotiation engine:\n" +
		"it learns what each provider endpoint actually supports, degrades\n" +
		"requests when capabilities are rejected, and remembers the outcome.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(capabilitiesCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version.Get().String()
}
