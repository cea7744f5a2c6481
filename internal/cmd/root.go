package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront cart, order and payment service",
	Long: `storefront serves the shopping cart, checkout and order APIs.

It reserves stock per product variant, hands shoppers to PayPal, Khalti or
card intents, and reconciles provider callbacks into paid orders.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
