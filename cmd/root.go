package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "paygate",
	Short: "PayGate PayHost / PayBatch service",
	Long:  "A payment service for PayGate PayHost checkouts, redirect callbacks, and PayBatch recurring charge jobs.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
