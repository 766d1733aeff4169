package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "payctl",
		Short:         "Operator tooling for the FSP payment pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "payctl", "Config name, reads configs/<name>.env")

	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(queuesCmd())
	rootCmd.AddCommand(purgeQueuesCmd())
	rootCmd.AddCommand(reconcileCmd())

	return rootCmd
}
