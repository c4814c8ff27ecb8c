package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// @title CBHLC Enrollment API
// @version 1.0.0
// @description Student enrollment, billing and document intake for CBHLC.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cbhlc",
		Short:         "CBHLC enrollment service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newSweepCmd(), newMigrateCmd(), newCreateUserCmd())
	return root
}
