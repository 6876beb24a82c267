package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "onboarder",
		Short:         "Onboards organizations, schools, classes and users from the source of record",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newSyncRegistriesCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newDeadLettersCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
