package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bohemiyan/LMS/zapLogger"
)

func main() {
	root := &cobra.Command{
		Use:          "lms",
		Short:        "Learning management core: enrollments, compliance, roles and departments",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.AddCommand(
		&cobra.Command{Use: "serve", Short: "Start the HTTP API and background workers", RunE: runServe},
		&cobra.Command{Use: "migrate", Short: "Create or update the database schema", RunE: runMigrate},
		&cobra.Command{Use: "sweep", Short: "Run one compliance check over every required enrollment", RunE: runSweep},
	)

	if err := root.Execute(); err != nil {
		zapLogger.Log.Errorw("command failed", "error", err)
		os.Exit(1)
	}
}
