package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-directory-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-directory-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-directory-go/pkg/utilities"
)

// skipDB marks commands that run without a database connection.
const skipDB = "skip-db"

var (
	logger *zap.SugaredLogger
	svc    *app.App
)

var rootCmd = &cobra.Command{
	Use:           "directory-ctl",
	Short:         "Operator commands for the directory service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		lg, err := utilities.Init(utilities.ConfigFromEnv())
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = lg.Sugar()
		if cmd.Annotations[skipDB] != "" {
			return nil
		}
		db, err := database.Connect(database.ConfigFromEnv())
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		a, err := app.New(db, logger)
		if err != nil {
			db.Close()
			return fmt.Errorf("init: %w", err)
		}
		svc = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if svc != nil {
			_ = svc.Close()
			_ = svc.DB.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
