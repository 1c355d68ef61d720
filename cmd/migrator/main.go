package main

import (
	"fmt"
	"os"

	"github.com/ayo6706/economy-ledger/internal/config"
	"github.com/ayo6706/economy-ledger/internal/db"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "migration run failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dsn, err := config.LoadDatabaseURL()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := db.Migrate(dsn); err != nil {
		return err
	}
	logger.Info("migration run finished successfully")
	return nil
}
