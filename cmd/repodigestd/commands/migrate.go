package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/roasbeef/repodigest/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [version]",
	Short: "Apply database migrations",
	Long: `Brings the SQLite schema up to the latest migration version, or to
the given version when one is supplied. Downgrades below the daemon's
supported version are refused.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

func runMigrate(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("unable to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	target := db.TargetLatest
	if len(args) == 1 {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid migration version %q: %w",
				args[0], err)
		}
		target = db.TargetVersion(uint(version))
	}

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("unable to open database: %w", err)
	}
	defer database.Close()

	if err := db.ApplyMigrations(database, target, logger); err != nil {
		return err
	}

	logger.Info("migrations applied", "db", cfg.DBPath)

	return nil
}
