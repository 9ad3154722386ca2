package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/DioGolang/GoTracker/configs"
	"github.com/DioGolang/GoTracker/internal/infra/database"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

type migrator interface {
	Up() error
	Steps(n int) error
	Version() (uint, bool, error)
}

// openMigrator is swapped in tests.
var openMigrator = func(configPath string) (migrator, func() error, error) {
	config, err := configs.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(config.DBDriver, config.PostgresDSN())
	if err != nil {
		return nil, nil, err
	}
	m, err := database.NewMigrator(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return m, db.Close, nil
}

func newRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "gotracker-migrate",
		Short:         "Manage the driver state schema",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".", "directory holding the .env file")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(&configPath, func(cmd *cobra.Command, m migrator, _ []string) error {
				if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return err
				}
				cmd.Println("schema is up to date")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations, one by default",
			Args:  cobra.MaximumNArgs(1),
			RunE: withMigrator(&configPath, func(cmd *cobra.Command, m migrator, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return fmt.Errorf("steps must be a positive integer, got %q", args[0])
					}
					steps = n
				}
				if err := m.Steps(-steps); err != nil {
					return err
				}
				cmd.Printf("rolled back %d migration(s)\n", steps)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(&configPath, func(cmd *cobra.Command, m migrator, _ []string) error {
				v, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					cmd.Println("no migration applied")
					return nil
				}
				if err != nil {
					return err
				}
				cmd.Printf("version %d (dirty: %t)\n", v, dirty)
				return nil
			}),
		},
	)
	return root
}

func withMigrator(configPath *string, fn func(*cobra.Command, migrator, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		m, closeFn, err := openMigrator(*configPath)
		if err != nil {
			return err
		}
		defer func() { _ = closeFn() }()
		return fn(cmd, m, args)
	}
}
