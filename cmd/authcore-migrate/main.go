// Command authcore-migrate applies the refresh token schema to a
// PostgreSQL database.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		databaseURL    string
		migrationsPath string
	)

	root := &cobra.Command{
		Use:           "authcore-migrate",
		Short:         "Manage the authcore refresh token schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&databaseURL, "database-url", "",
		"Database connection URL. Can also be set via AUTHCORE_DATABASE_URL.")
	root.PersistentFlags().StringVar(&migrationsPath, "migrations-path", "migrations",
		"Path to the migration files.")

	runner := func() (*migrate.Migrate, error) {
		return newRunner(databaseURL, migrationsPath)
	}

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := runner()
			if err != nil {
				return err
			}
			defer closeRunner(m)

			if err := m.Up(); err != nil {
				if errors.Is(err, migrate.ErrNoChange) {
					cmd.Println("No schema changes to apply.")
					return nil
				}
				return fmt.Errorf("apply migrations: %w", err)
			}
			cmd.Println("Applied all pending migrations.")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down <steps>",
		Short: "Roll back migrations by step count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := strconv.Atoi(args[0])
			if err != nil || steps <= 0 {
				return fmt.Errorf("invalid step count %q: expected a positive integer", args[0])
			}

			m, err := runner()
			if err != nil {
				return err
			}
			defer closeRunner(m)

			if err := m.Steps(-steps); err != nil {
				if errors.Is(err, migrate.ErrNoChange) {
					cmd.Println("No schema changes to roll back.")
					return nil
				}
				return fmt.Errorf("rollback migrations: %w", err)
			}
			cmd.Printf("Rolled back %d migration step(s).\n", steps)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := runner()
			if err != nil {
				return err
			}
			defer closeRunner(m)

			version, dirty, err := m.Version()
			if err != nil {
				if errors.Is(err, migrate.ErrNilVersion) {
					cmd.Println("No migrations applied.")
					return nil
				}
				return fmt.Errorf("read migration version: %w", err)
			}
			cmd.Printf("Version %d (dirty: %v)\n", version, dirty)
			return nil
		},
	})

	return root
}

func newRunner(databaseURL, migrationsPath string) (*migrate.Migrate, error) {
	url := strings.TrimSpace(databaseURL)
	if url == "" {
		url = strings.TrimSpace(os.Getenv("AUTHCORE_DATABASE_URL"))
	}
	if url == "" {
		return nil, errors.New("missing database URL: set --database-url or AUTHCORE_DATABASE_URL")
	}

	sourceURL := migrationsPath
	if !strings.Contains(sourceURL, "://") {
		abs, err := filepath.Abs(sourceURL)
		if err != nil {
			return nil, fmt.Errorf("resolve migrations path %q: %w", sourceURL, err)
		}
		sourceURL = "file://" + filepath.ToSlash(abs)
	}

	m, err := migrate.New(sourceURL, url)
	if err != nil {
		return nil, fmt.Errorf("create migrate runner: %w", err)
	}
	return m, nil
}

func closeRunner(m *migrate.Migrate) {
	sourceErr, dbErr := m.Close()
	if err := errors.Join(sourceErr, dbErr); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close migration runner cleanly: %v\n", err)
	}
}
