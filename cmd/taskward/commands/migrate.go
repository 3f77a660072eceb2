package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
	_ "modernc.org/sqlite"

	"github.com/taskward/taskward/internal/storage/sqlite/migrations"
)

const (
	migrateDirectionUp   = "up"
	migrateDirectionDown = "down"
)

// MigrateCommand runs the database schema migrations.
type MigrateCommand struct {
	rootConfig *RootCommand

	Direction string
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootConfig *RootCommand, app *kingpin.Application) *MigrateCommand {
	c := &MigrateCommand{rootConfig: rootConfig}
	cmd := app.Command("migrate", "Runs the database schema migrations.")

	cmd.Arg("direction", "Migration direction.").Default(migrateDirectionUp).EnumVar(&c.Direction, migrateDirectionUp, migrateDirectionDown)

	return c
}

// Name returns the name of the command.
func (c MigrateCommand) Name() string { return "migrate" }

// Run runs the application command.
func (c MigrateCommand) Run(ctx context.Context) error {
	db, err := sql.Open("sqlite", c.rootConfig.DBPath)
	if err != nil {
		return fmt.Errorf("could not open database: %w", err)
	}
	defer db.Close()

	migrator, err := migrations.NewMigrator(db, c.rootConfig.Logger)
	if err != nil {
		return fmt.Errorf("could not create migrator: %w", err)
	}

	switch c.Direction {
	case migrateDirectionUp:
		return migrator.Up(ctx)
	case migrateDirectionDown:
		return migrator.Down(ctx)
	}
	return fmt.Errorf("unknown migration direction %q", c.Direction)
}
