// Command feeledgerctl runs database migrations, manages user accounts and
// drives one-off payment register exports.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"feeledger/internal/backend"
	"feeledger/internal/cli"
	"feeledger/internal/config"
	"feeledger/internal/log"
	"feeledger/internal/storage"
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	cfg    *config.Config
	logger *log.Logger
}

func main() {
	ctx, stop := cli.SignalContext()
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "feeledgerctl",
		Short:        "Administer a feeledger deployment",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.cfg = cli.LoadConfig()
			a.logger = cli.SetupLogger(a.cfg)
			return a.cfg.ValidateDatabase()
		},
	}

	root.AddCommand(newMigrateCmd(a), newUsersCmd(a), newExportCmd(a))
	return root
}

func (a *app) databaseConfig() (storage.Config, error) {
	bc, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return storage.Config{}, err
	}
	return bc.Database, nil
}

// openRepository opens the database, applying pending migrations.
func (a *app) openRepository(ctx context.Context) (*storage.Repository, error) {
	dbCfg, err := a.databaseConfig()
	if err != nil {
		return nil, err
	}
	repo, err := storage.Open(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return repo, nil
}
