package migrate_test

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestWalletMigrationContainsLedgerConstraints(t *testing.T) {
	content := readMigration(t, "*_create_wallets.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS wallet_transactions",
		"CHECK (balance >= 0)",
		"CHECK (balance_after = balance_before + amount)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_wallet_tx_reference_type ON wallet_transactions (reference, type)",
		"DROP TABLE IF EXISTS wallets",
	}
	for _, sub := range checks {
		require.Contains(t, content, sub)
	}
}

func TestOrdersMigrationContainsSettlementTables(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS order_settlements",
		"CREATE TABLE IF NOT EXISTS order_deliveries",
		"CHECK (total > 0)",
		"wallet_state IN ('uncharged','reserved','charged','released')",
		"DROP TABLE IF EXISTS orders",
	}
	for _, sub := range checks {
		require.Contains(t, content, sub)
	}
}

func TestEmbeddedSourceMatchesDirectory(t *testing.T) {
	fsys, err := migrate.Source(migrate.DefaultDir)
	require.NoError(t, err)
	embedded, err := fs.Glob(fsys, "*.sql")
	require.NoError(t, err)

	files, err := migrate.ListFiles("migrations")
	require.NoError(t, err)
	onDisk := make([]string, 0, len(files))
	for _, f := range files {
		onDisk = append(onDisk, filepath.Base(f.Path))
	}
	require.ElementsMatch(t, onDisk, embedded)

	_, err = migrate.Source(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestRunRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	require.ErrorContains(t, migrate.Run(ctx, nil, migrate.DefaultDir, "redo", io.Discard), "unsupported goose command")
	require.ErrorContains(t, migrate.Run(ctx, nil, migrate.DefaultDir, "up", io.Discard), "db is required")
	require.ErrorContains(t, migrate.MigrateToVersion(ctx, nil, migrate.DefaultDir, "latest", io.Discard), "invalid version")
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()

	path, err := migrate.CreateSQLMigration(dir, "Add Gift Cards!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_gift_cards.sql"))
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "  !!  ")
	require.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	require.Error(t, migrate.ValidateDir(dir))
}

func TestMaybeRunDevMigratesSQLiteFromModels(t *testing.T) {
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvDev},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
		DB: config.DBConfig{
			Driver: db.DriverSQLite,
			DSN:    fmt.Sprintf("file:migrate_%s?mode=memory&cache=shared", uuid.NewString()),
		},
	}
	logg := logger.New(logger.Options{ServiceName: "migrate-test", Output: io.Discard})

	client, err := db.New(context.Background(), cfg.DB, logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, migrate.MaybeRunDev(context.Background(), cfg, logg, client))
	for _, table := range []string{"orders", "order_settlements", "wallet_transactions", "outbox_events"} {
		require.True(t, client.DB().Migrator().HasTable(table), table)
	}
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: config.AppEnvProd}}
	require.NoError(t, migrate.MaybeRunDev(context.Background(), cfg, nil, nil))
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migration matching %s", pattern)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}
