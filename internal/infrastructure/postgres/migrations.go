package postgres

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
)

// RunMigrations はドライバーに対応するディレクトリ（migrationsPath/postgres など）のマイグレーションを実行する
func RunMigrations(db *sqlx.DB, migrationsPath string) error {
	var (
		driver database.Driver
		err    error
	)
	switch db.DriverName() {
	case "postgres":
		driver, err = migratepg.WithInstance(db.DB, &migratepg.Config{})
	case "mysql":
		driver, err = migratemysql.WithInstance(db.DB, &migratemysql.Config{})
	default:
		return fmt.Errorf("未対応のドライバーです: %s", db.DriverName())
	}
	if err != nil {
		return fmt.Errorf("マイグレーションドライバー作成エラー: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+filepath.Join(migrationsPath, db.DriverName()),
		db.DriverName(),
		driver,
	)
	if err != nil {
		return fmt.Errorf("マイグレーションインスタンス作成エラー: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("マイグレーション実行エラー: %w", err)
	}

	return nil
}
