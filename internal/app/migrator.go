package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Freeeeeet/availability_engine/internal/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migrator обёртка над goose с миграциями, встроенными в бинарник
type Migrator struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMigrator создаёт мигратор поверх пула. table: имя таблицы версий goose.
func NewMigrator(pool *pgxpool.Pool, table string, logger *zap.Logger) (*Migrator, error) {
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if table != "" {
		goose.SetTableName(table)
	}

	// goose работает с *sql.DB
	db := stdlib.OpenDBFromPool(pool)

	return &Migrator{
		db:     db,
		logger: logger,
	}, nil
}

// Run применяет все pending миграции
func (mg *Migrator) Run(ctx context.Context) error {
	mg.logger.Info("Applying database migrations")

	if err := goose.UpContext(ctx, mg.db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := mg.Version(ctx)
	if err != nil {
		return err
	}

	mg.logger.Info("Migrations applied", zap.Int64("version", version))
	return nil
}

// Version текущая версия схемы
func (mg *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := goose.GetDBVersionContext(ctx, mg.db)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// Close закрывает sql.DB мигратора. Пул закрывает main.
func (mg *Migrator) Close() error {
	if mg.db != nil {
		return mg.db.Close()
	}
	return nil
}
