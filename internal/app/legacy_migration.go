package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/service"
	"go.uber.org/zap"
)

const (
	legacyMigrationTimeout  = 10 * time.Minute
	legacyMigrationAttempts = 3
)

// пауза между попытками, тесты её обнуляют
var legacyRetryDelay = 5 * time.Second

// LegacyMigrator запускает одноразовый перевод шаблонов без формата хранения
type LegacyMigrator interface {
	MigrateLegacyPatterns(ctx context.Context, assume service.LegacyAssumption) (*service.MigrationReport, error)
}

// RunLegacyMigration выполняет проход миграции и пишет итог в лог.
// Ошибка возвращается только если проход прервался; строки, которые не удалось перевести,
// перечисляются в логе.
func RunLegacyMigration(ctx context.Context, migrator LegacyMigrator, assume string, logger *zap.Logger) error {
	assumption, err := service.ParseLegacyAssumption(assume)
	if err != nil {
		return fmt.Errorf("parse legacy assumption: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, legacyMigrationTimeout)
	defer cancel()

	logger.Info("Starting legacy timezone migration", zap.String("assume", string(assumption)))

	var report *service.MigrationReport
	for attempt := 1; ; attempt++ {
		report, err = migrator.MigrateLegacyPatterns(ctx, assumption)
		if err == nil {
			break
		}
		// уже переведённые строки повторный проход не трогает
		if !service.IsRetryable(err) || attempt == legacyMigrationAttempts {
			return fmt.Errorf("migrate legacy patterns: %w", err)
		}

		logger.Warn("Legacy timezone migration interrupted, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("migrate legacy patterns: %w", ctx.Err())
		case <-time.After(legacyRetryDelay):
		}
	}

	for _, f := range report.Failures {
		logger.Error("Legacy pattern left unmigrated",
			zap.String("pattern_id", f.PatternID.String()),
			zap.String("reason", f.Reason),
		)
	}

	logger.Info("Legacy timezone migration completed",
		zap.Int("migrated", report.Migrated),
		zap.Int("failed", report.Failed),
	)

	return nil
}
