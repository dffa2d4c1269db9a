package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/app"
	"github.com/Freeeeeet/availability_engine/internal/config"
	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/Freeeeeet/availability_engine/internal/recurrence"
	"github.com/Freeeeeet/availability_engine/internal/repository"
	"github.com/Freeeeeet/availability_engine/internal/service"
	"github.com/Freeeeeet/availability_engine/internal/tzconv"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	migrateLegacy := flag.String("migrate-legacy", "", "convert patterns without timezone storage format: local or canonical")
	exportOwner := flag.Int64("export-owner", 0, "write the owner's occurrences as iCalendar to stdout")
	exportFrom := flag.String("from", "", "first date of the export window, YYYY-MM-DD")
	exportTo := flag.String("to", "", "last date of the export window, YYYY-MM-DD")
	exportTZ := flag.String("tz", "", "display timezone of the export window")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Info("Starting availability engine",
		zap.String("environment", cfg.Environment),
		zap.String("canonical_timezone", cfg.CanonicalTimezone),
		zap.Int("max_query_window_days", cfg.MaxQueryWindowDays),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		logger.Fatal("Failed to create database pool", zap.Error(err))
	}
	defer pool.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = pool.Ping(pingCtx)
	cancel()
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	migrator, err := app.NewMigrator(pool, cfg.MigrationsTable, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("Failed to close migrator", zap.Error(err))
	}

	converter, err := tzconv.NewConverter(cfg.CanonicalTimezone, logger)
	if err != nil {
		logger.Fatal("Failed to load canonical timezone", zap.Error(err))
	}
	generator := recurrence.NewGenerator(converter, cfg.MaxQueryWindowDays, logger)

	svc := service.NewAvailabilityService(
		service.Stores{
			Patterns:   repository.NewPatternRepository(pool, logger),
			Exceptions: repository.NewExceptionRepository(pool),
			Slots:      repository.NewSlotRepository(pool),
			Bookings:   repository.NewBookingRepository(pool),
		},
		converter,
		generator,
		time.Now,
		logger,
	)

	if *migrateLegacy != "" {
		if err := app.RunLegacyMigration(ctx, svc, *migrateLegacy, logger); err != nil {
			logger.Fatal("Legacy timezone migration failed", zap.Error(err))
		}
	}

	if *exportOwner > 0 {
		if err := export(ctx, svc, *exportOwner, *exportFrom, *exportTo, *exportTZ); err != nil {
			logger.Fatal("Failed to export calendar", zap.Error(err))
		}
	}

	logger.Info("Availability engine finished")
}

func export(ctx context.Context, svc *service.AvailabilityService, owner int64, from, to, tz string) error {
	start, err := model.ParseDate(from)
	if err != nil {
		return err
	}
	end, err := model.ParseDate(to)
	if err != nil {
		return err
	}

	data, err := svc.ExportCalendar(ctx, service.ListQuery{
		OwnerID:         owner,
		StartDate:       start,
		EndDate:         end,
		DisplayTimezone: tz,
	})
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(data)
	return err
}
