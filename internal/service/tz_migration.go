package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LegacyAssumption в какой зоне записаны времена строк без timezone_storage_format.
// Выбирает оператор, движок не угадывает.
type LegacyAssumption string

const (
	// AssumeLocal времена в original_timezone создателя
	AssumeLocal LegacyAssumption = "local"
	// AssumeCanonical времена уже в канонической зоне
	AssumeCanonical LegacyAssumption = "canonical"
)

// ParseLegacyAssumption разбирает значение флага командной строки
func ParseLegacyAssumption(s string) (LegacyAssumption, error) {
	switch LegacyAssumption(s) {
	case AssumeLocal, AssumeCanonical:
		return LegacyAssumption(s), nil
	}
	return "", &ValidationError{Field: "assume", Message: fmt.Sprintf("unknown value %q, expected local or canonical", s)}
}

// MigrationFailure шаблон, который не удалось перевести
type MigrationFailure struct {
	PatternID uuid.UUID
	Reason    string
}

// MigrationReport итог прохода миграции
type MigrationReport struct {
	Migrated int
	Failed   int
	Failures []MigrationFailure
}

// MigrateLegacyPatterns одноразовый проход по шаблонам без формата хранения.
// Каждая строка переводится в каноническую зону и помечается canonical.
// Ошибка одной строки не останавливает проход.
func (s *AvailabilityService) MigrateLegacyPatterns(ctx context.Context, assume LegacyAssumption) (*MigrationReport, error) {
	if _, err := ParseLegacyAssumption(string(assume)); err != nil {
		return nil, err
	}

	patterns, err := s.patterns.ListNeedingMigration(ctx)
	if err != nil {
		return nil, storageErr("list legacy patterns", err)
	}

	report := &MigrationReport{}
	for _, p := range patterns {
		if err := s.migratePattern(p, assume); err != nil {
			s.logger.Warn("Failed to migrate legacy pattern",
				zap.String("pattern_id", p.ID.String()),
				zap.String("original_timezone", p.OriginalTimezone),
				zap.Error(err),
			)
			report.Failed++
			report.Failures = append(report.Failures, MigrationFailure{PatternID: p.ID, Reason: err.Error()})
			continue
		}

		if err := s.patterns.Update(ctx, p); err != nil {
			return report, storageErr("update pattern", err)
		}
		report.Migrated++
	}

	s.logger.Info("Legacy timezone migration finished",
		zap.String("assume", string(assume)),
		zap.Int("migrated", report.Migrated),
		zap.Int("failed", report.Failed),
	)

	return report, nil
}

func (s *AvailabilityService) migratePattern(p *model.Pattern, assume LegacyAssumption) error {
	canonical := s.converter.CanonicalName()

	if assume == AssumeLocal {
		tz := p.OriginalTimezone
		if tz == "" {
			tz = p.Timezone
		}
		loc, err := s.converter.Location(tz)
		if err != nil {
			return fmt.Errorf("original timezone: %w", err)
		}

		ref := model.DateIn(s.now(), loc)
		if p.PatternStartDate != nil {
			ref = model.Date(*p.PatternStartDate)
		}

		shift, err := s.converter.DayShift(p.StartTime, tz, ref)
		if err != nil {
			return fmt.Errorf("day shift: %w", err)
		}

		p.StartTime = s.converter.ToCanonical(p.StartTime, tz, ref)
		p.EndTime = s.converter.ToCanonical(p.EndTime, tz, ref)
		if shift != 0 {
			shiftPatternDays(p, shift)
		}
		p.OriginalTimezone = tz
	}

	if len(p.RecurrenceWeekdays) == 0 {
		p.RecurrenceWeekdays = model.NewWeekdaySet(p.Weekday)
	}
	if p.OriginalTimezone == "" {
		p.OriginalTimezone = canonical
	}
	p.Timezone = canonical
	p.TimezoneStorageFormat = model.StorageFormatCanonical

	return nil
}
