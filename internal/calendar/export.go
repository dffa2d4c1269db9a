// Package calendar выгружает вхождения доступности в iCalendar.
package calendar

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/Freeeeeet/availability_engine/internal/model"
)

const productID = "-//Freeeeeet//availability_engine//EN"

// Options параметры выгрузки
type Options struct {
	Name     string
	Timezone string // X-WR-TIMEZONE, только подсказка клиенту
	Now      time.Time
}

// Export строит календарь из вхождений. Моменты пишутся в UTC,
// поэтому VTIMEZONE не нужен.
func Export(occs []model.Occurrence, opts Options) ([]byte, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	if opts.Timezone != "" {
		cal.SetXWRTimezone(opts.Timezone)
	}

	for _, occ := range occs {
		if !occ.EndsAt.After(occ.StartsAt) {
			return nil, fmt.Errorf("occurrence %s: end not after start", occ.ID)
		}

		event := cal.AddEvent(eventUID(occ))
		event.SetDtStampTime(now)
		event.SetStartAt(occ.StartsAt)
		event.SetEndAt(occ.EndsAt)
		event.SetSummary(summary(occ))
		event.SetDescription(description(occ))
		if occ.HasConflict {
			event.SetStatus(ical.ObjectStatusConfirmed)
		} else {
			event.SetStatus(ical.ObjectStatusTentative)
		}
	}

	return []byte(cal.Serialize()), nil
}

func eventUID(occ model.Occurrence) string {
	return fmt.Sprintf("%s@availability", occ.ID)
}

func summary(occ model.Occurrence) string {
	if occ.HasConflict {
		return "Booked"
	}
	return "Available"
}

func description(occ model.Occurrence) string {
	desc := fmt.Sprintf("Source: %s", occ.Source)
	if occ.Modified {
		desc += "\nRescheduled"
	}
	if occ.Display != nil {
		desc += fmt.Sprintf("\nLocal time: %s %s-%s (%s)",
			model.FormatDate(occ.Display.Date), occ.Display.StartTime, occ.Display.EndTime, occ.Display.Timezone)
	}
	return desc
}
