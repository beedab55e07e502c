// Package export renders a tenant calendar as an iCalendar feed.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"

	ical "github.com/arran4/golang-ical"
)

const productID = "-//boddenberg//agency-portal//PT"

// WriteICS writes one all-day VEVENT per entry. Entries are expected in
// the portal time zone so the calendar date is preserved.
func WriteICS(w io.Writer, calendarName string, loc *time.Location, entries []domain.ScheduledEntry) error {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(calendarName)
	if loc != nil {
		cal.SetXWRTimezone(loc.String())
	}

	stamp := time.Now().UTC()
	for _, e := range entries {
		ev := cal.AddEvent(e.ID)
		ev.SetDtStampTime(stamp)
		ev.SetSummary(e.Title)

		start := e.ScheduledAt
		if loc != nil {
			start = start.In(loc)
		}
		ev.SetAllDayStartAt(start)
		ev.SetAllDayEndAt(start.AddDate(0, 0, 1))

		if desc := description(e); desc != "" {
			ev.SetDescription(desc)
		}
		if e.ReferenceURL != "" {
			ev.SetURL(e.ReferenceURL)
		}
		ev.SetStatus(status(e.Status))
		if e.Kind != "" {
			ev.SetProperty(ical.ComponentPropertyCategories, string(e.Kind))
		}
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("serialize calendar: %w", err)
	}
	return nil
}

func description(e domain.ScheduledEntry) string {
	switch {
	case e.Body != "" && e.Description != "":
		return e.Body + "\n\n" + e.Description
	case e.Body != "":
		return e.Body
	default:
		return e.Description
	}
}

// status maps production states onto the VEVENT status values.
func status(s domain.EntryStatus) ical.ObjectStatus {
	switch s {
	case domain.StatusScheduled, domain.StatusPosted, domain.StatusCompleted:
		return ical.ObjectStatusConfirmed
	default:
		return ical.ObjectStatusTentative
	}
}
