package google

import (
	"io"
	"time"

	ics "github.com/emersion/go-ical"
	"workspace-assistant/internal/common/errors"
)

const productID = "-//workspace-assistant//events//EN"

// WriteICS renders events as an iCalendar feed
func WriteICS(w io.Writer, events []Event, now time.Time) error {
	cal := ics.NewCalendar()
	cal.Props.SetText(ics.PropVersion, "2.0")
	cal.Props.SetText(ics.PropProductID, productID)

	stamp := now.UTC()
	for _, e := range events {
		event := ics.NewEvent()
		event.Props.SetText(ics.PropUID, e.ID)
		event.Props.SetDateTime(ics.PropDateTimeStamp, stamp)
		event.Props.SetText(ics.PropSummary, e.Summary)
		if e.Location != "" {
			event.Props.SetText(ics.PropLocation, e.Location)
		}
		if e.WebLink != "" {
			event.Props.SetText(ics.PropURL, e.WebLink)
		}

		if e.AllDay {
			event.Props.SetDate(ics.PropDateTimeStart, e.Start)
			if !e.End.IsZero() {
				event.Props.SetDate(ics.PropDateTimeEnd, e.End)
			}
		} else {
			event.Props.SetDateTime(ics.PropDateTimeStart, e.Start.UTC())
			if !e.End.IsZero() {
				event.Props.SetDateTime(ics.PropDateTimeEnd, e.End.UTC())
			}
		}
		cal.Children = append(cal.Children, event.Component)
	}

	if err := ics.NewEncoder(w).Encode(cal); err != nil {
		return errors.InternalError("failed to encode calendar feed", err)
	}
	return nil
}
