package google

import (
	"context"
	"time"

	"google.golang.org/api/calendar/v3"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/oauth2"
)

const allDayLayout = "2006-01-02"

// FetchEvents lists upcoming events on the primary calendar, expanded into
// single instances and ordered by start time.
func (w *Workspace) FetchEvents(ctx context.Context, userID string, query EventQuery) (*Result[Event], error) {
	if query.MaxResults <= 0 {
		query.MaxResults = w.opts.EventsMaxResults
	}
	if query.TimeMin.IsZero() {
		query.TimeMin = w.now()
	}

	return fetch(ctx, w, ServiceCalendar, userID, DemoEvents, func(ctx context.Context) (*Result[Event], error) {
		list, _, err := call(ctx, w, ServiceCalendar, userID, func(ctx context.Context, client *oauth2.Client) (*calendar.Events, error) {
			svc, err := calendar.NewService(ctx, w.clientOptions(ctx, ServiceCalendar, client)...)
			if err != nil {
				return nil, errors.InternalError("failed to create calendar client", err)
			}
			return svc.Events.List("primary").
				MaxResults(query.MaxResults).
				TimeMin(query.TimeMin.Format(time.RFC3339)).
				SingleEvents(true).
				OrderBy("startTime").
				Context(ctx).
				Do()
		})
		if err != nil {
			return nil, err
		}

		items := make([]Event, 0, len(list.Items))
		for _, e := range list.Items {
			if e.Status == "cancelled" {
				continue
			}
			items = append(items, normalizeEvent(e))
		}
		return &Result[Event]{Items: items}, nil
	})
}

func normalizeEvent(e *calendar.Event) Event {
	out := Event{
		ID:       e.Id,
		Summary:  e.Summary,
		Location: e.Location,
		WebLink:  e.HtmlLink,
	}
	if out.Summary == "" {
		out.Summary = "(no title)"
	}
	out.Start, out.AllDay = eventTime(e.Start)
	out.End, _ = eventTime(e.End)
	return out
}

// eventTime reads a timed or all-day boundary
func eventTime(t *calendar.EventDateTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return parsed, false
		}
	}
	if t.Date != "" {
		if parsed, err := time.Parse(allDayLayout, t.Date); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
