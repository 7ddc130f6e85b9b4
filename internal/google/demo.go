package google

import "time"

// Demo datasets are fixed in content; their timestamps are placed relative to
// now so that the sample inbox and calendar always look current.

func DemoMessages(now time.Time) []Message {
	now = now.UTC().Truncate(time.Minute)
	return []Message{
		{
			ID:       "demo-msg-1",
			From:     "maya.chen@example.com",
			FromName: "Maya Chen",
			Subject:  "Q3 planning notes",
			Snippet:  "Attached are the notes from this morning. Can you review the roadmap section before Friday?",
			Date:     now.Add(-35 * time.Minute),
			Unread:   true,
		},
		{
			ID:       "demo-msg-2",
			From:     "calendar-noreply@example.com",
			FromName: "Calendar",
			Subject:  "Invitation: Design review @ Thu 14:00",
			Snippet:  "You have been invited to Design review. Join with the link in the event.",
			Date:     now.Add(-2 * time.Hour),
			Unread:   true,
		},
		{
			ID:       "demo-msg-3",
			From:     "sam.okafor@example.com",
			FromName: "Sam Okafor",
			Subject:  "Re: vendor contract",
			Snippet:  "Legal signed off on the revised terms. We can countersign once finance confirms the PO.",
			Date:     now.Add(-5 * time.Hour),
		},
		{
			ID:       "demo-msg-4",
			From:     "billing@example.com",
			FromName: "Billing",
			Subject:  "Your invoice is ready",
			Snippet:  "Invoice INV-2041 for the current period is now available.",
			Date:     now.Add(-26 * time.Hour),
		},
		{
			ID:       "demo-msg-5",
			From:     "team-updates@example.com",
			FromName: "Team Updates",
			Subject:  "Weekly digest",
			Snippet:  "Three launches shipped this week, plus the on-call rotation for next month.",
			Date:     now.Add(-72 * time.Hour),
		},
	}
}

func DemoFiles(now time.Time) []File {
	now = now.UTC().Truncate(time.Minute)
	return []File{
		{
			ID:         "demo-file-1",
			Name:       "Q3 Roadmap",
			MimeType:   "application/vnd.google-apps.document",
			ModifiedAt: now.Add(-50 * time.Minute),
			Owner:      "Maya Chen",
		},
		{
			ID:         "demo-file-2",
			Name:       "Budget 2026",
			MimeType:   "application/vnd.google-apps.spreadsheet",
			ModifiedAt: now.Add(-6 * time.Hour),
			Owner:      "Sam Okafor",
		},
		{
			ID:         "demo-file-3",
			Name:       "Design review deck",
			MimeType:   "application/vnd.google-apps.presentation",
			ModifiedAt: now.Add(-30 * time.Hour),
			Owner:      "Maya Chen",
		},
		{
			ID:         "demo-file-4",
			Name:       "vendor-contract-v3.pdf",
			MimeType:   "application/pdf",
			ModifiedAt: now.Add(-4 * 24 * time.Hour),
			Owner:      "Sam Okafor",
		},
	}
}

func DemoEvents(now time.Time) []Event {
	day := now.UTC().Truncate(24 * time.Hour)
	return []Event{
		{
			ID:      "demo-event-1",
			Summary: "Standup",
			Start:   day.Add(24*time.Hour + 9*time.Hour + 30*time.Minute),
			End:     day.Add(24*time.Hour + 9*time.Hour + 45*time.Minute),
		},
		{
			ID:       "demo-event-2",
			Summary:  "Design review",
			Location: "Room 4B",
			Start:    day.Add(2*24*time.Hour + 14*time.Hour),
			End:      day.Add(2*24*time.Hour + 15*time.Hour),
		},
		{
			ID:      "demo-event-3",
			Summary: "1:1 with Sam",
			Start:   day.Add(3*24*time.Hour + 11*time.Hour),
			End:     day.Add(3*24*time.Hour + 11*time.Hour + 30*time.Minute),
		},
		{
			ID:      "demo-event-4",
			Summary: "Company offsite",
			Start:   day.Add(7 * 24 * time.Hour),
			End:     day.Add(8 * 24 * time.Hour),
			AllDay:  true,
		},
	}
}
