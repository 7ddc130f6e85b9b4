// Package google wraps the Gmail, Drive and Calendar list calls behind one
// retry, classification and fallback policy. Every Fetch method either
// returns real data, returns the fixed demo set tagged with the reason it
// was substituted, or returns an error the caller must act on.
package google

import "time"

// Service names a Google API for rate limiting and logging
type Service string

const (
	ServiceGmail    Service = "gmail"
	ServiceDrive    Service = "drive"
	ServiceCalendar Service = "calendar"
	// ServiceUserinfo is the profile endpoint read during sign-in
	ServiceUserinfo Service = "userinfo"
)

// Reasons a demo result was substituted
const (
	ReasonNotAuthenticated    = "not_authenticated"
	ReasonStoreUnavailable    = "store_unavailable"
	ReasonProviderUnavailable = "provider_unavailable"
	ReasonPermissionDenied    = "permission_denied"
	ReasonProviderError       = "provider_error"
)

// Result is a normalized list response
type Result[T any] struct {
	Items          []T    `json:"items"`
	IsFallback     bool   `json:"isFallback"`
	FallbackReason string `json:"fallbackReason,omitempty"`
	// Omitted counts items dropped because their detail fetch failed
	Omitted int `json:"omitted,omitempty"`
}

type Message struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"threadId,omitempty"`
	From     string    `json:"from"`
	FromName string    `json:"fromName,omitempty"`
	Subject  string    `json:"subject"`
	Snippet  string    `json:"snippet"`
	Date     time.Time `json:"date"`
	Unread   bool      `json:"unread"`
}

type File struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mimeType"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Owner      string    `json:"owner,omitempty"`
	WebLink    string    `json:"webLink,omitempty"`
}

type Event struct {
	ID       string    `json:"id"`
	Summary  string    `json:"summary"`
	Location string    `json:"location,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	AllDay   bool      `json:"allDay"`
	WebLink  string    `json:"webLink,omitempty"`
}

// EventQuery selects upcoming events. Zero values take the Workspace defaults.
type EventQuery struct {
	MaxResults int64
	TimeMin    time.Time
}
