package validation

import (
	"strings"
	"testing"

	"workspace-assistant/internal/common/errors"
)

type eventParams struct {
	Max  int64  `query:"max" validate:"omitempty,min=1,max=250"`
	From string `query:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type signInParams struct {
	ReturnTo string `json:"return_to" validate:"omitempty,local_path"`
	Prompt   string `validate:"omitempty,oneof=consent select_account"`
}

func TestValidator_ValidateStruct(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name          string
		value         interface{}
		errorContains string
	}{
		{"empty params", eventParams{}, ""},
		{"valid params", eventParams{Max: 25, From: "2025-10-14T09:00:00Z"}, ""},
		{"max too small", eventParams{Max: -1}, "field 'max' must be at least 1"},
		{"max too large", eventParams{Max: 1000}, "field 'max' must be at most 250"},
		{"bad timestamp", eventParams{From: "yesterday"}, "field 'from' must be a timestamp"},
		{"local path", signInParams{ReturnTo: "/mail?folder=inbox"}, ""},
		{"protocol relative", signInParams{ReturnTo: "//evil.example.com"}, "field 'return_to' must be a path on this site"},
		{"absolute url", signInParams{ReturnTo: "https://evil.example.com"}, "return_to"},
		{"oneof uses field name", signInParams{Prompt: "none"}, "field 'Prompt' must be one of: consent select_account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.value)
			if tt.errorContains == "" {
				if err != nil {
					t.Errorf("ValidateStruct() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateStruct() expected error containing %q", tt.errorContains)
			}
			if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("ValidateStruct() error = %q, want it to contain %q", err.Error(), tt.errorContains)
			}
			if !errors.IsType(err, errors.ErrTypeValidation) {
				t.Errorf("ValidateStruct() error type = %v, want validation", errors.GetType(err))
			}
		})
	}
}

func TestFields(t *testing.T) {
	v := NewValidator()

	err := v.ValidateStruct(eventParams{Max: 1000, From: "soon"})
	fields := Fields(err)
	if len(fields) != 2 {
		t.Fatalf("Fields() returned %d entries, want 2", len(fields))
	}
	if fields[0].Field != "max" || fields[0].Tag != "max" || fields[0].Param != "250" {
		t.Errorf("Fields()[0] = %+v", fields[0])
	}
	if !strings.HasPrefix(err.Error(), "validation: validation failed:") {
		t.Errorf("combined message = %q", err.Error())
	}

	if Fields(nil) != nil {
		t.Errorf("Fields(nil) should be nil")
	}
}
