// Package docstore maps portal records onto a schemaless
// port.DocumentStore. Field names keep the legacy portal layout so
// existing consumers of the collections keep working.
package docstore

import (
	"time"
)

// Collection names at the root scope.
const (
	ProfilesCollection = "usuarios"
	TenantsCollection  = "empresas"
	TasksCollection    = "tasks"
	IdeasCollection    = "ideas"
)

func stringField(fields map[string]any, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}

func optionalString(fields map[string]any, key string) *string {
	s, ok := fields[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func boolField(fields map[string]any, key string) bool {
	b, _ := fields[key].(bool)
	return b
}

// timeField accepts both time values and RFC3339 strings, which is what a
// JSON round trip through a remote store turns them into. A bare date is
// midnight in loc.
func timeField(fields map[string]any, key string, loc *time.Location) time.Time {
	switch v := fields[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if loc == nil {
			loc = time.UTC
		}
		if t, err := time.ParseInLocation("2006-01-02", v, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
